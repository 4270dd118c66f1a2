package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is used when Load is called with an empty path
const DefaultConfigPath = "config.yaml"

// Performance weighting modes for the global machine performance figure
const (
	WeightingMachine = "machine"
	WeightingRow     = "row"
)

// ImportConfig holds the import directory and watcher configuration
type ImportConfig struct {
	RootDir              string   `yaml:"root_dir"`
	FileName             string   `yaml:"file_name"`
	StabilityThresholdMS int      `yaml:"stability_threshold_ms"`
	Machines             []string `yaml:"machines"`
	Location             string   `yaml:"location"`
	PerformanceWeighting string   `yaml:"performance_weighting"`
	SweepWorkers         int      `yaml:"sweep_workers"`
}

// ColumnsConfig maps canonical record fields to spreadsheet header names
type ColumnsConfig struct {
	OrderNumber         string   `yaml:"order_number"`
	StartTime           string   `yaml:"start_time"`
	EndTime             string   `yaml:"end_time"`
	Duration            string   `yaml:"duration"`
	ProducedCount       string   `yaml:"produced_count"`
	ScrapCount          string   `yaml:"scrap_count"`
	MachinePerformance  string   `yaml:"machine_performance"`
	OperatorPerformance string   `yaml:"operator_performance"`
	Operators           []string `yaml:"operators"`
}

// DatabaseConfig holds the ingestion history database configuration
type DatabaseConfig struct {
	Enabled        bool           `yaml:"enabled"`
	Driver         string         `yaml:"driver"`
	MySQL          MySQLConfig    `yaml:"mysql"`
	PostgreSQL     PostgresConfig `yaml:"postgres"`
	SQLite         SQLiteConfig   `yaml:"sqlite"`
	ConnectionPool PoolConfig     `yaml:"connection_pool"`
}

// MySQLConfig holds MySQL specific configuration
type MySQLConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	DBName    string `yaml:"dbname"`
	Charset   string `yaml:"charset"`
	ParseTime bool   `yaml:"parse_time"`
	Loc       string `yaml:"loc"`
}

// PostgresConfig holds PostgreSQL specific configuration
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	TimeZone string `yaml:"timezone"`
}

// SQLiteConfig holds SQLite specific configuration
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PoolConfig holds connection pool configuration
type PoolConfig struct {
	MaxIdleConns    int `yaml:"max_idle_conns"`
	MaxOpenConns    int `yaml:"max_open_conns"`
	ConnMaxLifetime int `yaml:"conn_max_lifetime"`
}

// MigrationConfig holds migration specific configuration
type MigrationConfig struct {
	AutoMigrate    bool   `yaml:"auto_migrate"`
	MigrationTable string `yaml:"migration_table"`
}

// LoggingConfig holds logging specific configuration
type LoggingConfig struct {
	LogFile      string `yaml:"log_file"`
	LogToConsole bool   `yaml:"log_to_console"`
	LogLevel     string `yaml:"log_level"`
}

// Config holds the complete application configuration
type Config struct {
	Import    ImportConfig    `yaml:"import"`
	Columns   ColumnsConfig   `yaml:"columns"`
	Database  DatabaseConfig  `yaml:"database"`
	Migration MigrationConfig `yaml:"migration"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{
		Database: DatabaseConfig{
			Enabled: true,
			Driver:  "sqlite",
		},
		Migration: MigrationConfig{AutoMigrate: true},
		Logging:   LoggingConfig{LogToConsole: true},
	}
	cfg.applyDefaults()
	return cfg
}

// Load loads configuration from the specified YAML file.
// A missing default config file yields Default(); a missing explicit file is an error.
func Load(configPath string) (*Config, error) {
	explicit := configPath != ""
	if !explicit {
		configPath = DefaultConfigPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration, applies defaults and validates the result
func Parse(data []byte) (*Config, error) {
	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func (c *Config) applyDefaults() {
	if c.Import.RootDir == "" {
		c.Import.RootDir = "imports"
	}
	if c.Import.FileName == "" {
		c.Import.FileName = "data.xlsx"
	}
	if c.Import.StabilityThresholdMS == 0 {
		c.Import.StabilityThresholdMS = 2000
	}
	if len(c.Import.Machines) == 0 {
		c.Import.Machines = []string{"Makina 1"}
	}
	if c.Import.Location == "" {
		c.Import.Location = "Local"
	}
	if c.Import.PerformanceWeighting == "" {
		c.Import.PerformanceWeighting = WeightingMachine
	}
	if c.Import.SweepWorkers <= 0 {
		c.Import.SweepWorkers = 4
	}

	cols := &c.Columns
	setDefault(&cols.OrderNumber, "SIPARIS NUMARASI")
	setDefault(&cols.StartTime, "IS BASLATMA SAATI")
	setDefault(&cols.EndTime, "IS BITIRME SAATI")
	setDefault(&cols.Duration, "TOPLAM IS SURESI")
	setDefault(&cols.ProducedCount, "BASILAN PARCA ADETI")
	setDefault(&cols.ScrapCount, "HURDA ADETI")
	setDefault(&cols.MachinePerformance, "MAKINA PERFORMANSI")
	setDefault(&cols.OperatorPerformance, "OPERATOR PERFORMANSI")
	if len(cols.Operators) == 0 {
		cols.Operators = []string{"OPERATOR 1", "OPERATOR 2", "OPERATOR 3", "OPERATOR 4", "OPERATOR 5", "OPERATOR 6"}
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.SQLite.Path == "" {
		// process-lifetime history unless an operator opts into a file
		c.Database.SQLite.Path = "file::memory:?cache=shared"
	}
	if c.Migration.MigrationTable == "" {
		c.Migration.MigrationTable = "schema_migrations"
	}

	if c.Logging.LogFile == "" {
		c.Logging.LogFile = "result.log"
	}
	if c.Logging.LogLevel == "" {
		c.Logging.LogLevel = "info"
	}
}

func setDefault(field *string, value string) {
	if strings.TrimSpace(*field) == "" {
		*field = value
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Import.StabilityThresholdMS < 0 {
		return fmt.Errorf("stability threshold must be positive")
	}
	switch c.Import.PerformanceWeighting {
	case WeightingMachine, WeightingRow:
	default:
		return fmt.Errorf("unsupported performance weighting: %s", c.Import.PerformanceWeighting)
	}
	if len(c.Columns.Operators) != 6 {
		return fmt.Errorf("expected 6 operator columns, got %d", len(c.Columns.Operators))
	}
	hasMachine := false
	for _, name := range c.Import.Machines {
		if strings.TrimSpace(name) != "" {
			hasMachine = true
			break
		}
	}
	if !hasMachine {
		return fmt.Errorf("at least one machine name is required")
	}
	if _, err := c.TimeLocation(); err != nil {
		return err
	}

	if !c.Database.Enabled {
		return nil
	}

	switch c.Database.Driver {
	case "mysql":
		if c.Database.MySQL.Host == "" {
			return fmt.Errorf("mysql host is required")
		}
		if c.Database.MySQL.User == "" {
			return fmt.Errorf("mysql user is required")
		}
		if c.Database.MySQL.DBName == "" {
			return fmt.Errorf("mysql database name is required")
		}
	case "postgres":
		if c.Database.PostgreSQL.Host == "" {
			return fmt.Errorf("postgres host is required")
		}
		if c.Database.PostgreSQL.User == "" {
			return fmt.Errorf("postgres user is required")
		}
		if c.Database.PostgreSQL.DBName == "" {
			return fmt.Errorf("postgres database name is required")
		}
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			return fmt.Errorf("sqlite path is required")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	return nil
}

// StabilityThreshold returns the watcher quiet period as a duration
func (c *Config) StabilityThreshold() time.Duration {
	return time.Duration(c.Import.StabilityThresholdMS) * time.Millisecond
}

// TimeLocation resolves the configured location used for spreadsheet dates
func (c *Config) TimeLocation() (*time.Location, error) {
	switch c.Import.Location {
	case "", "Local":
		return time.Local, nil
	case "UTC":
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Import.Location)
	if err != nil {
		return nil, fmt.Errorf("invalid location %q: %w", c.Import.Location, err)
	}
	return loc, nil
}

// GetDSN returns the database connection string based on the configured driver
func (c *Config) GetDSN() string {
	switch c.Database.Driver {
	case "mysql":
		mysql := c.Database.MySQL
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=%s",
			mysql.User, mysql.Password, mysql.Host, mysql.Port, mysql.DBName,
			mysql.Charset, mysql.ParseTime, mysql.Loc)
		return dsn
	case "postgres":
		pg := c.Database.PostgreSQL
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
			pg.Host, pg.Port, pg.User, pg.Password, pg.DBName, pg.SSLMode, pg.TimeZone)
		return dsn
	case "sqlite":
		return c.Database.SQLite.Path
	default:
		return ""
	}
}
