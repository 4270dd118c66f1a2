package database

import (
	"fmt"
	"time"

	"production_data_import/config"
	"production_data_import/logger"
	"production_data_import/models"

	"gorm.io/gorm"
)

// Migration represents an applied schema migration
type Migration struct {
	ID          uint   `gorm:"primaryKey"`
	Version     string `gorm:"unique;not null"`
	Name        string `gorm:"not null"`
	Applied     bool   `gorm:"default:false"`
	AppliedAt   *time.Time
	Description string
}

// MigrationStep is a schema change defined in code
type MigrationStep struct {
	Version     string
	Name        string
	Description string
	Applied     bool
	Up          func(tx *gorm.DB) error `json:"-"`
}

// Steps lists the history schema migrations in version order
var Steps = []MigrationStep{
	{
		Version:     "20260301_090000",
		Name:        "create import logs",
		Description: "import attempt audit table",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(models.GetAllModels()...)
		},
	},
	{
		Version:     "20260412_140000",
		Name:        "import log detail count",
		Description: "number of detail records kept per import",
		Up: func(tx *gorm.DB) error {
			if tx.Migrator().HasColumn(&models.ImportLog{}, "DetailCount") {
				return nil
			}
			return tx.Migrator().AddColumn(&models.ImportLog{}, "DetailCount")
		},
	},
}

// MigrationRunner handles database migrations
type MigrationRunner struct {
	db             *gorm.DB
	migrationTable string
	steps          []MigrationStep
}

// NewMigrationRunner creates a new migration runner
func NewMigrationRunner(db *gorm.DB, cfg *config.Config) *MigrationRunner {
	return &MigrationRunner{
		db:             db,
		migrationTable: cfg.Migration.MigrationTable,
		steps:          Steps,
	}
}

func (mr *MigrationRunner) table() *gorm.DB {
	return mr.db.Table(mr.migrationTable)
}

// InitializeMigrationTable creates the migration table if it doesn't exist
func (mr *MigrationRunner) InitializeMigrationTable() error {
	return mr.table().AutoMigrate(&Migration{})
}

// GetAppliedMigrations returns all applied migrations from the database
func (mr *MigrationRunner) GetAppliedMigrations() ([]Migration, error) {
	var migrations []Migration

	if err := mr.InitializeMigrationTable(); err != nil {
		return nil, fmt.Errorf("failed to initialize migration table: %w", err)
	}

	result := mr.table().Where("applied = ?", true).Order("version ASC").Find(&migrations)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", result.Error)
	}

	return migrations, nil
}

// GetMigrationStatus returns every known step with its applied flag set
func (mr *MigrationRunner) GetMigrationStatus() ([]MigrationStep, error) {
	applied, err := mr.GetAppliedMigrations()
	if err != nil {
		return nil, err
	}

	appliedVersions := make(map[string]bool, len(applied))
	for _, migration := range applied {
		appliedVersions[migration.Version] = true
	}

	status := make([]MigrationStep, len(mr.steps))
	for i, step := range mr.steps {
		step.Applied = appliedVersions[step.Version]
		status[i] = step
	}

	return status, nil
}

// RunMigrations executes all pending migrations
func (mr *MigrationRunner) RunMigrations() error {
	status, err := mr.GetMigrationStatus()
	if err != nil {
		return fmt.Errorf("failed to get pending migrations: %w", err)
	}

	var pending []MigrationStep
	for _, step := range status {
		if !step.Applied {
			pending = append(pending, step)
		}
	}

	if len(pending) == 0 {
		logger.Debugf("No pending migrations to run")
		return nil
	}

	logger.Printf("Running %d pending migration(s)...", len(pending))

	for _, step := range pending {
		if err := mr.runSingleMigration(step); err != nil {
			return fmt.Errorf("failed to run migration %s: %w", step.Version, err)
		}
	}

	logger.Println("All migrations completed successfully")
	return nil
}

// runSingleMigration executes a single migration
func (mr *MigrationRunner) runSingleMigration(step MigrationStep) error {
	logger.Printf("Running migration: %s - %s", step.Version, step.Name)

	return mr.db.Transaction(func(tx *gorm.DB) error {
		if err := step.Up(tx); err != nil {
			return fmt.Errorf("failed to apply migration: %w", err)
		}

		now := time.Now()
		migration := Migration{
			Version:     step.Version,
			Name:        step.Name,
			Applied:     true,
			AppliedAt:   &now,
			Description: step.Description,
		}

		if err := tx.Table(mr.migrationTable).Create(&migration).Error; err != nil {
			return fmt.Errorf("failed to record migration: %w", err)
		}

		return nil
	})
}
