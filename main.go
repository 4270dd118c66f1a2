package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"production_data_import/config"
	"production_data_import/database"
	"production_data_import/logger"
	"production_data_import/pipeline"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// commandContext carries the loaded configuration between commands
type commandContext struct {
	configPath string
	cfg        *config.Config
}

func (c *commandContext) config() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	c.cfg = cfg
	return cfg, nil
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "production_data_import",
		Short:         "Production spreadsheet import tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.config()
			if err != nil {
				return err
			}
			if err := logger.Init(cfg); err != nil {
				log.Fatalf("Failed to initialize logging: %v", err)
			}
			logger.LogCommand(os.Args[0], os.Args)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if err := database.Close(); err != nil {
				logger.Warnf("Failed to close database: %v", err)
			}
			return logger.Close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.configPath, "config", "c", "", "Configuration file path (default config.yaml)")

	rootCmd.AddCommand(newConnectCommand(ctx))
	rootCmd.AddCommand(newMigrateCommand(ctx))
	rootCmd.AddCommand(newMigrateStatusCommand(ctx))
	rootCmd.AddCommand(newDBInfoCommand(ctx))
	rootCmd.AddCommand(newScanCommand(ctx))
	rootCmd.AddCommand(newWatchCommand(ctx))
	rootCmd.AddCommand(newIngestCommand(ctx))
	rootCmd.AddCommand(newMachinesCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))
	rootCmd.AddCommand(newGenerateCommand(ctx))

	return rootCmd
}

// openHistory connects the import history database and applies pending
// migrations when auto_migrate is set. A disabled database yields nil.
func openHistory(cfg *config.Config) (*database.History, error) {
	db, err := database.Connect(cfg)
	if errors.Is(err, database.ErrDisabled) {
		logger.Debugf("Import history disabled")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if cfg.Migration.AutoMigrate {
		if err := database.NewMigrationRunner(db, cfg).RunMigrations(); err != nil {
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}
	return database.NewHistory(db), nil
}

// newService builds the pipeline with history attached when it is enabled
func newService(cfg *config.Config) (*pipeline.Service, *database.History, error) {
	history, err := openHistory(cfg)
	if err != nil {
		return nil, nil, err
	}

	var recorder pipeline.HistoryRecorder
	if history != nil {
		recorder = history
	}

	svc, err := pipeline.New(cfg, recorder)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start pipeline: %w", err)
	}
	return svc, history, nil
}
