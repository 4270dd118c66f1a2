package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"production_data_import/database"
	"production_data_import/logger"
	"production_data_import/models"
)

func newConnectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Test the import history database connection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.config()
			if err != nil {
				return err
			}
			logger.Println("Testing database connection...")

			if _, err := database.Connect(cfg); err != nil {
				return fmt.Errorf("connection failed: %w", err)
			}
			logger.Printf("✓ Successfully connected to %s database", cfg.Database.Driver)

			info := database.GetDatabaseInfo(cfg)
			infoJSON, _ := json.MarshalIndent(info, "", "  ")
			logger.Printf("Connection info: %s", infoJSON)
			return nil
		},
	}
}

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.config()
			if err != nil {
				return err
			}
			logger.Println("Running database migrations...")

			db, err := database.Connect(cfg)
			if err != nil {
				return err
			}
			if err := database.NewMigrationRunner(db, cfg).RunMigrations(); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			return nil
		},
	}
}

func newMigrateStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate:status",
		Short: "Show migration status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.config()
			if err != nil {
				return err
			}

			db, err := database.Connect(cfg)
			if err != nil {
				return err
			}
			steps, err := database.NewMigrationRunner(db, cfg).GetMigrationStatus()
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			if len(steps) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No migrations found")
				return nil
			}

			rows := make([][]string, 0, len(steps))
			for _, step := range steps {
				status := "Pending"
				if step.Applied {
					status = "Applied"
				}
				rows = append(rows, []string{step.Version, step.Name, status})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Version", "Name", "Status"}, rows, nil))
			return nil
		},
	}
}

func newDBInfoCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "db:info",
		Short: "Show import history database information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.config()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, "Database Information:")
			fmt.Fprintln(out, strings.Repeat("=", 50))

			db, err := database.Connect(cfg)
			if err != nil {
				return err
			}
			info := database.GetDatabaseInfo(cfg)

			fmt.Fprintf(out, "Database Type:     %v\n", info["driver"])
			fmt.Fprintf(out, "Connection Status: %v\n", connectionStatusText(info["connected"]))

			switch cfg.Database.Driver {
			case "mysql", "postgres":
				fmt.Fprintf(out, "Host:              %v\n", info["host"])
				fmt.Fprintf(out, "Port:              %v\n", info["port"])
				fmt.Fprintf(out, "Database:          %v\n", info["database"])
			case "sqlite":
				fmt.Fprintf(out, "File Path:         %v\n", info["path"])
			}

			if info["connected"] != true {
				fmt.Fprintln(out, "\nConnection failed - unable to retrieve detailed information")
				return nil
			}

			fmt.Fprintln(out, "\nConnection Pool:")
			fmt.Fprintf(out, "  Max Connections: %v\n", info["max_open_connections"])
			fmt.Fprintf(out, "  Open Connections:%v\n", info["open_connections"])
			fmt.Fprintf(out, "  In Use:          %v\n", info["in_use"])
			fmt.Fprintf(out, "  Idle:            %v\n", info["idle"])

			if !db.Migrator().HasTable(&models.ImportLog{}) {
				fmt.Fprintln(out, "\nImport history table missing, run migrate")
				return nil
			}

			var count, machines int64
			db.Model(&models.ImportLog{}).Count(&count)
			db.Model(&models.ImportLog{}).Distinct("machine_key").Count(&machines)
			fmt.Fprintln(out, "\nImport History:")
			fmt.Fprintf(out, "  Total Attempts:  %d\n", count)
			fmt.Fprintf(out, "  Machines:        %d\n", machines)

			fmt.Fprintln(out, strings.Repeat("=", 50))
			return nil
		},
	}
}

func connectionStatusText(connected interface{}) string {
	if conn, ok := connected.(bool); ok && conn {
		return "✓ Connected"
	}
	return "✗ Disconnected"
}
