package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"production_data_import/database"
	"production_data_import/logger"
	"production_data_import/models"
	"production_data_import/pipeline"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Ingest the current file of every machine once and print the stats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.config()
			if err != nil {
				return err
			}
			svc, _, err := newService(cfg)
			if err != nil {
				return err
			}
			defer svc.Close()
			if workers > 0 {
				svc.SetSweepWorkers(workers)
			}

			logger.Printf("Scanning import root: %s", cfg.Import.RootDir)
			svc.Scan(cmd.Context())
			return printStats(cmd.OutOrStdout(), svc)
		},
	}
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Files ingested in parallel (default import.sweep_workers)")
	return cmd
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch every machine file and ingest settled changes until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.config()
			if err != nil {
				return err
			}
			svc, _, err := newService(cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := svc.StartWatching(sigCtx); err != nil {
				return err
			}
			for key, st := range svc.GetWatchStatus().PerMachine {
				logger.Printf("Watching %s: %s", key, st.WatchPath)
			}

			<-sigCtx.Done()
			logger.Println("Shutting down watchers...")
			svc.StopWatching()
			return printStats(cmd.OutOrStdout(), svc)
		},
	}
}

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var machineID int

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Ingest a spreadsheet manually into a machine dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.config()
			if err != nil {
				return err
			}
			svc, _, err := newService(cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			path := args[0]
			var target *int
			if cmd.Flags().Changed("machine") {
				target = &machineID
			}

			result := svc.IngestManualFile(cmd.Context(), path, filepath.Base(path), target)
			logger.LogResult("ingest "+path, result.Success, result.Error)
			if !result.Success {
				return fmt.Errorf("failed to ingest %s: %s", path, result.Error)
			}
			if err := svc.RecordUpload(result.MachineKey, pipeline.NewManualUpload(path, filepath.Base(path), result)); err != nil {
				return err
			}

			logger.Printf("%d rows read, %d detail records for %s", result.RowCount, result.DetailCount, result.MachineKey)
			return printStats(cmd.OutOrStdout(), svc)
		},
	}
	cmd.Flags().IntVarP(&machineID, "machine", "m", 0, "Target machine id (default first machine)")
	return cmd
}

func newMachinesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "machines",
		Short: "List configured machines and their watch paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.config()
			if err != nil {
				return err
			}
			svc, _, err := newService(cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			status := svc.GetWatchStatus()
			rows := make([][]string, 0)
			for _, m := range svc.ListMachines() {
				st := status.PerMachine[m.Key()]
				rows = append(rows, []string{
					strconv.Itoa(m.ID),
					m.Key(),
					m.Name,
					st.WatchPath,
					yesNo(st.FileExists),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Key", "Name", "File", "Present"},
				rows,
				[]columnAlignment{alignRight},
			))
			return nil
		},
	}
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		limit   int
		machine string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent import attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.config()
			if err != nil {
				return err
			}
			history, err := openHistory(cfg)
			if err != nil {
				return err
			}
			if history == nil {
				return database.ErrDisabled
			}

			entries, err := history.Recent(cmd.Context(), machine, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No import attempts recorded")
				return nil
			}
			fmt.Fprintln(out, renderHistory(entries))

			summary, err := history.Summary(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(summary))
			for _, s := range summary {
				rows = append(rows, []string{
					s.MachineKey,
					humanize.Comma(s.Attempts),
					humanize.Comma(s.Failures),
					humanize.Comma(s.RowTotal),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Machine", "Attempts", "Failures", "Rows"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of attempts to show")
	cmd.Flags().StringVar(&machine, "machine", "", "Only show attempts for this machine key")
	return cmd
}

func renderHistory(entries []models.ImportLog) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		status := "ok"
		if !e.Success {
			status = "failed: " + e.Error
		}
		rows = append(rows, []string{
			humanize.Time(e.CreatedAt),
			e.MachineKey,
			e.Source,
			e.FileName,
			strconv.Itoa(e.RowCount),
			(time.Duration(e.DurationMS) * time.Millisecond).String(),
			status,
		})
	}
	return renderTable(
		[]string{"When", "Machine", "Source", "File", "Rows", "Took", "Status"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight},
	)
}

// printStats renders the stats of every machine followed by the "all" figures
func printStats(w io.Writer, svc *pipeline.Service) error {
	headers := []string{"Machine", "Production", "Performance", "Operators", "Pending", "Details"}
	aligns := []columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight}

	keys := make([]string, 0)
	names := make(map[string]string)
	for _, m := range svc.ListMachines() {
		keys = append(keys, m.Key())
		names[m.Key()] = m.Name
	}
	keys = append(keys, models.AllKey)
	names[models.AllKey] = "All machines"

	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		ds, err := svc.GetDataset(key)
		if err != nil {
			return err
		}
		rows = append(rows, []string{
			names[key],
			humanize.Comma(int64(ds.Stats.TotalProduction)),
			fmt.Sprintf("%d%%", ds.Stats.MachinePerformance),
			strconv.FormatUint(uint64(ds.Stats.ActiveOperators), 10),
			strconv.FormatUint(uint64(ds.Stats.PendingOrders), 10),
			strconv.Itoa(len(ds.DetailRecords)),
		})
	}

	_, err := fmt.Fprintln(w, renderTable(headers, rows, aligns))
	return err
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
