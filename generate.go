package main

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/xuri/excelize/v2"

	"production_data_import/config"
	"production_data_import/logger"
	"production_data_import/models"
)

var sampleOperators = []string{"Ayse", "Mehmet", "Fatma", "Can", "Elif", "Murat", "Zeynep", "Emre"}

// serialEpoch is day zero of spreadsheet serial dates
var serialEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

type sampleJob struct {
	machine models.Machine
	path    string
}

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var (
		rows int
		seed uint64
	)

	cmd := &cobra.Command{
		Use:   "generate <directory>",
		Short: "Write a sample production workbook for every configured machine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.config()
			if err != nil {
				return err
			}
			if seed == 0 {
				seed = uint64(time.Now().UnixNano())
			}
			return generateSamples(cfg, args[0], rows, seed)
		},
	}
	cmd.Flags().IntVarP(&rows, "rows", "n", 50, "Rows per workbook")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Random seed (default time based)")
	return cmd
}

// generateSamples lays workbooks out the way the watchers expect them:
// <dir>/machine-<id>/<file_name>, ids following the configured machine order
func generateSamples(cfg *config.Config, dir string, rows int, seed uint64) error {
	var jobs []sampleJob
	id := 0
	for _, name := range cfg.Import.Machines {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		id++
		m := models.Machine{ID: id, Name: name}
		jobs = append(jobs, sampleJob{
			machine: m,
			path:    filepath.Join(dir, m.Key(), cfg.Import.FileName),
		})
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
		done int
	)
	for i, job := range jobs {
		wg.Add(1)
		go func(i int, job sampleJob) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(seed, uint64(i)))
			data := sampleRows(cfg.Columns, rows, rng, time.Now().AddDate(0, 0, -rows/10-1))

			err := writeSample(job.path, data)

			mu.Lock()
			defer mu.Unlock()
			done++
			if err != nil {
				errs = append(errs, fmt.Errorf("failed to write %s: %w", job.path, err))
				logger.LogResult("generate "+job.machine.Key(), false, err.Error())
				return
			}
			logger.LogProgress(done, len(jobs), fmt.Sprintf("%s (%d rows)", job.path, len(data)-1))
		}(i, job)
	}
	wg.Wait()

	if len(errs) > 0 {
		return errs[0]
	}
	logger.Println("All sample workbooks generated.")
	return nil
}

func sampleRows(cols config.ColumnsConfig, count int, rng *rand.Rand, start time.Time) [][]interface{} {
	header := []interface{}{
		cols.OrderNumber, cols.StartTime, cols.EndTime, cols.Duration,
		cols.ProducedCount, cols.ScrapCount, cols.MachinePerformance, cols.OperatorPerformance,
	}
	for _, op := range cols.Operators {
		header = append(header, op)
	}

	out := [][]interface{}{header}
	at := start.Truncate(time.Minute)
	for i := 0; i < count; i++ {
		took := time.Duration(30+rng.IntN(300)) * time.Minute
		end := at.Add(took)

		produced := 0
		if rng.IntN(5) > 0 {
			produced = 20 + rng.IntN(480)
		}

		row := []interface{}{
			fmt.Sprintf("SP-%05d", 1000+i),
			sampleTime(at, i%2 == 0),
			sampleTime(end, i%3 == 0),
			fmt.Sprintf("%02d:%02d", int(took.Hours()), int(took.Minutes())%60),
			produced,
			rng.IntN(produced/20 + 1),
			60 + rng.IntN(41),
			55 + rng.IntN(46),
		}
		crew := 1 + rng.IntN(3)
		for j := range cols.Operators {
			if j < crew {
				row = append(row, sampleOperators[rng.IntN(len(sampleOperators))])
			} else {
				row = append(row, nil)
			}
		}

		out = append(out, row)
		at = end.Add(time.Duration(rng.IntN(90)) * time.Minute)
	}
	return out
}

// sampleTime alternates the two date forms found in production exports
func sampleTime(t time.Time, locale bool) interface{} {
	if locale {
		return t.Format("02.01.2006 15:04")
	}
	local := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
	return local.Sub(serialEpoch).Hours() / 24
}

func writeSample(path string, rows [][]interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		r := row
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}
