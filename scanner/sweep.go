package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"production_data_import/logger"
)

// Job is one machine file to ingest during a sweep
type Job struct {
	Key      string
	FilePath string
	FileName string
}

// ProcessFunc ingests one job and reports the number of rows read
type ProcessFunc func(ctx context.Context, job Job) (int, error)

// SweepResult contains the result of processing one job
type SweepResult struct {
	Job      Job
	RowCount int
	Duration time.Duration
	Error    error
}

// Sweeper processes existing machine files in parallel
type Sweeper struct {
	workerCount int
}

// NewSweeper creates a sweeper with the given worker count, defaulting to the CPU count
func NewSweeper(workers int) *Sweeper {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > 8 {
		workers = 8
	}
	return &Sweeper{workerCount: workers}
}

// SetWorkerCount sets the number of parallel workers
func (s *Sweeper) SetWorkerCount(count int) {
	if count > 0 {
		s.workerCount = count
	}
}

// FindJobs keeps only the candidates whose file currently exists
func FindJobs(candidates []Job) []Job {
	var jobs []Job
	for _, job := range candidates {
		info, err := os.Stat(job.FilePath)
		if err != nil || info.IsDir() {
			continue
		}
		if job.FileName == "" {
			job.FileName = filepath.Base(job.FilePath)
		}
		jobs = append(jobs, job)
	}
	return jobs
}

// Run processes jobs with a bounded worker pool. Results keep the job order.
func (s *Sweeper) Run(ctx context.Context, jobs []Job, process ProcessFunc) []SweepResult {
	results := make([]SweepResult, len(jobs))
	if len(jobs) == 0 {
		return results
	}

	indexes := make(chan int, len(jobs))
	for i := range jobs {
		indexes <- i
	}
	close(indexes)

	workers := s.workerCount
	if workers > len(jobs) {
		workers = len(jobs)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				results[i] = s.processJob(ctx, jobs[i], process)
			}
		}()
	}
	wg.Wait()

	return results
}

func (s *Sweeper) processJob(ctx context.Context, job Job, process ProcessFunc) SweepResult {
	startTime := time.Now()
	result := SweepResult{Job: job}

	if err := ctx.Err(); err != nil {
		result.Error = err
		return result
	}

	logger.Debugf("Processing file: %s (%s)", job.FileName, job.Key)
	result.RowCount, result.Error = process(ctx, job)
	result.Duration = time.Since(startTime)
	return result
}

// DisplaySummary logs a summary of the sweep results
func DisplaySummary(results []SweepResult) {
	logger.Println(strings.Repeat("=", 60))
	logger.Println("SWEEP SUMMARY")
	logger.Println(strings.Repeat("=", 60))

	totalRows := 0
	successful := 0
	failed := 0
	totalDuration := time.Duration(0)

	for _, result := range results {
		if result.Error != nil {
			failed++
			logger.LogResult(result.Job.Key+"/"+result.Job.FileName, false, result.Error.Error())
		} else {
			successful++
			totalRows += result.RowCount
			logger.LogResult(result.Job.Key+"/"+result.Job.FileName, true,
				fmt.Sprintf("%d rows (%v)", result.RowCount, result.Duration.Round(time.Millisecond)))
		}
		totalDuration += result.Duration
	}

	logger.LogDivider()
	logger.Printf("Total files processed: %d", len(results))
	logger.Printf("Successful: %d", successful)
	logger.Printf("Failed: %d", failed)
	logger.Printf("Total rows read: %d", totalRows)
	logger.Printf("Total processing time: %v", totalDuration)
	logger.Println(strings.Repeat("=", 60))
}
