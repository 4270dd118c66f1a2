package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"

	"production_data_import/models"
	"production_data_import/scanner"
	"production_data_import/watcher"
)

// Errors returned when a watch session cannot start
var (
	ErrWatchLocked = errors.New("import root is watched by another process")
	ErrWatchEnded  = errors.New("watch session context is done")
)

// WatchStatus is the watch session of every registered machine
type WatchStatus struct {
	Watching   bool                      `json:"watching"`
	PerMachine map[string]watcher.Status `json:"perMachine"`
}

// StartWatching takes the import root lock, starts a watcher per machine
// and then sweeps the files already present.
func (s *Service) StartWatching(ctx context.Context) error {
	s.watchMu.Lock()
	if s.watching && s.watchCtx.Err() != nil {
		// the previous session's context is done, release it first
		s.watchMu.Unlock()
		s.StopWatching()
		s.watchMu.Lock()
	}
	if s.watching {
		s.watchMu.Unlock()
		return nil
	}

	ok, err := s.lock.TryLock()
	if err != nil {
		s.watchMu.Unlock()
		return fmt.Errorf("acquire import lock: %w", err)
	}
	if !ok {
		s.watchMu.Unlock()
		return ErrWatchLocked
	}

	s.watchCtx = ctx
	s.watching = true
	for _, m := range s.registry.List() {
		if err := s.startWatcherLocked(m); err != nil {
			s.watchMu.Unlock()
			s.StopWatching()
			return err
		}
	}
	s.watchMu.Unlock()

	s.log.Infow("watching started", "root", s.cfg.Import.RootDir, "threshold", s.cfg.StabilityThreshold())
	s.Scan(ctx)
	return nil
}

// startWatcherLocked requires watchMu
func (s *Service) startWatcherLocked(m models.Machine) error {
	key := m.Key()
	if _, ok := s.watchers[key]; ok {
		return nil
	}
	if err := s.watchCtx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrWatchEnded, err)
	}

	w := watcher.New(s.MachineFile(m), s.cfg.StabilityThreshold(), func(ctx context.Context, path string) error {
		_, err := s.ingest(ctx, m, path, s.cfg.Import.FileName, models.SourceAuto)
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return err
	})
	if err := w.Start(s.watchCtx); err != nil {
		return fmt.Errorf("failed to watch %s: %w", key, err)
	}
	s.watchers[key] = w
	return nil
}

// StopWatching stops every watcher and releases the import root lock
func (s *Service) StopWatching() {
	s.watchMu.Lock()
	if !s.watching {
		s.watchMu.Unlock()
		return
	}
	s.watching = false
	watchers := s.watchers
	s.watchers = make(map[string]*watcher.Watcher)
	s.watchMu.Unlock()

	for _, w := range watchers {
		w.Stop()
	}
	if err := s.lock.Unlock(); err != nil {
		s.log.Warnw("failed to release import lock", "error", err)
	}
	s.log.Infow("watching stopped")
}

// IsWatching reports whether the watch session is active.
// A session whose context was cancelled is no longer active.
func (s *Service) IsWatching() bool {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	return s.activeLocked()
}

func (s *Service) activeLocked() bool {
	return s.watching && s.watchCtx.Err() == nil
}

// GetWatchStatus reports the watch session per machine key
func (s *Service) GetWatchStatus() WatchStatus {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	status := WatchStatus{
		Watching:   s.activeLocked(),
		PerMachine: make(map[string]watcher.Status),
	}
	for _, m := range s.registry.List() {
		if w, ok := s.watchers[m.Key()]; ok {
			status.PerMachine[m.Key()] = w.Status()
			continue
		}
		path := s.MachineFile(m)
		st := watcher.Status{WatchPath: path, State: watcher.Idle.String()}
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			st.FileExists = true
		}
		status.PerMachine[m.Key()] = st
	}
	return status
}

// Scan ingests the current file of every machine once
func (s *Service) Scan(ctx context.Context) []scanner.SweepResult {
	machines := make(map[string]models.Machine)
	var candidates []scanner.Job
	for _, m := range s.registry.List() {
		machines[m.Key()] = m
		candidates = append(candidates, scanner.Job{
			Key:      m.Key(),
			FilePath: s.MachineFile(m),
			FileName: s.cfg.Import.FileName,
		})
	}

	jobs := scanner.FindJobs(candidates)
	if len(jobs) == 0 {
		s.log.Infow("no machine files to sweep", "root", s.cfg.Import.RootDir)
		return nil
	}

	results := s.sweeper.Run(ctx, jobs, func(ctx context.Context, job scanner.Job) (int, error) {
		result, err := s.ingest(ctx, machines[job.Key], job.FilePath, job.FileName, models.SourceAuto)
		return result.RowCount, err
	})
	scanner.DisplaySummary(results)
	return results
}

// Close stops watching
func (s *Service) Close() error {
	s.StopWatching()
	return nil
}
