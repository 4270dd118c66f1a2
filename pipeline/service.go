// Package pipeline wires the machine registry, the per-machine watchers and
// the parse/normalize/aggregate chain into one service.
//
// Every ingestion for a machine, automatic or manual, runs under that
// machine's mutex. Results for a machine that was removed while its file was
// being parsed are dropped when the store rejects the upsert.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"production_data_import/config"
	"production_data_import/logger"
	"production_data_import/models"
	"production_data_import/normalizer"
	"production_data_import/registry"
	"production_data_import/scanner"
	"production_data_import/stats"
	"production_data_import/store"
	"production_data_import/watcher"
)

// LockFileName is created in the import root while watching
const LockFileName = ".import.lock"

// HistoryRecorder persists one row per ingestion attempt
type HistoryRecorder interface {
	Record(ctx context.Context, entry *models.ImportLog) error
}

// Service is the ingestion core
type Service struct {
	cfg        *config.Config
	registry   *registry.Registry
	store      *store.Store
	ingestor   *scanner.Ingestor
	normalizer *normalizer.Normalizer
	aggregator *stats.Aggregator
	sweeper    *scanner.Sweeper
	history    HistoryRecorder
	log        *zap.SugaredLogger
	now        func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	watchMu  sync.Mutex
	watching bool
	watchCtx context.Context
	watchers map[string]*watcher.Watcher
	lock     *flock.Flock
}

// New creates the import root, registers the configured machines and
// provisions a directory and an empty dataset for each. history may be nil.
func New(cfg *config.Config, history HistoryRecorder) (*Service, error) {
	loc, err := cfg.TimeLocation()
	if err != nil {
		return nil, err
	}

	root := cfg.Import.RootDir
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create import root %s: %w", root, err)
	}

	aggregator := stats.NewAggregator(cfg.Import.PerformanceWeighting)
	s := &Service{
		cfg:        cfg,
		registry:   registry.New(),
		store:      store.New(aggregator.Global),
		ingestor:   scanner.NewIngestor(),
		normalizer: normalizer.New(cfg.Columns, loc),
		aggregator: aggregator,
		sweeper:    scanner.NewSweeper(cfg.Import.SweepWorkers),
		history:    history,
		log:        logger.With("component", "pipeline"),
		now:        time.Now,
		locks:      make(map[string]*sync.Mutex),
		watchers:   make(map[string]*watcher.Watcher),
		lock:       flock.New(filepath.Join(root, LockFileName)),
	}
	s.store.Init()

	for _, name := range cfg.Import.Machines {
		if _, err := s.registry.Add(name, s.provision); err != nil {
			if errors.Is(err, models.ErrValidation) {
				continue
			}
			return nil, err
		}
	}
	if s.registry.Len() == 0 {
		return nil, fmt.Errorf("%w: no machine configured", models.ErrValidation)
	}

	return s, nil
}

// SetSweepWorkers overrides the number of files ingested in parallel by Scan
func (s *Service) SetSweepWorkers(n int) {
	s.sweeper.SetWorkerCount(n)
}

// MachineDir returns the directory a machine's spreadsheet lives in
func (s *Service) MachineDir(m models.Machine) string {
	return filepath.Join(s.cfg.Import.RootDir, m.Key())
}

// MachineFile returns the single file watched for a machine
func (s *Service) MachineFile(m models.Machine) string {
	return filepath.Join(s.MachineDir(m), s.cfg.Import.FileName)
}

func (s *Service) provision(m models.Machine) error {
	dir := s.MachineDir(m)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create machine directory %s: %w", dir, err)
	}
	s.store.Create(m.Key(), m.Generation)
	return nil
}

// ListMachines returns the machines in insertion order
func (s *Service) ListMachines() []models.Machine {
	return s.registry.List()
}

// AddMachine registers a machine, provisions its directory and dataset and
// starts its watcher when watching is active
func (s *Service) AddMachine(name string) (models.Machine, error) {
	m, err := s.registry.Add(name, s.provision)
	if err != nil {
		return models.Machine{}, err
	}
	s.log.Infow("machine added", "machine", m.Key(), "name", m.Name)

	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.activeLocked() {
		if err := s.startWatcherLocked(m); err != nil {
			s.log.Warnw("failed to start watcher", "machine", m.Key(), "error", err)
		}
	}
	return m, nil
}

// RemoveMachine unregisters a machine, drops its dataset and stops its watcher.
// The last remaining machine can never be removed.
func (s *Service) RemoveMachine(id int) (models.Machine, error) {
	m, err := s.registry.Remove(id)
	if err != nil {
		return models.Machine{}, err
	}
	key := m.Key()

	if err := s.store.Remove(key); err != nil && !errors.Is(err, models.ErrNotFound) {
		return m, err
	}

	s.watchMu.Lock()
	w := s.watchers[key]
	delete(s.watchers, key)
	s.watchMu.Unlock()
	if w != nil {
		w.Stop()
	}

	s.log.Infow("machine removed", "machine", key, "name", m.Name)
	return m, nil
}

// GetDataset returns the dataset for a machine key or "all"
func (s *Service) GetDataset(key string) (models.MachineDataset, error) {
	return s.store.Get(key)
}

// IngestManualFile parses an uploaded file into the target machine's dataset.
// A nil target selects the first registered machine. The upload entry itself
// is recorded separately through RecordUpload.
func (s *Service) IngestManualFile(ctx context.Context, path, originalName string, targetMachineID *int) models.ParseResult {
	var (
		m  models.Machine
		ok bool
	)
	if targetMachineID == nil {
		machines := s.registry.List()
		if len(machines) > 0 {
			m, ok = machines[0], true
		}
	} else {
		m, ok = s.registry.Get(*targetMachineID)
	}
	if !ok {
		err := fmt.Errorf("%w: target machine", models.ErrNotFound)
		if targetMachineID != nil {
			err = fmt.Errorf("%w: machine %d", models.ErrNotFound, *targetMachineID)
		}
		return models.ParseResult{Error: err.Error()}
	}

	if originalName == "" {
		originalName = filepath.Base(path)
	}
	result, _ := s.ingest(ctx, m, path, originalName, models.SourceManual)
	return result
}

// NewManualUpload builds the upload entry for a successful manual ingestion
func NewManualUpload(path, originalName string, result models.ParseResult) models.UploadedFileMeta {
	meta := models.UploadedFileMeta{
		Name:     originalName,
		Filename: filepath.Base(path),
		Source:   models.SourceManual,
		RowCount: result.RowCount,
		Columns:  append([]string(nil), result.Columns...),
	}
	if info, err := os.Stat(path); err == nil {
		meta.SizeLabel = humanize.Bytes(uint64(info.Size()))
	}
	return meta
}

// RecordUpload adds a manual upload entry to a machine's history.
// Missing ids and timestamps are filled in.
func (s *Service) RecordUpload(machineKey string, meta models.UploadedFileMeta) error {
	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	if meta.UploadedAt.IsZero() {
		meta.UploadedAt = s.now()
	}
	meta.Source = models.SourceManual
	return s.store.AddUpload(machineKey, meta)
}

// ingest runs parse, normalize and aggregate for one file and commits the
// result. The returned error mirrors a failed ParseResult.
func (s *Service) ingest(ctx context.Context, m models.Machine, path, name, source string) (models.ParseResult, error) {
	key := m.Key()
	mu := s.machineLock(key)
	mu.Lock()
	defer mu.Unlock()

	started := s.now()
	result, err := s.process(m, path, name, source)
	if err != nil {
		result = models.ParseResult{Error: err.Error(), MachineKey: key}
		if errors.Is(err, models.ErrNotFound) {
			s.log.Debugw("dropping result for removed machine", "machine", key, "file", name)
		} else {
			s.log.Warnw("ingestion failed", "machine", key, "file", name, "source", source, "error", err)
		}
	} else {
		s.log.Infow("ingested", "machine", key, "file", name, "source", source,
			"rows", result.RowCount, "details", result.DetailCount)
	}

	s.recordHistory(ctx, key, name, source, result, s.now().Sub(started))
	return result, err
}

func (s *Service) process(m models.Machine, path, name, source string) (models.ParseResult, error) {
	key := m.Key()
	parsed, err := s.ingestor.Parse(path)
	if err != nil {
		return models.ParseResult{}, err
	}

	rows := s.normalizer.Normalize(parsed.Rows, m)
	update := store.Update{
		Generation: m.Generation,
		Stats:      s.aggregator.ForMachine(rows),
		Records:    normalizer.DetailRecords(rows),
	}
	if source == models.SourceAuto {
		update.File = s.autoUpload(key, path, name, parsed)
	}

	if err := s.store.Upsert(key, update); err != nil {
		return models.ParseResult{}, err
	}

	return models.ParseResult{
		Success:     true,
		RowCount:    len(parsed.Rows),
		Columns:     parsed.Columns,
		MachineKey:  key,
		DetailCount: len(update.Records),
	}, nil
}

func (s *Service) autoUpload(key, path, name string, parsed *scanner.Result) *models.UploadedFileMeta {
	now := s.now()
	meta := &models.UploadedFileMeta{
		ID:         "auto-" + key,
		Name:       name,
		Filename:   filepath.Base(path),
		Source:     models.SourceAuto,
		RowCount:   len(parsed.Rows),
		Columns:    parsed.Columns,
		UploadedAt: now,
		LastUpdate: &now,
	}
	if info, err := os.Stat(path); err == nil {
		meta.SizeLabel = humanize.Bytes(uint64(info.Size()))
	}
	return meta
}

func (s *Service) recordHistory(ctx context.Context, key, name, source string, result models.ParseResult, took time.Duration) {
	if s.history == nil {
		return
	}
	entry := &models.ImportLog{
		MachineKey:  key,
		FileName:    name,
		Source:      source,
		Success:     result.Success,
		RowCount:    result.RowCount,
		DetailCount: result.DetailCount,
		Error:       result.Error,
		DurationMS:  took.Milliseconds(),
	}
	// a stopping watcher still gets its attempt written
	if err := s.history.Record(context.WithoutCancel(ctx), entry); err != nil {
		s.log.Warnw("failed to record import history", "machine", key, "error", err)
	}
}

// machineLock returns the mutex for a key. Entries are never dropped: a parse
// for a removed machine may still hold it when the id is handed out again.
func (s *Service) machineLock(key string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	mu, ok := s.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[key] = mu
	}
	return mu
}
