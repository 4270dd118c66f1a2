// Package store holds the current dataset for every machine key plus the
// derived "all" dataset.
//
// The "all" entry is never written directly: it is rebuilt under the store
// lock after every change to a machine entry, so readers always see global
// figures that match the per-machine figures.
package store

import (
	"fmt"
	"sort"
	"sync"

	"production_data_import/models"
)

// GlobalFunc folds per-machine stats, in machine order, into the global stats
type GlobalFunc func(perMachine []models.MachineStats) models.MachineStats

// Update is the result of one successful parse
type Update struct {
	// Generation must match the one the dataset was created with.
	Generation uint64

	Stats   models.MachineStats
	Records []models.ProductionRecord
	// File, when set, is merged into the upload history.
	File *models.UploadedFileMeta
}

// Store is the in-memory dataset table
type Store struct {
	mu     sync.RWMutex
	order  []string
	data   map[string]*models.MachineDataset
	gens   map[string]uint64
	all    models.MachineDataset
	global GlobalFunc
}

// New creates an empty store
func New(global GlobalFunc) *Store {
	s := &Store{global: global}
	s.Reset()
	return s
}

// Init resets the store and creates empty datasets for keys
func (s *Store) Init(keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reset()
	for _, key := range keys {
		s.create(key, 0)
	}
	s.recompute()
}

// Reset drops every machine dataset
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reset()
	s.recompute()
}

func (s *Store) reset() {
	s.order = nil
	s.data = make(map[string]*models.MachineDataset)
	s.gens = make(map[string]uint64)
}

// Create adds an empty dataset for key owned by the given machine generation.
// Existing keys are left as they are.
func (s *Store) Create(key string, generation uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.create(key, generation)
	s.recompute()
}

func (s *Store) create(key string, generation uint64) {
	if key == models.AllKey {
		return
	}
	if _, ok := s.data[key]; ok {
		return
	}
	s.order = append(s.order, key)
	s.gens[key] = generation
	s.data[key] = &models.MachineDataset{
		UploadedFiles: []models.UploadedFileMeta{},
		DetailRecords: []models.ProductionRecord{},
	}
}

// Upsert replaces stats and detail records for key and merges the optional file entry.
// It fails with ErrNotFound when the key has been removed or now belongs to
// a later generation of the machine.
func (s *Store) Upsert(key string, u Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ds, ok := s.data[key]
	if !ok {
		return fmt.Errorf("%w: dataset %s", models.ErrNotFound, key)
	}
	if gen := s.gens[key]; gen != u.Generation {
		return fmt.Errorf("%w: dataset %s generation %d, update for %d", models.ErrNotFound, key, gen, u.Generation)
	}

	records := make([]models.ProductionRecord, len(u.Records))
	copy(records, u.Records)

	ds.Stats = u.Stats
	ds.DetailRecords = records
	if u.File != nil {
		ds.UploadedFiles = mergeUpload(ds.UploadedFiles, *u.File)
	}

	s.recompute()
	return nil
}

// AddUpload records a file entry without touching stats or detail records
func (s *Store) AddUpload(key string, meta models.UploadedFileMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ds, ok := s.data[key]
	if !ok {
		return fmt.Errorf("%w: dataset %s", models.ErrNotFound, key)
	}
	ds.UploadedFiles = mergeUpload(ds.UploadedFiles, meta)

	s.recompute()
	return nil
}

// mergeUpload keeps one entry per id: auto entries update in place, new manual entries go first
func mergeUpload(files []models.UploadedFileMeta, meta models.UploadedFileMeta) []models.UploadedFileMeta {
	for i := range files {
		if files[i].ID != meta.ID {
			continue
		}
		if files[i].Source == models.SourceAuto && meta.Source == models.SourceAuto {
			// first-seen time stays; the refresh moves lastUpdate
			meta.UploadedAt = files[i].UploadedAt
		}
		files[i] = meta
		return files
	}
	return append([]models.UploadedFileMeta{meta}, files...)
}

// Get returns a copy of the dataset for key, including "all"
func (s *Store) Get(key string) (models.MachineDataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if key == models.AllKey {
		return s.all.Clone(), nil
	}
	ds, ok := s.data[key]
	if !ok {
		return models.MachineDataset{}, fmt.Errorf("%w: dataset %s", models.ErrNotFound, key)
	}
	return ds.Clone(), nil
}

// Has reports whether a machine dataset exists for key
func (s *Store) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[key]
	return ok
}

// Remove deletes the dataset for key and recomputes "all"
func (s *Store) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[key]; !ok {
		return fmt.Errorf("%w: dataset %s", models.ErrNotFound, key)
	}
	delete(s.data, key)
	delete(s.gens, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}

	s.recompute()
	return nil
}

// Keys returns the machine keys in creation order
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// recompute rebuilds "all" from the machine datasets; callers hold the write lock
func (s *Store) recompute() {
	perMachine := make([]models.MachineStats, 0, len(s.order))
	all := models.MachineDataset{
		UploadedFiles: []models.UploadedFileMeta{},
		DetailRecords: []models.ProductionRecord{},
	}

	for _, key := range s.order {
		ds := s.data[key]
		perMachine = append(perMachine, ds.Stats)
		all.DetailRecords = append(all.DetailRecords, ds.DetailRecords...)
		all.UploadedFiles = append(all.UploadedFiles, ds.UploadedFiles...)
	}

	sort.SliceStable(all.UploadedFiles, func(i, j int) bool {
		return all.UploadedFiles[i].UploadedAt.After(all.UploadedFiles[j].UploadedAt)
	})

	if s.global != nil {
		all.Stats = s.global(perMachine)
	}
	// the copy held for "all" must not alias machine slices
	s.all = all.Clone()
}
