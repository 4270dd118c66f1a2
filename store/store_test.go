package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"production_data_import/config"
	"production_data_import/models"
	"production_data_import/stats"
)

func newTestStore(keys ...string) *Store {
	s := New(stats.NewAggregator(config.WeightingMachine).Global)
	s.Init(keys...)
	return s
}

func pendingSum(t *testing.T, s *Store) uint {
	t.Helper()
	var sum uint
	for _, key := range s.Keys() {
		ds, err := s.Get(key)
		require.NoError(t, err)
		sum += ds.Stats.PendingOrders
	}
	return sum
}

func TestInit_CreatesEmptyDatasets(t *testing.T) {
	s := newTestStore("machine-1", "machine-2", models.AllKey)

	require.Equal(t, []string{"machine-1", "machine-2"}, s.Keys())

	ds, err := s.Get("machine-1")
	require.NoError(t, err)
	require.Equal(t, models.MachineStats{}, ds.Stats)
	require.NotNil(t, ds.UploadedFiles)
	require.NotNil(t, ds.DetailRecords)

	all, err := s.Get(models.AllKey)
	require.NoError(t, err)
	require.Equal(t, models.MachineStats{}, all.Stats)

	_, err = s.Get("machine-9")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestUpsert_ReplacesWholeDatasetAndRecomputesAll(t *testing.T) {
	s := newTestStore("machine-1", "machine-2")

	require.NoError(t, s.Upsert("machine-1", Update{
		Stats:   models.MachineStats{TotalProduction: 10, MachinePerformance: 80, ActiveOperators: 2, PendingOrders: 1},
		Records: []models.ProductionRecord{{ID: 1, OrderNumber: "A"}, {ID: 2, OrderNumber: "B"}},
	}))
	require.NoError(t, s.Upsert("machine-2", Update{
		Stats:   models.MachineStats{TotalProduction: 5, MachinePerformance: 60, ActiveOperators: 1, PendingOrders: 3},
		Records: []models.ProductionRecord{{ID: 1, OrderNumber: "C"}},
	}))

	// a second parse replaces, never appends
	require.NoError(t, s.Upsert("machine-1", Update{
		Stats:   models.MachineStats{TotalProduction: 7, MachinePerformance: 90, ActiveOperators: 1, PendingOrders: 2},
		Records: []models.ProductionRecord{{ID: 1, OrderNumber: "D"}},
	}))

	m1, err := s.Get("machine-1")
	require.NoError(t, err)
	require.Equal(t, []models.ProductionRecord{{ID: 1, OrderNumber: "D"}}, m1.DetailRecords)

	all, err := s.Get(models.AllKey)
	require.NoError(t, err)
	require.Equal(t, uint(12), all.Stats.TotalProduction)
	require.Equal(t, uint(75), all.Stats.MachinePerformance)
	require.Equal(t, uint(2), all.Stats.ActiveOperators)
	require.Equal(t, pendingSum(t, s), all.Stats.PendingOrders)

	var orders []string
	for _, r := range all.DetailRecords {
		orders = append(orders, r.OrderNumber)
	}
	require.Equal(t, []string{"D", "C"}, orders)
}

func TestUpsert_AutoEntryMergedInPlaceManualPrepended(t *testing.T) {
	s := newTestStore("machine-1")
	t0 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	auto := func(rows int, at time.Time) *models.UploadedFileMeta {
		return &models.UploadedFileMeta{
			ID: "auto-machine-1", Name: "data.xlsx", Filename: "data.xlsx",
			Source: models.SourceAuto, RowCount: rows, UploadedAt: at, LastUpdate: &at,
		}
	}

	require.NoError(t, s.Upsert("machine-1", Update{File: auto(10, t0)}))
	require.NoError(t, s.AddUpload("machine-1", models.UploadedFileMeta{ID: "m-1", Source: models.SourceManual, UploadedAt: t0.Add(time.Minute)}))
	require.NoError(t, s.AddUpload("machine-1", models.UploadedFileMeta{ID: "m-2", Source: models.SourceManual, UploadedAt: t0.Add(2 * time.Minute)}))
	require.NoError(t, s.Upsert("machine-1", Update{File: auto(12, t0.Add(time.Hour))}))

	ds, err := s.Get("machine-1")
	require.NoError(t, err)
	require.Len(t, ds.UploadedFiles, 3)

	var ids []string
	autoCount := 0
	for _, f := range ds.UploadedFiles {
		ids = append(ids, f.ID)
		if f.Source == models.SourceAuto {
			autoCount++
		}
	}
	require.Equal(t, []string{"m-2", "m-1", "auto-machine-1"}, ids)
	require.Equal(t, 1, autoCount)

	refreshed := ds.UploadedFiles[2]
	require.Equal(t, 12, refreshed.RowCount)
	require.Equal(t, t0, refreshed.UploadedAt)
	require.Equal(t, t0.Add(time.Hour), *refreshed.LastUpdate)
}

func TestRemove_DropsDatasetAndRejectsLateUpserts(t *testing.T) {
	s := newTestStore("machine-1", "machine-2")
	require.NoError(t, s.Upsert("machine-2", Update{Stats: models.MachineStats{TotalProduction: 40, PendingOrders: 4}}))

	require.NoError(t, s.Remove("machine-2"))
	require.False(t, s.Has("machine-2"))
	require.ErrorIs(t, s.Remove("machine-2"), models.ErrNotFound)

	err := s.Upsert("machine-2", Update{Stats: models.MachineStats{TotalProduction: 99}})
	require.ErrorIs(t, err, models.ErrNotFound)
	require.ErrorIs(t, s.AddUpload("machine-2", models.UploadedFileMeta{ID: "x"}), models.ErrNotFound)

	all, err := s.Get(models.AllKey)
	require.NoError(t, err)
	require.Zero(t, all.Stats.TotalProduction)
	require.Equal(t, pendingSum(t, s), all.Stats.PendingOrders)
}

func TestGet_ReturnsIndependentCopy(t *testing.T) {
	s := newTestStore("machine-1")
	require.NoError(t, s.Upsert("machine-1", Update{
		Records: []models.ProductionRecord{{ID: 1, OrderNumber: "A"}},
		File:    &models.UploadedFileMeta{ID: "auto-machine-1", Source: models.SourceAuto, Columns: []string{"A"}},
	}))

	ds, err := s.Get("machine-1")
	require.NoError(t, err)
	ds.DetailRecords[0].OrderNumber = "mutated"
	ds.UploadedFiles[0].Columns[0] = "mutated"

	again, err := s.Get("machine-1")
	require.NoError(t, err)
	require.Equal(t, "A", again.DetailRecords[0].OrderNumber)
	require.Equal(t, "A", again.UploadedFiles[0].Columns[0])
}

func TestReset(t *testing.T) {
	s := newTestStore("machine-1")
	require.NoError(t, s.Upsert("machine-1", Update{Stats: models.MachineStats{TotalProduction: 3}}))

	s.Reset()
	require.Empty(t, s.Keys())

	s.Create("machine-4", 0)
	s.Create("machine-4", 0)
	require.Equal(t, []string{"machine-4"}, s.Keys())
	all, err := s.Get(models.AllKey)
	require.NoError(t, err)
	require.Zero(t, all.Stats.TotalProduction)
}

func TestUpsert_RejectsStaleGeneration(t *testing.T) {
	s := newTestStore()
	s.Create("machine-2", 1)
	require.NoError(t, s.Upsert("machine-2", Update{Generation: 1, Stats: models.MachineStats{TotalProduction: 5}}))

	// the key is recreated for a new machine that reuses the id
	require.NoError(t, s.Remove("machine-2"))
	s.Create("machine-2", 2)

	err := s.Upsert("machine-2", Update{
		Generation: 1,
		Stats:      models.MachineStats{TotalProduction: 105},
		Records:    []models.ProductionRecord{{ID: 1, MachineName: "Makina 2"}},
	})
	require.ErrorIs(t, err, models.ErrNotFound)

	ds, err := s.Get("machine-2")
	require.NoError(t, err)
	require.Zero(t, ds.Stats.TotalProduction)
	require.Empty(t, ds.DetailRecords)

	require.NoError(t, s.Upsert("machine-2", Update{Generation: 2, Stats: models.MachineStats{TotalProduction: 7}}))
	all, err := s.Get(models.AllKey)
	require.NoError(t, err)
	require.Equal(t, uint(7), all.Stats.TotalProduction)
}
