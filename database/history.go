package database

import (
	"context"
	"fmt"

	"production_data_import/models"

	"gorm.io/gorm"
)

// History stores import attempts in the history database
type History struct {
	db *gorm.DB
}

// NewHistory creates a history repository on top of an open connection
func NewHistory(db *gorm.DB) *History {
	return &History{db: db}
}

// Record appends one import attempt. Text longer than its column is cut.
func (h *History) Record(ctx context.Context, entry *models.ImportLog) error {
	entry.FileName = truncateRunes(entry.FileName, models.MaxImportFileNameLen)
	entry.Error = truncateRunes(entry.Error, models.MaxImportErrorLen)
	if err := h.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to record import of %s: %w", entry.FileName, err)
	}
	return nil
}

// Recent returns the newest import attempts, optionally limited to one machine key
func (h *History) Recent(ctx context.Context, machineKey string, limit int) ([]models.ImportLog, error) {
	if limit <= 0 {
		limit = 50
	}

	query := h.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Limit(limit)
	if machineKey != "" {
		query = query.Where("machine_key = ?", machineKey)
	}

	var entries []models.ImportLog
	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to load import history: %w", err)
	}
	return entries, nil
}

// MachineSummary aggregates import attempts per machine
type MachineSummary struct {
	MachineKey string
	Attempts   int64
	Failures   int64
	RowTotal   int64
}

// Summary counts attempts, failures and imported rows per machine key
func (h *History) Summary(ctx context.Context) ([]MachineSummary, error) {
	var out []MachineSummary
	err := h.db.WithContext(ctx).
		Model(&models.ImportLog{}).
		Select("machine_key, COUNT(*) AS attempts, " +
			"SUM(CASE WHEN success THEN 0 ELSE 1 END) AS failures, " +
			"SUM(CASE WHEN success THEN row_count ELSE 0 END) AS row_total").
		Group("machine_key").
		Order("machine_key").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to summarize import history: %w", err)
	}
	return out, nil
}

// truncateRunes keeps at most n characters of s
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
