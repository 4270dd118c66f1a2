package models

import (
	"time"
)

// Column sizes of the free-text import log fields, in characters
const (
	MaxImportFileNameLen = 255
	MaxImportErrorLen    = 1024
)

// ImportLog records one ingestion attempt for the history view
type ImportLog struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	MachineKey  string    `gorm:"index:idx_import_logs_machine;not null;size:64" json:"machine_key"`
	FileName    string    `gorm:"not null;size:255" json:"file_name"`
	Source      string    `gorm:"not null;size:16" json:"source"`
	Success     bool      `gorm:"not null" json:"success"`
	RowCount    int       `gorm:"not null;default:0" json:"row_count"`
	DetailCount int       `gorm:"not null;default:0" json:"detail_count"`
	Error       string    `gorm:"size:1024" json:"error,omitempty"`
	DurationMS  int64     `gorm:"not null;default:0" json:"duration_ms"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index:idx_import_logs_machine" json:"created_at"`
}

// TableName customizes the table name
func (ImportLog) TableName() string {
	return "import_logs"
}

// GetAllModels returns all models for migration
func GetAllModels() []interface{} {
	return []interface{}{
		&ImportLog{},
	}
}
