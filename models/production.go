package models

import "time"

// Upload sources
const (
	SourceManual = "manual"
	SourceAuto   = "auto"
)

// Placeholder used for missing order numbers and durations
const Placeholder = "-"

// ProductionRecord is one normalized spreadsheet row attributable to a work order
type ProductionRecord struct {
	ID                  int        `json:"id"`
	OrderNumber         string     `json:"orderNumber"`
	StartTime           *time.Time `json:"startTime"`
	EndTime             *time.Time `json:"endTime"`
	DurationRaw         string     `json:"durationRaw"`
	ProducedCount       uint       `json:"producedCount"`
	ScrapCount          uint       `json:"scrapCount"`
	MachinePerformance  uint       `json:"machinePerformance"`
	OperatorPerformance uint       `json:"operatorPerformance"`
	MachineID           int        `json:"machineId"`
	MachineName         string     `json:"machineName"`
}

// IsBlank reports whether the record carries neither an order number nor production
func (r ProductionRecord) IsBlank() bool {
	return r.OrderNumber == Placeholder && r.ProducedCount == 0
}

// MachineStats are the dashboard figures derived from one parse
type MachineStats struct {
	TotalProduction    uint `json:"totalProduction"`
	MachinePerformance uint `json:"machinePerformance"`
	ActiveOperators    uint `json:"activeOperators"`
	PendingOrders      uint `json:"pendingOrders"`

	// PerformanceSamples counts rows with a positive machine performance.
	PerformanceSamples uint `json:"-"`
}

// UploadedFileMeta describes a file that fed a machine dataset
type UploadedFileMeta struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Filename   string     `json:"filename"`
	Source     string     `json:"source"`
	RowCount   int        `json:"rowCount"`
	Columns    []string   `json:"columns"`
	SizeLabel  string     `json:"size"`
	UploadedAt time.Time  `json:"uploadDate"`
	LastUpdate *time.Time `json:"lastUpdate,omitempty"`
}

// MachineDataset is the complete state served for one store key
type MachineDataset struct {
	Stats         MachineStats       `json:"stats"`
	UploadedFiles []UploadedFileMeta `json:"uploadedFiles"`
	DetailRecords []ProductionRecord `json:"detailRecords"`
}

// Clone returns a deep copy so callers never share slices with the store
func (d MachineDataset) Clone() MachineDataset {
	out := MachineDataset{
		Stats:         d.Stats,
		UploadedFiles: make([]UploadedFileMeta, len(d.UploadedFiles)),
		DetailRecords: make([]ProductionRecord, len(d.DetailRecords)),
	}
	for i, f := range d.UploadedFiles {
		out.UploadedFiles[i] = f.clone()
	}
	copy(out.DetailRecords, d.DetailRecords)
	return out
}

func (f UploadedFileMeta) clone() UploadedFileMeta {
	if f.Columns != nil {
		f.Columns = append([]string(nil), f.Columns...)
	}
	if f.LastUpdate != nil {
		t := *f.LastUpdate
		f.LastUpdate = &t
	}
	return f
}

// ParseResult is returned to the upload subsystem for a manual ingestion
type ParseResult struct {
	Success     bool     `json:"success"`
	RowCount    int      `json:"rowCount,omitempty"`
	Columns     []string `json:"columns,omitempty"`
	Error       string   `json:"error,omitempty"`
	MachineKey  string   `json:"machineKey,omitempty"`
	DetailCount int      `json:"detailRecords,omitempty"`
}

// RawRow maps raw header text to the raw cell text of one spreadsheet row
type RawRow map[string]string
