package models

import (
	"fmt"
	"time"
)

// AllKey is the store key of the global aggregate dataset
const AllKey = "all"

// Machine represents a production unit whose spreadsheet output is tracked independently
type Machine struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`

	// Generation is unique per registration, even when an id is reused.
	Generation uint64 `json:"-"`
}

// Key returns the store key and directory name of the machine
func (m Machine) Key() string {
	return MachineKey(m.ID)
}

// MachineKey builds the deterministic key for a machine id
func MachineKey(id int) string {
	return fmt.Sprintf("machine-%d", id)
}
