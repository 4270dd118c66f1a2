package models

import "errors"

// Sentinel errors shared by the registry, store and pipeline.
// Callers wrap them with context and match with errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrInvariant  = errors.New("invariant violation")
	ErrNotFound   = errors.New("not found")
)
