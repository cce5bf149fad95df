package domain

import "errors"

// Error taxonomy shared by services and adapters. Wrap with fmt.Errorf("...: %w", Err...).
var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrInvalidInput        = errors.New("invalid input")
)
