package simulate

import "errors"

// Error kinds surfaced to callers. Wrapped errors carry the detail;
// match with errors.Is.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrSimulation   = errors.New("simulation failed")
	ErrInternal     = errors.New("internal error")
)
