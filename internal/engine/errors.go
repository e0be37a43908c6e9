package engine

import "errors"

var (
	// Wraps every failure originating from the containerd engine.
	ErrEngine = errors.New("engine error")

	// The engine socket could not be reached. Callers degrade to the
	// operations that work without an engine.
	ErrUnavailable = errors.New("engine unavailable")

	ErrEmptyIndex = errors.New("empty image index")
)
