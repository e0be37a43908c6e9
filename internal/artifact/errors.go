package artifact

import "errors"

var (
	ErrResolution = errors.New("resolution failed")
	ErrMatrix     = errors.New("invalid version matrix")
)
