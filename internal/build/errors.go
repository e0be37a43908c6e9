package build

import "errors"

var (
	ErrBuild = errors.New("build failed")
	ErrCopy  = errors.New("copy failed")
)
