package pipeline

import "errors"

var (
	ErrConfig = errors.New("invalid configuration")
	ErrRun    = errors.New("container exited with failure")
)
