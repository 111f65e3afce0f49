package engine

import "errors"

var (
	ErrUnavailable = errors.New("container engine unavailable")
	ErrUnknown     = errors.New("unknown container engine")
	ErrBuild       = errors.New("build failed")
	ErrImageLoad   = errors.New("image load failed")
)
