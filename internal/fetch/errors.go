package fetch

import "errors"

var (
	ErrFetch  = errors.New("repository fetch failed")
	ErrSubdir = errors.New("invalid subdirectory")
)
