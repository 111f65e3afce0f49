package buildpack

import "errors"

var (
	ErrNoBuildpack     = errors.New("no buildpack found for repository")
	ErrUnknownAncestor = errors.New("unknown ancestor in catalog")
)
