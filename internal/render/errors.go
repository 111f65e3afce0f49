package render

import "errors"

var ErrRender = errors.New("rendering build context failed")
