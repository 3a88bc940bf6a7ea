package thermal

import "errors"

var (
	ErrInvalidParameter = errors.New("invalid thermal model parameter")
	ErrInvalidAction    = errors.New("invalid action")
)
