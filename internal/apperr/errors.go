package apperr

import "errors"

var (
	ErrNotFound   = errors.New("not found")
	ErrInvalidPID = errors.New("invalid pid")
	ErrClosed     = errors.New("monitor closed")
)
