package interfaces

import (
	"errors"
)

// Not-found sentinels wrapped by storage implementations so callers can
// distinguish a missing record from a lookup failure.
var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrRunNotFound      = errors.New("run not found")
	ErrDiffNotFound     = errors.New("diff not found")
)
