package parser

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	// ErrEndOfFileAlreadyMarked is returned when end of input is marked twice.
	ErrEndOfFileAlreadyMarked = errors.New("end of file already marked")
	// ErrInvalidConfig wraps every configuration validation failure.
	ErrInvalidConfig = errors.New("invalid parser config")
	// ErrDetached is returned by operations that need a live parser.
	ErrDetached = errors.New("parser detached")
)

// assertion reports broken internal invariants. With fatal set a failure
// panics, otherwise it is logged and the caller refuses the operation.
type assertion struct {
	fatal bool
	log   logrus.FieldLogger
}

func (a assertion) check(cond bool, format string, args ...interface{}) bool {
	if cond {
		return true
	}
	err := errors.Errorf(format, args...)
	if a.fatal {
		panic(err)
	}
	a.log.WithError(err).Error("parser invariant violated")
	return false
}
