package assessment

import (
	"github.com/pkg/errors"

	"github.com/mind-engage/mindengage-assessment/internal/rbac"
)

// Error taxonomy. Callers classify with errors.Is; the HTTP layer maps each
// class onto a status code.
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrInvalidState = errors.New("invalid state")
	ErrForbidden    = rbac.ErrForbidden
	ErrConflict     = errors.New("conflict")
)

func notFound(format string, args ...interface{}) error {
	return errors.Wrapf(ErrNotFound, format, args...)
}

func invalid(format string, args ...interface{}) error {
	return errors.Wrapf(ErrValidation, format, args...)
}

func invalidState(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidState, format, args...)
}

func conflict(format string, args ...interface{}) error {
	return errors.Wrapf(ErrConflict, format, args...)
}
