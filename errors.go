package playground

import (
	"errors"
	"fmt"
)

// ErrUnknownLanguage is returned when a tab identifier is not one of the supported languages.
var ErrUnknownLanguage = errors.New("unknown language")

// NotFoundError reports a template or scenario name missing from its catalog.
type NotFoundError struct {
	Kind string // "template", "scenario", "challenge"
	Name string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
