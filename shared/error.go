package shared

import (
	"errors"
	"fmt"
)

type ErrorSource int

const (
	ErrorSourceInput ErrorSource = iota
	ErrorSourceProvider
	ErrorSourceStorage
	ErrorSourceSystem
	ErrorSourceUnknown
)

// NeuroError attaches an origin to an error so the API layer can decide
// whether a failure is the caller's fault or ours.
type NeuroError struct {
	Source  ErrorSource
	Message string
	Err     error
}

func Errorf(source ErrorSource, format string, a ...any) *NeuroError {
	return &NeuroError{
		Source:  source,
		Message: fmt.Sprintf(format, a...),
	}
}

func Wrap(source ErrorSource, err error, format string, a ...any) *NeuroError {
	return &NeuroError{
		Source:  source,
		Message: fmt.Sprintf(format, a...),
		Err:     err,
	}
}

func (e *NeuroError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}
	return e.Message
}

func (e *NeuroError) Unwrap() error {
	return e.Err
}

func (e *NeuroError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func (e *NeuroError) As(target interface{}) bool {
	return errors.As(e.Err, target)
}
