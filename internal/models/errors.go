package models

import "fmt"

// InvalidParameterError reports a malformed numeric input to the engine.
// It is always surfaced to the caller and never silently recovered.
type InvalidParameterError struct {
	Param  string
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s: %s", e.Param, e.Reason)
}

// NewInvalidParameter creates an InvalidParameterError for the named parameter.
func NewInvalidParameter(param, format string, args ...interface{}) *InvalidParameterError {
	return &InvalidParameterError{Param: param, Reason: fmt.Sprintf(format, args...)}
}

// ComputationError reports a numeric computation that could not produce a
// meaningful result (e.g. degenerate pricing inputs not covered by an
// explicit boundary rule).
type ComputationError struct {
	Op     string
	Reason string
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("computation error in %s: %s", e.Op, e.Reason)
}
