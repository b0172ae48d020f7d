package evaluation

import (
	"errors"
	"fmt"
)

var (
	ErrMissingParameter = errors.New("missing required parameter")
	ErrUnknownParameter = errors.New("unknown parameter")
)

// EvaluationError reports a failure to evaluate a named definition.
type EvaluationError struct {
	Definition string
	Err        error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluate %s: %v", e.Definition, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// NewEvaluationError wraps err for the named definition. An error that is already an
// EvaluationError is returned unchanged so the innermost definition name is kept.
func NewEvaluationError(definition string, err error) error {
	if err == nil {
		return nil
	}
	var ee *EvaluationError
	if errors.As(err, &ee) {
		return err
	}
	return &EvaluationError{Definition: definition, Err: err}
}
