package engine

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes engine execution errors.
type ErrorCode string

const (
	// ErrCodeExecution indicates a segment failed inside the database.
	ErrCodeExecution ErrorCode = "EXECUTION_FAILED"

	// ErrCodeEnumRedefinition indicates a category was registered twice
	// with different variant sequences.
	ErrCodeEnumRedefinition ErrorCode = "ENUM_REDEFINITION"

	// ErrCodeBinding indicates an input binding's relation could not be
	// turned into a view.
	ErrCodeBinding ErrorCode = "BINDING_FAILED"
)

// Error is an execution-time engine error. When the failure can be traced
// to a single rendered step, Stage, Fragment and Alias name it.
type Error struct {
	Code     ErrorCode
	Pipeline string
	Stage    string
	Fragment string
	// Alias is the rendered step identifier, when attributable.
	Alias   string
	Message string
	// Err is the underlying database error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var loc string
	switch {
	case e.Stage != "" && e.Fragment != "":
		loc = fmt.Sprintf(" (pipeline=%s, stage=%s, fragment=%s)", e.Pipeline, e.Stage, e.Fragment)
	case e.Pipeline != "":
		loc = fmt.Sprintf(" (pipeline=%s)", e.Pipeline)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s%s: %v", e.Code, e.Message, loc, e.Err)
	}
	return fmt.Sprintf("%s: %s%s", e.Code, e.Message, loc)
}

// Unwrap exposes the underlying database error for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.Err }

// IsEnumRedefinition reports whether err is an ENUM_REDEFINITION error.
// Uses errors.As to handle wrapped errors.
func IsEnumRedefinition(err error) bool {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Code == ErrCodeEnumRedefinition
	}
	return false
}

// IsExecution reports whether err is an EXECUTION_FAILED error.
func IsExecution(err error) bool {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Code == ErrCodeExecution
	}
	return false
}
