package plan

import (
	"errors"
	"fmt"
	"strings"
)

// Code categorizes construction-time plan errors.
type Code string

const (
	// CodeUnresolvedReference indicates a placeholder that names no
	// fragment, stage output or input binding in the pipeline.
	CodeUnresolvedReference Code = "UNRESOLVED_REFERENCE"

	// CodeDuplicateName indicates two stages, visible outputs or input
	// bindings sharing a name.
	CodeDuplicateName Code = "DUPLICATE_NAME"

	// CodeCyclicDependency indicates the reference graph has no
	// topological order.
	CodeCyclicDependency Code = "CYCLIC_DEPENDENCY"

	// CodeUndeclaredVariant indicates a stage declares it emits a value
	// outside a registered category's variant set (or for a category that
	// was never registered).
	CodeUndeclaredVariant Code = "UNDECLARED_VARIANT"

	// CodeUnknownTarget indicates a debug materialization target that
	// names no node in the assembled plan.
	CodeUnknownTarget Code = "UNKNOWN_TARGET"
)

// Error is a construction-time pipeline error. It names the offending
// stage, fragment and reference so failures can be localized without
// re-deriving the plan by hand.
type Error struct {
	Code     Code
	Stage    string
	Fragment string
	// Ref is the specific reference that failed to resolve, where
	// applicable.
	Ref string
	// Path holds the cycle path for CYCLIC_DEPENDENCY errors.
	Path    []string
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	var ctx []string
	if e.Stage != "" {
		ctx = append(ctx, "stage="+e.Stage)
	}
	if e.Fragment != "" {
		ctx = append(ctx, "fragment="+e.Fragment)
	}
	if e.Ref != "" {
		ctx = append(ctx, "ref="+e.Ref)
	}
	if len(ctx) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(ctx, ", "))
	}
	if len(e.Path) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.Path, " → "))
	}
	return b.String()
}

// IsUnresolved reports whether err is an UNRESOLVED_REFERENCE error.
// Uses errors.As to handle wrapped errors.
func IsUnresolved(err error) bool { return hasCode(err, CodeUnresolvedReference) }

// IsDuplicateName reports whether err is a DUPLICATE_NAME error.
func IsDuplicateName(err error) bool { return hasCode(err, CodeDuplicateName) }

// IsCyclic reports whether err is a CYCLIC_DEPENDENCY error.
func IsCyclic(err error) bool { return hasCode(err, CodeCyclicDependency) }

// IsUndeclaredVariant reports whether err is an UNDECLARED_VARIANT error.
func IsUndeclaredVariant(err error) bool { return hasCode(err, CodeUndeclaredVariant) }

func hasCode(err error, code Code) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}

func unresolvedErr(stageName, fragment, ref, msg string) *Error {
	return &Error{
		Code:     CodeUnresolvedReference,
		Stage:    stageName,
		Fragment: fragment,
		Ref:      ref,
		Message:  msg,
	}
}

func duplicateErr(kind, name string) *Error {
	return &Error{
		Code:    CodeDuplicateName,
		Ref:     name,
		Message: fmt.Sprintf("duplicate %s name %q", kind, name),
	}
}
