package module

import (
	"errors"
	"fmt"
	"strings"
)

// Build errors. Typed errors below unwrap to one of these.
var (
	ErrDuplicateActionID = errors.New("duplicate action id")
	ErrCycle             = errors.New("dependency cycle")
	ErrDanglingReference = errors.New("dangling reference")
	ErrDuplicateID       = errors.New("duplicate id in graph")
	ErrModuleFinalized   = errors.New("module is finalized")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrPlanHashMismatch  = errors.New("plan hash mismatch")
)

// DuplicateActionIDError is returned when two registrations in one build
// pass resolve to the same action id.
type DuplicateActionIDError struct {
	ID     string
	Module string
}

func (e *DuplicateActionIDError) Error() string {
	return fmt.Sprintf("%s: %q in module %q", ErrDuplicateActionID, e.ID, e.Module)
}

func (e *DuplicateActionIDError) Unwrap() error { return ErrDuplicateActionID }

// GraphError reports a structural problem found while finalizing a module.
//
// Kind is one of ErrCycle, ErrDanglingReference or ErrDuplicateID. For cycles
// Path lists the ids on the cycle, each element depending on the next, with
// the first id repeated at the end.
type GraphError struct {
	Kind      error
	ActionID  string
	MissingID string
	Path      []string
	Reason    string
}

func (e *GraphError) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	switch {
	case len(e.Path) > 0:
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Path, " -> "))
	case e.MissingID != "":
		fmt.Fprintf(&b, ": %q depends on %q", e.ActionID, e.MissingID)
	case e.ActionID != "":
		fmt.Fprintf(&b, ": %q", e.ActionID)
	}
	if e.Reason != "" {
		b.WriteString(" (")
		b.WriteString(e.Reason)
		b.WriteString(")")
	}
	return b.String()
}

func (e *GraphError) Unwrap() error { return e.Kind }

func cycleError(path []string) error {
	return &GraphError{Kind: ErrCycle, Path: path}
}

func danglingError(actionID, missingID, reason string) error {
	return &GraphError{Kind: ErrDanglingReference, ActionID: actionID, MissingID: missingID, Reason: reason}
}

func duplicateIDError(id string) error {
	return &GraphError{Kind: ErrDuplicateID, ActionID: id}
}

func invalidArgf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
