package manifest

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidManifest     = errors.New("invalid manifest")
	ErrUnsupportedFormat   = errors.New("unsupported manifest format")
	ErrUnknownReference    = errors.New("unknown reference")
	ErrEmbeddedReference   = errors.New("reference must be the whole string")
	ErrReferenceType       = errors.New("reference does not resolve to a future")
	ErrUnknownModule       = errors.New("unknown module")
	ErrDuplicateModule     = errors.New("duplicate module")
	ErrDuplicateActionID   = errors.New("duplicate action id")
	ErrAmbiguousActionKind = errors.New("action must set exactly one of deploy, library, call, staticCall, contractAt, send")
)

// Error locates a manifest problem. Action is the manifest id of the action,
// or its position when it has none.
type Error struct {
	Module string
	Action string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Module == "":
		return e.Err.Error()
	case e.Action == "":
		return fmt.Sprintf("module %q: %v", e.Module, e.Err)
	default:
		return fmt.Sprintf("module %q, action %s: %v", e.Module, e.Action, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }
