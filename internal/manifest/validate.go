package manifest

import (
	"fmt"
	"strconv"

	"github.com/pendergraft/ignition/internal/validation"
)

// Validate checks the structure of the file: ids, versions, module uses and
// action shapes. References are resolved later, by Compile.
func (f *File) Validate() error {
	if len(f.Modules) == 0 {
		return fmt.Errorf("%w: no modules declared", ErrInvalidManifest)
	}

	seen := make(map[string]bool, len(f.Modules))
	for i := range f.Modules {
		mod := &f.Modules[i]
		if err := validation.ValidateModuleID(mod.ID); err != nil {
			return &Error{Module: mod.ID, Err: fmt.Errorf("%w: %v", ErrInvalidManifest, err)}
		}
		if seen[mod.ID] {
			return &Error{Module: mod.ID, Err: ErrDuplicateModule}
		}
		seen[mod.ID] = true
	}

	main := f.MainModule()
	if main == "" {
		return fmt.Errorf("%w: main is required when several modules are declared", ErrInvalidManifest)
	}
	if !seen[main] {
		return fmt.Errorf("%w: main %q", ErrUnknownModule, main)
	}

	for i := range f.Modules {
		if err := f.Modules[i].validate(seen); err != nil {
			return err
		}
	}
	return nil
}

func (m *Module) validate(modules map[string]bool) error {
	if m.Version != "" {
		if err := validation.ValidateVersion(m.Version); err != nil {
			return &Error{Module: m.ID, Err: fmt.Errorf("%w: %v", ErrInvalidManifest, err)}
		}
	}
	for name := range m.Parameters {
		if err := validation.ValidateName(name); err != nil {
			return &Error{Module: m.ID, Err: fmt.Errorf("%w: parameter: %v", ErrInvalidManifest, err)}
		}
	}
	for _, use := range m.Uses {
		if !modules[use] {
			return &Error{Module: m.ID, Err: fmt.Errorf("%w: uses %q", ErrUnknownModule, use)}
		}
	}
	for name := range m.Results {
		if err := validation.ValidateName(name); err != nil {
			return &Error{Module: m.ID, Err: fmt.Errorf("%w: result: %v", ErrInvalidManifest, err)}
		}
	}

	ids := make(map[string]bool, len(m.Actions))
	for i := range m.Actions {
		a := &m.Actions[i]
		label := a.label(i)
		if a.ID != "" {
			if err := validation.ValidateName(a.ID); err != nil {
				return &Error{Module: m.ID, Action: label, Err: fmt.Errorf("%w: %v", ErrInvalidManifest, err)}
			}
			if ids[a.ID] {
				return &Error{Module: m.ID, Action: label, Err: ErrDuplicateActionID}
			}
			ids[a.ID] = true
		}
		if err := a.validate(); err != nil {
			return &Error{Module: m.ID, Action: label, Err: err}
		}
	}
	return nil
}

func (a *Action) validate() error {
	kind := a.Kind()
	if kind == "" {
		return ErrAmbiguousActionKind
	}
	switch kind {
	case "call", "staticCall":
		if a.Target == "" {
			return fmt.Errorf("%w: %s requires target", ErrInvalidManifest, kind)
		}
	case "contractAt":
		if a.Address == nil {
			return fmt.Errorf("%w: contractAt requires address", ErrInvalidManifest)
		}
		if s, ok := a.Address.(string); ok && !isReference(s) {
			if err := validation.ValidateAddress(s); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidManifest, err)
			}
		}
	}
	if kind != "call" && kind != "staticCall" && a.Target != "" {
		return fmt.Errorf("%w: target is only valid for call and staticCall", ErrInvalidManifest)
	}
	if kind != "deploy" && len(a.Libraries) > 0 {
		return fmt.Errorf("%w: libraries are only valid for deploy", ErrInvalidManifest)
	}
	return nil
}

// label names an action in error messages.
func (a *Action) label(index int) string {
	if a.ID != "" {
		return strconv.Quote(a.ID)
	}
	return "#" + strconv.Itoa(index)
}
