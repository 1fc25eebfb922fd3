package manifest

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pendergraft/ignition/pkg/module"
)

// Compile turns the file into a definition of its main module. Used modules
// are wired through UseModule, so building the definition builds them too.
// Reference errors surface from Build as *Error.
func Compile(f *File) (*module.Definition, error) {
	defs, err := CompileAll(f)
	if err != nil {
		return nil, err
	}
	return defs[f.MainModule()], nil
}

// CompileAll returns a definition for every module in the file.
func CompileAll(f *File) (map[string]*module.Definition, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	c := &compiler{
		defs:      make(map[string]*module.Definition, len(f.Modules)),
		actionIDs: make(map[string]map[string]string, len(f.Modules)),
	}
	for i := range f.Modules {
		mod := &f.Modules[i]
		ids := make(map[string]string)
		for _, a := range mod.Actions {
			if a.ID != "" {
				ids[a.ID] = mod.ID + "#" + a.Kind() + "/" + a.ID
			}
		}
		c.actionIDs[mod.ID] = ids
	}
	for i := range f.Modules {
		mod := &f.Modules[i]
		c.defs[mod.ID] = module.Define(mod.ID, c.builder(mod))
	}
	return c.defs, nil
}

type compiler struct {
	defs map[string]*module.Definition
	// actionIDs maps each module's manifest ids to engine action ids so
	// that after lists may point forward.
	actionIDs map[string]map[string]string
}

func (c *compiler) builder(spec *Module) module.BuilderFunc {
	return func(m *module.Context) (module.Results, error) {
		s := &scope{
			ctx:    m,
			spec:   spec,
			ids:    c.actionIDs[spec.ID],
			locals: make(map[string]module.Future),
			subs:   make(map[string]module.Results, len(spec.Uses)),
		}

		for _, use := range spec.Uses {
			s.subs[use] = m.UseModule(c.defs[use])
			if err := m.Err(); err != nil {
				return nil, err
			}
		}

		for i := range spec.Actions {
			a := &spec.Actions[i]
			f, err := s.action(a)
			if err == nil {
				err = m.Err()
			}
			if err != nil {
				return nil, &Error{Module: spec.ID, Action: a.label(i), Err: err}
			}
			if a.ID != "" {
				s.locals[a.ID] = f
			}
		}

		names := make([]string, 0, len(spec.Results))
		for name := range spec.Results {
			names = append(names, name)
		}
		sort.Strings(names)

		results := make(module.Results, len(spec.Results))
		for _, name := range names {
			f, err := s.future(spec.Results[name])
			if err != nil {
				return nil, &Error{Module: spec.ID, Err: fmt.Errorf("result %q: %w", name, err)}
			}
			results[name] = f
		}
		return results, nil
	}
}

// scope resolves references while one module is being built.
type scope struct {
	ctx    *module.Context
	spec   *Module
	ids    map[string]string
	locals map[string]module.Future
	subs   map[string]module.Results
}

func (s *scope) action(a *Action) (module.Future, error) {
	opts, err := s.options(a)
	if err != nil {
		return module.Future{}, err
	}

	switch a.Kind() {
	case "deploy":
		args, err := s.args(a.Args)
		if err != nil {
			return module.Future{}, err
		}
		return s.ctx.Contract(a.Deploy, args, opts...), nil
	case "library":
		return s.ctx.Library(a.Library, opts...), nil
	case "call", "staticCall":
		target, err := s.future(a.Target)
		if err != nil {
			return module.Future{}, fmt.Errorf("target: %w", err)
		}
		args, err := s.args(a.Args)
		if err != nil {
			return module.Future{}, err
		}
		if a.Call != "" {
			return s.ctx.Call(target, a.Call, args, opts...), nil
		}
		return s.ctx.StaticCall(target, a.StaticCall, args, opts...), nil
	case "contractAt":
		addr, err := s.resolve(a.Address)
		if err != nil {
			return module.Future{}, fmt.Errorf("address: %w", err)
		}
		return s.ctx.ContractAt(a.ContractAt, addr, opts...), nil
	case "send":
		to, err := s.resolve(a.Send)
		if err != nil {
			return module.Future{}, fmt.Errorf("send: %w", err)
		}
		value, err := s.resolve(a.Value)
		if err != nil {
			return module.Future{}, fmt.Errorf("value: %w", err)
		}
		return s.ctx.Send(to, value, a.Data, opts...), nil
	default:
		return module.Future{}, ErrAmbiguousActionKind
	}
}

func (s *scope) options(a *Action) ([]module.ActionOption, error) {
	var opts []module.ActionOption
	if a.ID != "" {
		opts = append(opts, module.WithID(a.ID))
	}
	// a send carries its value as a positional argument
	if a.Value != nil && a.Kind() != "send" {
		v, err := s.resolve(a.Value)
		if err != nil {
			return nil, fmt.Errorf("value: %w", err)
		}
		opts = append(opts, module.WithValue(v))
	}
	if a.From != nil {
		from, err := s.resolve(a.From)
		if err != nil {
			return nil, fmt.Errorf("from: %w", err)
		}
		opts = append(opts, module.From(from))
	}
	if len(a.Libraries) > 0 {
		libs := make(map[string]module.Future, len(a.Libraries))
		for name, ref := range a.Libraries {
			f, err := s.future(ref)
			if err != nil {
				return nil, fmt.Errorf("library %q: %w", name, err)
			}
			libs[name] = f
		}
		opts = append(opts, module.WithLibraries(libs))
	}
	if len(a.After) > 0 {
		deps := make([]module.Dependency, 0, len(a.After))
		for _, ref := range a.After {
			d, err := s.dependency(ref)
			if err != nil {
				return nil, fmt.Errorf("after: %w", err)
			}
			deps = append(deps, d)
		}
		opts = append(opts, module.After(deps...))
	}
	return opts, nil
}

func (s *scope) args(raw []any) ([]any, error) {
	out := make([]any, len(raw))
	for i, v := range raw {
		r, err := s.resolve(v)
		if err != nil {
			return nil, fmt.Errorf("args[%d]: %w", i, err)
		}
		out[i] = r
	}
	return out, nil
}

// resolve replaces references anywhere inside v.
func (s *scope) resolve(v any) (any, error) {
	switch t := v.(type) {
	case string:
		ref, ok, err := parseReference(t)
		if err != nil || !ok {
			return t, err
		}
		return s.lookup(ref)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			r, err := s.resolve(e)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			r, err := s.resolve(e)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = r
		}
		return out, nil
	case []map[string]any:
		out := make([]any, len(t))
		for i, e := range t {
			r, err := s.resolve(e)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

func (s *scope) lookup(ref string) (any, error) {
	if name, ok := strings.CutPrefix(ref, "param:"); ok {
		def, declared := s.spec.Parameters[name]
		if !declared {
			return nil, fmt.Errorf("%w: parameter %q is not declared", ErrUnknownReference, name)
		}
		return s.ctx.Parameter(name, def), nil
	}
	if idx, ok := strings.CutPrefix(ref, "account:"); ok {
		n, err := strconv.Atoi(idx)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: account index %q", ErrUnknownReference, idx)
		}
		return s.ctx.Account(n), nil
	}
	if sub, result, ok := strings.Cut(ref, "."); ok {
		results, used := s.subs[sub]
		if !used {
			return nil, fmt.Errorf("%w: module %q is not used by %q", ErrUnknownReference, sub, s.spec.ID)
		}
		f, exists := results[result]
		if !exists {
			return nil, fmt.Errorf("%w: module %q has no result %q", ErrUnknownReference, sub, result)
		}
		return f, nil
	}
	if f, ok := s.locals[ref]; ok {
		return f, nil
	}
	if _, later := s.ids[ref]; later {
		return nil, fmt.Errorf("%w: %q is used before it is declared", ErrUnknownReference, ref)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownReference, ref)
}

// future resolves a string that must reference a Future.
func (s *scope) future(raw string) (module.Future, error) {
	ref, ok, err := parseReference(raw)
	if err != nil {
		return module.Future{}, err
	}
	if !ok {
		return module.Future{}, fmt.Errorf("%w: %q is not a ${...} reference", ErrReferenceType, raw)
	}
	v, err := s.lookup(ref)
	if err != nil {
		return module.Future{}, err
	}
	f, ok := v.(module.Future)
	if !ok {
		return module.Future{}, fmt.Errorf("%w: %q", ErrReferenceType, raw)
	}
	return f, nil
}

// dependency resolves an after entry. Unlike value references it may point
// at a local action declared further down.
func (s *scope) dependency(raw string) (module.Dependency, error) {
	ref, ok, err := parseReference(raw)
	if err != nil {
		return nil, err
	}
	if ok {
		if id, declared := s.ids[ref]; declared {
			if _, seen := s.locals[ref]; !seen {
				return module.ActionRef(id), nil
			}
		}
	}
	return s.future(raw)
}

func isReference(s string) bool {
	_, ok, _ := parseReference(s)
	return ok
}

// parseReference returns the body of a whole-string ${...} reference. It
// fails on strings that embed a reference among other text.
func parseReference(s string) (string, bool, error) {
	start := strings.Index(s, "${")
	if start < 0 {
		return "", false, nil
	}
	if start == 0 && strings.HasSuffix(s, "}") {
		body := s[2 : len(s)-1]
		if body != "" && !strings.ContainsAny(body, "${}") {
			return body, true, nil
		}
	}
	return "", false, fmt.Errorf("%w: %q", ErrEmbeddedReference, s)
}
