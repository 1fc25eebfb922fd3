package module

import (
	"fmt"
	"log/slog"
)

// BuilderFunc declares a module's actions through m and returns its named
// results.
type BuilderFunc func(m *Context) (Results, error)

// Definition is a module id bound to its builder callback. It is inert until
// built; the same Definition may be built any number of times and included by
// any number of parent modules.
type Definition struct {
	id string
	fn BuilderFunc
}

// Define declares a module.
func Define(id string, fn BuilderFunc) *Definition {
	return &Definition{id: id, fn: fn}
}

// ID returns the module id.
func (d *Definition) ID() string { return d.id }

// Build runs the callback once, validates the graph and returns the frozen
// Module. On any failure no Module is returned.
func (d *Definition) Build(opts ...BuildOption) (*Module, error) {
	cfg := buildConfig{naming: OrdinalNaming, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	b := &build{
		cfg:      cfg,
		reg:      newRegistry(cfg.naming),
		done:     make(map[string]*Module),
		building: make(map[string]bool),
	}
	m, err := b.run(d)
	if err != nil {
		cfg.logger.Debug("module build failed", "module", d.id, "error", err)
		return nil, err
	}
	cfg.logger.Debug("module built",
		"module", m.id,
		"actions", len(m.actions),
		"submodules", len(m.submodules),
		"results", len(m.results),
	)
	return m, nil
}

// Build is shorthand for Define(id, fn).Build(opts...).
func Build(id string, fn BuilderFunc, opts ...BuildOption) (*Module, error) {
	return Define(id, fn).Build(opts...)
}

// BuildOption configures a build pass.
type BuildOption func(*buildConfig)

type buildConfig struct {
	naming NamingPolicy
	logger *slog.Logger
}

// WithNaming selects how unnamed actions are named. Sub-modules built in the
// same pass use the same policy.
func WithNaming(p NamingPolicy) BuildOption {
	return func(c *buildConfig) {
		if p != nil {
			c.naming = p
		}
	}
}

// WithLogger logs registrations and build outcomes at debug level.
func WithLogger(l *slog.Logger) BuildOption {
	return func(c *buildConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// build is the state of one root build pass. Sub-modules share its registry,
// so all actions end up in one flat arena.
type build struct {
	cfg      buildConfig
	reg      *registry
	done     map[string]*Module
	building map[string]bool
	stack    []string
	err      error
}

// fail records the first error that belongs to the whole pass rather than
// to one module's callback.
func (b *build) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *build) run(def *Definition) (*Module, error) {
	if def == nil || def.fn == nil {
		return nil, invalidArgf("module definition has no builder")
	}
	if !validName(def.id) {
		return nil, invalidArgf("module id %q", def.id)
	}
	if m, ok := b.done[def.id]; ok {
		return m, nil
	}
	if b.building[def.id] {
		return nil, cycleError(b.inclusionPath(def.id))
	}

	b.building[def.id] = true
	b.stack = append(b.stack, def.id)
	defer func() {
		delete(b.building, def.id)
		b.stack = b.stack[:len(b.stack)-1]
	}()

	ctx := &Context{b: b, moduleID: def.id}
	results, err := def.fn(ctx)
	ctx.state = stateValidating
	if err == nil {
		err = ctx.err
	}
	if err == nil {
		err = b.err
	}

	var m *Module
	if err == nil {
		m, err = b.finalize(def.id, results, ctx.uses)
	}
	ctx.state = stateFinalized
	if err != nil {
		return nil, fmt.Errorf("building module %q: %w", def.id, err)
	}

	b.done[def.id] = m
	return m, nil
}

func (b *build) finalize(moduleID string, results Results, uses []*Module) (*Module, error) {
	members := map[string]struct{}{moduleID: {}}
	for _, sub := range uses {
		members[sub.id] = struct{}{}
		for id := range sub.submodules {
			members[id] = struct{}{}
		}
	}
	exports := exportsFor(moduleID, uses)

	for name, f := range results {
		if !validName(name) {
			return nil, invalidArgf("result name %q", name)
		}
		if f.IsZero() {
			return nil, invalidArgf("result %q is a zero Future", name)
		}
		producer, ok := b.reg.get(f.ActionID)
		if !ok {
			return nil, danglingError(resultID(moduleID, name), f.ActionID, "no such action")
		}
		if _, ok := members[producer.Module]; !ok {
			return nil, danglingError(resultID(moduleID, name), f.ActionID, fmt.Sprintf("produced by module %q which is not included", producer.Module))
		}
		if _, ok := exports[moduleID][f.ActionID]; producer.Module != moduleID && !ok {
			return nil, danglingError(resultID(moduleID, name), f.ActionID, fmt.Sprintf("not exported by module %q", producer.Module))
		}
	}

	actions := b.reg.actionsOf(members)
	if err := validateActions(actions, exports); err != nil {
		return nil, err
	}
	return newModule(moduleID, actions, results, uses), nil
}

// inclusionPath is the chain of module ids from the first inclusion of id to
// its re-inclusion.
func (b *build) inclusionPath(id string) []string {
	for i, s := range b.stack {
		if s == id {
			path := append([]string(nil), b.stack[i:]...)
			return append(path, id)
		}
	}
	return []string{id, id}
}
