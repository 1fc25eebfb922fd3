package module

import (
	"fmt"
)

type buildState int

const (
	stateBuilding buildState = iota
	stateValidating
	stateFinalized
)

func (s buildState) String() string {
	switch s {
	case stateBuilding:
		return "building"
	case stateValidating:
		return "validating"
	case stateFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("buildState(%d)", int(s))
	}
}

// Context is handed to a builder callback. Every primitive registers one
// action and returns the Future it produces.
//
// Errors are sticky: the first failing primitive records its error, later
// primitives do nothing and return the zero Future, and the build fails with
// the recorded error once the callback returns.
type Context struct {
	b        *build
	moduleID string
	state    buildState
	err      error
	uses     []*Module
}

// ModuleID returns the id of the module being built.
func (m *Context) ModuleID() string { return m.moduleID }

// Err returns the first error recorded by a primitive.
func (m *Context) Err() error { return m.err }

// Fail records err as if a primitive had failed. It is a no-op once an error
// is recorded.
func (m *Context) Fail(err error) {
	if err != nil && m.err == nil {
		m.err = err
	}
}

// usable reports whether a primitive may run. A call on a finalized Context
// also fails the build pass it belongs to, so a parent that leaks an
// included module's Context cannot build.
func (m *Context) usable() bool {
	if m.state == stateFinalized {
		err := fmt.Errorf("%w: %s", ErrModuleFinalized, m.moduleID)
		m.Fail(err)
		m.b.fail(err)
		return false
	}
	return m.err == nil && m.b.err == nil
}

// Contract deploys a contract from its artifact name with positional
// constructor args.
func (m *Context) Contract(name string, args []any, opts ...ActionOption) Future {
	if !m.usable() {
		return Future{}
	}
	if name == "" {
		m.Fail(invalidArgf("contract name is empty"))
		return Future{}
	}
	params := []Param{
		{Name: "contract", Value: name},
		{Name: "args", Value: normalizeArgs(args)},
	}
	return m.add(ActionDeploy, name, params, opts)
}

// Library deploys a library for linking into other contracts.
func (m *Context) Library(name string, opts ...ActionOption) Future {
	if !m.usable() {
		return Future{}
	}
	if name == "" {
		m.Fail(invalidArgf("library name is empty"))
		return Future{}
	}
	return m.add(ActionLibrary, name, []Param{{Name: "contract", Value: name}}, opts)
}

// Call sends a state-changing transaction to method on target.
func (m *Context) Call(target Future, method string, args []any, opts ...ActionOption) Future {
	return m.invoke(ActionCall, target, method, args, opts)
}

// StaticCall reads the return value of method on target without a
// transaction.
func (m *Context) StaticCall(target Future, method string, args []any, opts ...ActionOption) Future {
	return m.invoke(ActionStaticCall, target, method, args, opts)
}

func (m *Context) invoke(kind ActionKind, target Future, method string, args []any, opts []ActionOption) Future {
	if !m.usable() {
		return Future{}
	}
	if target.IsZero() {
		m.Fail(invalidArgf("%s %q: target is a zero Future", kind, method))
		return Future{}
	}
	if method == "" {
		m.Fail(invalidArgf("%s on %s: method name is empty", kind, target.ID))
		return Future{}
	}
	params := []Param{
		{Name: "target", Value: target},
		{Name: "method", Value: method},
		{Name: "args", Value: normalizeArgs(args)},
	}
	return m.add(kind, m.contractOf(target)+"."+method, params, opts)
}

// contractOf is the artifact name behind a contract Future, or "contract"
// when it cannot be resolved.
func (m *Context) contractOf(f Future) string {
	if a, ok := m.b.reg.get(f.ActionID); ok {
		if name, ok := a.Param("contract"); ok {
			if s, ok := name.(string); ok {
				return s
			}
		}
	}
	return "contract"
}

// ContractAt references a contract already deployed at address. address may
// be a literal, a Parameter or a Future whose value is an address.
func (m *Context) ContractAt(name string, address any, opts ...ActionOption) Future {
	if !m.usable() {
		return Future{}
	}
	if name == "" {
		m.Fail(invalidArgf("contract name is empty"))
		return Future{}
	}
	if address == nil {
		m.Fail(invalidArgf("contractAt %q: address is nil", name))
		return Future{}
	}
	params := []Param{
		{Name: "contract", Value: name},
		{Name: "address", Value: address},
	}
	return m.add(ActionContractAt, name, params, opts)
}

// Send transfers value to to, with optional calldata.
func (m *Context) Send(to any, value any, data string, opts ...ActionOption) Future {
	if !m.usable() {
		return Future{}
	}
	if to == nil {
		m.Fail(invalidArgf("send: recipient is nil"))
		return Future{}
	}
	params := []Param{
		{Name: "to", Value: to},
		{Name: "value", Value: value},
	}
	if data != "" {
		params = append(params, Param{Name: "data", Value: data})
	}
	return m.add(ActionSend, "send", params, opts)
}

// UseModule includes def as a sub-module and returns its results. Within one
// build a module is built once; every caller gets the same Futures.
func (m *Context) UseModule(def *Definition) Results {
	if !m.usable() {
		return nil
	}
	sub, err := m.b.run(def)
	if err != nil {
		m.Fail(err)
		return nil
	}
	seen := false
	for _, u := range m.uses {
		if u == sub {
			seen = true
			break
		}
	}
	if !seen {
		m.uses = append(m.uses, sub)
	}
	m.b.cfg.logger.Debug("module included", "module", m.moduleID, "submodule", sub.id)

	out := make(Results, len(sub.exported))
	for name, f := range sub.exported {
		out[name] = f
	}
	return out
}

// Parameter declares a module input named name.
func (m *Context) Parameter(name string, defaultValue any) Parameter {
	if !m.usable() {
		return Parameter{}
	}
	if !validName(name) {
		m.Fail(invalidArgf("parameter name %q", name))
		return Parameter{}
	}
	return Parameter{Module: m.moduleID, Name: name, Default: defaultValue}
}

// Account refers to the runner's account at index.
func (m *Context) Account(index int) Account {
	if !m.usable() {
		return Account{}
	}
	if index < 0 {
		m.Fail(invalidArgf("account index %d", index))
		return Account{}
	}
	return Account{Index: index}
}

func (m *Context) add(kind ActionKind, subject string, params []Param, opts []ActionOption) Future {
	o := collectOptions(opts)
	for name, lib := range o.libraries {
		if lib.IsZero() {
			m.Fail(invalidArgf("%s %q: library %q is a zero Future", kind, subject, name))
			return Future{}
		}
	}
	for _, dep := range o.after {
		if dep == nil || dep.dependencyID() == "" {
			m.Fail(invalidArgf("%s %q: empty After dependency", kind, subject))
			return Future{}
		}
	}
	params = cloneParams(o.appendParams(params))
	if unbound := unboundFutures(params); len(unbound) > 0 {
		m.Fail(invalidArgf("%s %q: Future %q has no producing action", kind, subject, unbound[0].ID))
		return Future{}
	}

	a, err := m.b.reg.register(kind, m.moduleID, subject, o.id, params)
	if err != nil {
		m.Fail(err)
		return Future{}
	}
	a.DependsOn = ExtractDependencies(a.Params, o.after)

	m.b.cfg.logger.Debug("action registered",
		"module", m.moduleID,
		"action", a.ID,
		"depends_on", a.DependsOn,
	)
	return a.Future()
}

func normalizeArgs(args []any) []any {
	if args == nil {
		return []any{}
	}
	return args
}
