package module

// ActionOption customizes a single primitive call.
type ActionOption func(*actionOptions)

type actionOptions struct {
	id        string
	after     []Dependency
	value     any
	from      any
	libraries map[string]Future
}

// WithID sets the action's logical name instead of the naming policy's.
func WithID(name string) ActionOption {
	return func(o *actionOptions) { o.id = name }
}

// After orders the action after deps even when no value flows between them.
func After(deps ...Dependency) ActionOption {
	return func(o *actionOptions) { o.after = append(o.after, deps...) }
}

// WithValue attaches native currency to a deployment, call or send.
func WithValue(v any) ActionOption {
	return func(o *actionOptions) { o.value = v }
}

// From selects the sending account, typically an Account from Context.Account.
func From(account any) ActionOption {
	return func(o *actionOptions) { o.from = account }
}

// WithLibraries links deployed libraries into a contract's bytecode.
func WithLibraries(libs map[string]Future) ActionOption {
	return func(o *actionOptions) { o.libraries = libs }
}

func collectOptions(opts []ActionOption) actionOptions {
	var o actionOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// appendParams adds the optional parameters in a fixed order so that plans
// stay byte-identical across runs.
func (o actionOptions) appendParams(params []Param) []Param {
	if o.value != nil {
		params = append(params, Param{Name: "value", Value: o.value})
	}
	if o.from != nil {
		params = append(params, Param{Name: "from", Value: o.from})
	}
	if len(o.libraries) > 0 {
		params = append(params, Param{Name: "libraries", Value: o.libraries})
	}
	return params
}
