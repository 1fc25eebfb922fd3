package module

// registry records every action issued during one build pass, across the
// root module and all of its sub-modules, in call order.
type registry struct {
	naming   NamingPolicy
	order    []*Action
	byID     map[string]*Action
	ordinals map[string]map[ActionKind]int
}

func newRegistry(naming NamingPolicy) *registry {
	if naming == nil {
		naming = OrdinalNaming
	}
	return &registry{
		naming:   naming,
		byID:     make(map[string]*Action),
		ordinals: make(map[string]map[ActionKind]int),
	}
}

// register assigns the action its id and appends it. name is the caller's
// logical name; when empty the naming policy picks one.
func (r *registry) register(kind ActionKind, moduleID, subject, name string, params []Param) (*Action, error) {
	ordinal := r.nextOrdinal(moduleID, kind)
	if name == "" {
		name = r.naming.ActionName(kind, subject, ordinal)
	}
	if !validName(name) {
		return nil, invalidArgf("action name %q for %s %q (set one with WithID)", name, kind, subject)
	}

	id := actionID(moduleID, kind, name)
	if _, exists := r.byID[id]; exists {
		return nil, &DuplicateActionIDError{ID: id, Module: moduleID}
	}

	a := &Action{
		ID:     id,
		Kind:   kind,
		Module: moduleID,
		Params: params,
	}
	r.byID[id] = a
	r.order = append(r.order, a)
	return a, nil
}

func (r *registry) nextOrdinal(moduleID string, kind ActionKind) int {
	counters, ok := r.ordinals[moduleID]
	if !ok {
		counters = make(map[ActionKind]int)
		r.ordinals[moduleID] = counters
	}
	n := counters[kind]
	counters[kind] = n + 1
	return n
}

func (r *registry) get(id string) (*Action, bool) {
	a, ok := r.byID[id]
	return a, ok
}

// actionsOf returns the actions owned by any of the given modules, in
// registration order.
func (r *registry) actionsOf(modules map[string]struct{}) []*Action {
	out := make([]*Action, 0, len(r.order))
	for _, a := range r.order {
		if _, ok := modules[a.Module]; ok {
			out = append(out, a)
		}
	}
	return out
}
