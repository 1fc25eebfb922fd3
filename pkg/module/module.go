package module

import (
	"container/heap"
	"sort"
)

// Results maps result names to Futures.
type Results map[string]Future

// Module is the finalized, immutable output of a build. Accessors return
// copies.
type Module struct {
	id         string
	actions    []*Action
	index      map[string]*Action
	position   map[string]int
	results    Results
	exported   Results
	uses       []*Module
	submodules map[string]*Module
}

func newModule(id string, actions []*Action, results Results, uses []*Module) *Module {
	m := &Module{
		id:         id,
		actions:    actions,
		index:      make(map[string]*Action, len(actions)),
		position:   make(map[string]int, len(actions)),
		results:    make(Results, len(results)),
		exported:   make(Results, len(results)),
		uses:       uses,
		submodules: make(map[string]*Module),
	}
	for _, sub := range uses {
		m.submodules[sub.id] = sub
		for id, nested := range sub.submodules {
			m.submodules[id] = nested
		}
	}
	for i, a := range actions {
		m.index[a.ID] = a
		m.position[a.ID] = i
	}
	for name, f := range results {
		m.results[name] = f
		m.exported[name] = Future{ID: resultID(id, name), Kind: FutureSubModuleResult, ActionID: f.ActionID}
	}
	return m
}

// ID returns the module id.
func (m *Module) ID() string { return m.id }

// Len returns the number of actions, sub-module actions included.
func (m *Module) Len() int { return len(m.actions) }

// Actions returns every action in registration order, including those of
// included sub-modules.
func (m *Module) Actions() []Action {
	out := make([]Action, len(m.actions))
	for i, a := range m.actions {
		out[i] = a.clone()
	}
	return out
}

// Action looks up an action by id.
func (m *Module) Action(id string) (Action, bool) {
	a, ok := m.index[id]
	if !ok {
		return Action{}, false
	}
	return a.clone(), true
}

// Results returns the named Futures the builder callback returned.
func (m *Module) Results() Results {
	out := make(Results, len(m.results))
	for k, v := range m.results {
		out[k] = v
	}
	return out
}

// Submodules returns the ids of every module included through UseModule,
// directly or transitively, sorted.
func (m *Module) Submodules() []string {
	out := make([]string, 0, len(m.submodules))
	for id := range m.submodules {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Submodule returns an included module's own finalized artifact.
func (m *Module) Submodule(id string) (*Module, bool) {
	sub, ok := m.submodules[id]
	return sub, ok
}

// Edge is a dependency: To may only run after From.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Edges lists every dependency edge, ordered by the dependent's registration
// order and then by dependency id.
func (m *Module) Edges() []Edge {
	var out []Edge
	for _, a := range m.actions {
		for _, dep := range a.DependsOn {
			out = append(out, Edge{From: dep, To: a.ID})
		}
	}
	return out
}

// Dependents returns the ids of actions that depend directly on id, in
// registration order.
func (m *Module) Dependents(id string) []string {
	var out []string
	for _, a := range m.actions {
		for _, dep := range a.DependsOn {
			if dep == id {
				out = append(out, a.ID)
				break
			}
		}
	}
	return out
}

// Order returns a topological order of the action ids. Among actions that
// are ready at the same time, the one registered first comes first, so the
// order is stable across runs. Any topological order is a valid execution
// order; this one is merely deterministic.
func (m *Module) Order() []string {
	indeg := make([]int, len(m.actions))
	outgoing := make([][]int, len(m.actions))
	for i, a := range m.actions {
		for _, dep := range a.DependsOn {
			j := m.position[dep]
			outgoing[j] = append(outgoing[j], i)
			indeg[i]++
		}
	}

	ready := &intMinHeap{}
	for i, d := range indeg {
		if d == 0 {
			heap.Push(ready, i)
		}
	}

	out := make([]string, 0, len(m.actions))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		out = append(out, m.actions[n].ID)
		for _, next := range outgoing[n] {
			indeg[next]--
			if indeg[next] == 0 {
				heap.Push(ready, next)
			}
		}
	}
	return out
}

// Validate re-runs graph validation over the finalized action set.
func (m *Module) Validate() error {
	return validateActions(m.actions, m.exports())
}

// exports computes, for this module and every included module, which
// sub-module actions it may reference.
func (m *Module) exports() map[string]map[string]struct{} {
	return exportsFor(m.id, m.uses)
}

func exportsFor(id string, uses []*Module) map[string]map[string]struct{} {
	out := make(map[string]map[string]struct{})
	var collect func(id string, uses []*Module) map[string]struct{}
	collect = func(id string, uses []*Module) map[string]struct{} {
		if set, ok := out[id]; ok {
			return set
		}
		set := make(map[string]struct{})
		out[id] = set
		for _, sub := range uses {
			for _, f := range sub.results {
				set[f.ActionID] = struct{}{}
			}
			for actionID := range collect(sub.id, sub.uses) {
				set[actionID] = struct{}{}
			}
		}
		return set
	}
	collect(id, uses)
	return out
}

type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
