package module

import "fmt"

// validateActions checks a complete action set. exports maps a module id to
// the ids of sub-module actions that module may reference: the producers of
// the results of every module it includes, directly or transitively.
//
// Checks run in order: duplicate ids, references, cycles.
func validateActions(actions []*Action, exports map[string]map[string]struct{}) error {
	index := make(map[string]*Action, len(actions))
	for _, a := range actions {
		if _, exists := index[a.ID]; exists {
			return duplicateIDError(a.ID)
		}
		index[a.ID] = a
	}

	for _, a := range actions {
		for _, dep := range a.DependsOn {
			target, ok := index[dep]
			if !ok {
				return danglingError(a.ID, dep, "no such action")
			}
			if target.Module == a.Module {
				continue
			}
			if _, ok := exports[a.Module][dep]; !ok {
				return danglingError(a.ID, dep, fmt.Sprintf("not exported by module %q", target.Module))
			}
		}
	}

	if path := findCycle(actions, index); path != nil {
		return cycleError(path)
	}
	return nil
}

// findCycle runs a depth-first search along dependsOn edges, starting from
// actions in registration order, and returns the first cycle it meets.
func findCycle(actions []*Action, index map[string]*Action) []string {
	const (
		white = iota
		gray
		black
	)

	color := make(map[string]int, len(actions))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		stack = append(stack, id)
		for _, dep := range index[id].DependsOn {
			switch color[dep] {
			case gray:
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == dep {
						cycle = append(append(cycle, stack[i:]...), dep)
						return true
					}
				}
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for _, a := range actions {
		if color[a.ID] == white && visit(a.ID) {
			return cycle
		}
	}
	return nil
}
