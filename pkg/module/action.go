package module

// ActionKind is the primitive that registered an action.
type ActionKind string

const (
	ActionDeploy     ActionKind = "deploy"
	ActionLibrary    ActionKind = "library"
	ActionCall       ActionKind = "call"
	ActionStaticCall ActionKind = "staticCall"
	ActionContractAt ActionKind = "contractAt"
	ActionSend       ActionKind = "send"
)

// FutureKind returns the kind of Future an action of this kind produces.
func (k ActionKind) FutureKind() FutureKind {
	switch k {
	case ActionDeploy, ActionLibrary:
		return FutureContractDeployment
	case ActionCall:
		return FutureMethodCall
	case ActionStaticCall:
		return FutureStaticCall
	case ActionContractAt:
		return FutureContractReference
	case ActionSend:
		return FutureRawSend
	default:
		return ""
	}
}

// Param is one named parameter of an action. Value may be a literal, a
// Future, a Parameter or Account placeholder, or any slice, map or struct
// nesting them.
type Param struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Action is one unit of planned work.
type Action struct {
	ID        string
	Kind      ActionKind
	Module    string
	Params    []Param
	DependsOn []string
}

// Param returns the value of the named parameter.
func (a Action) Param(name string) (any, bool) {
	for _, p := range a.Params {
		if p.Name == name {
			return p.Value, true
		}
	}
	return nil, false
}

// Future returns the Future this action produces.
func (a Action) Future() Future {
	return Future{ID: a.ID, Kind: a.Kind.FutureKind(), ActionID: a.ID}
}

func (a *Action) clone() Action {
	c := *a
	c.Params = cloneParams(a.Params)
	c.DependsOn = append([]string(nil), a.DependsOn...)
	return c
}
