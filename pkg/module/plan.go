package module

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Plan is the serializable form of a Module handed to a runner. Parameter
// values are already JSON encoded; Futures inside them appear as
// {"future", "kind", "action"} objects.
type Plan struct {
	Module     string            `json:"module"`
	Hash       string            `json:"hash,omitempty"`
	Actions    []PlanAction      `json:"actions"`
	Results    map[string]Future `json:"results"`
	Submodules []string          `json:"submodules,omitempty"`
	Order      []string          `json:"order"`
}

// PlanAction is one action of a Plan.
type PlanAction struct {
	ID        string      `json:"id"`
	Kind      ActionKind  `json:"kind"`
	Module    string      `json:"module"`
	Future    FutureKind  `json:"future"`
	Params    []PlanParam `json:"params"`
	DependsOn []string    `json:"dependsOn"`
}

// PlanParam is a JSON encoded action parameter.
type PlanParam struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

// Plan serializes the module. It fails only when a parameter value cannot be
// encoded as JSON.
func (m *Module) Plan() (*Plan, error) {
	p := &Plan{
		Module:     m.id,
		Actions:    make([]PlanAction, 0, len(m.actions)),
		Results:    m.Results(),
		Submodules: m.Submodules(),
		Order:      m.Order(),
	}
	for _, a := range m.actions {
		pa := PlanAction{
			ID:        a.ID,
			Kind:      a.Kind,
			Module:    a.Module,
			Future:    a.Kind.FutureKind(),
			Params:    make([]PlanParam, 0, len(a.Params)),
			DependsOn: append([]string{}, a.DependsOn...),
		}
		for _, param := range a.Params {
			raw, err := json.Marshal(param.Value)
			if err != nil {
				return nil, fmt.Errorf("encoding param %q of %s: %w", param.Name, a.ID, err)
			}
			pa.Params = append(pa.Params, PlanParam{Name: param.Name, Value: raw})
		}
		p.Actions = append(p.Actions, pa)
	}

	hash, err := p.ComputeHash()
	if err != nil {
		return nil, err
	}
	p.Hash = hash
	return p, nil
}

// ComputeHash returns "sha256:<hex>" over the JSON encoding of the plan with
// its Hash field cleared.
func (p *Plan) ComputeHash() (string, error) {
	c := *p
	c.Hash = ""
	data, err := json.Marshal(&c)
	if err != nil {
		return "", fmt.Errorf("encoding plan: %w", err)
	}
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// Encode returns the indented JSON form of the plan.
func (p *Plan) Encode() ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}

// DecodePlan parses a plan and checks its hash.
func DecodePlan(data []byte) (*Plan, error) {
	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decoding plan: %w", err)
	}
	if p.Module == "" {
		return nil, invalidArgf("plan has no module id")
	}
	hash, err := p.ComputeHash()
	if err != nil {
		return nil, err
	}
	if p.Hash != hash {
		return nil, fmt.Errorf("%w: have %s, computed %s", ErrPlanHashMismatch, p.Hash, hash)
	}
	return &p, nil
}

// Action looks up a plan action by id.
func (p *Plan) Action(id string) (PlanAction, bool) {
	for _, a := range p.Actions {
		if a.ID == id {
			return a, true
		}
	}
	return PlanAction{}, false
}
