package module

// Parameter is a module input resolved by the runner, e.g. from a
// per-network parameters file. Default applies when the runner has no value.
type Parameter struct {
	Module  string `json:"module"`
	Name    string `json:"parameter"`
	Default any    `json:"default,omitempty"`
}

// Account refers to one of the runner's signing accounts by index.
type Account struct {
	Index int `json:"account"`
}
