package module

// FutureKind tags what a Future stands for.
type FutureKind string

const (
	FutureContractDeployment FutureKind = "ContractDeployment"
	FutureMethodCall         FutureKind = "MethodCall"
	FutureStaticCall         FutureKind = "StaticCall"
	FutureContractReference  FutureKind = "ContractReference"
	FutureRawSend            FutureKind = "RawSend"
	FutureSubModuleResult    FutureKind = "SubModuleResult"
)

// Future is a placeholder for a value that only exists after its producing
// action has run: a deployed address, a call's return value or a receipt.
// It carries an identity and never a live value. Two Futures are the same
// when their IDs match.
type Future struct {
	ID       string     `json:"future"`
	Kind     FutureKind `json:"kind"`
	ActionID string     `json:"action"`
}

// IsZero reports whether f is the zero Future handed back by a primitive
// that failed.
func (f Future) IsZero() bool { return f.ID == "" }

// Equal compares by id.
func (f Future) Equal(other Future) bool { return f.ID == other.ID }

func (f Future) String() string { return f.ID }

func (f Future) dependencyID() string { return f.ActionID }

// Dependency is anything that can appear in an After list: a Future or an
// ActionRef.
type Dependency interface {
	dependencyID() string
}

// ActionRef names an action by id. It is only meaningful as an explicit
// ordering hint passed to After.
type ActionRef string

func (r ActionRef) dependencyID() string { return string(r) }
