package module

import (
	"fmt"
	"strconv"
	"strings"
)

// NamingPolicy produces the logical name of an action registered without
// WithID. subject is the contract name ("Token"), the qualified method
// ("Token.mint") or the primitive name for sends; ordinal counts earlier
// registrations of the same kind in the same module.
type NamingPolicy interface {
	ActionName(kind ActionKind, subject string, ordinal int) string
}

// NamingFunc adapts a function to NamingPolicy.
type NamingFunc func(kind ActionKind, subject string, ordinal int) string

func (f NamingFunc) ActionName(kind ActionKind, subject string, ordinal int) string {
	return f(kind, subject, ordinal)
}

var (
	// OrdinalNaming names actions by their per-kind call order: Chess#deploy/0.
	OrdinalNaming NamingPolicy = NamingFunc(func(_ ActionKind, _ string, ordinal int) string {
		return strconv.Itoa(ordinal)
	})

	// SubjectNaming names actions after what they touch: Chess#deploy/BlockChess.
	// Deploying the same contract twice without WithID is then a duplicate.
	SubjectNaming NamingPolicy = NamingFunc(func(_ ActionKind, subject string, _ int) string {
		return subject
	})
)

// NamingByName resolves "ordinal" or "subject".
func NamingByName(name string) (NamingPolicy, error) {
	switch strings.ToLower(name) {
	case "", "ordinal":
		return OrdinalNaming, nil
	case "subject":
		return SubjectNaming, nil
	default:
		return nil, fmt.Errorf("unknown naming policy: %s", name)
	}
}

func actionID(moduleID string, kind ActionKind, name string) string {
	return moduleID + "#" + string(kind) + "/" + name
}

func resultID(moduleID, name string) string {
	return moduleID + "#result/" + name
}

// validName rejects names that would make ids ambiguous.
func validName(name string) bool {
	return name != "" && !strings.ContainsAny(name, "#/ \t\r\n")
}
