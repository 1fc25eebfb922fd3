package module

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_OrdinalsPerModuleAndKind(t *testing.T) {
	r := newRegistry(nil)

	register := func(kind ActionKind, module, subject, name string) string {
		t.Helper()
		a, err := r.register(kind, module, subject, name, nil)
		require.NoError(t, err)
		return a.ID
	}

	assert.Equal(t, "A#deploy/0", register(ActionDeploy, "A", "Token", ""))
	assert.Equal(t, "A#call/0", register(ActionCall, "A", "Token.mint", ""))
	assert.Equal(t, "A#deploy/1", register(ActionDeploy, "A", "Token", ""))
	assert.Equal(t, "B#deploy/0", register(ActionDeploy, "B", "Token", ""))
	// Named registrations still advance the counter.
	assert.Equal(t, "A#deploy/vault", register(ActionDeploy, "A", "Vault", "vault"))
	assert.Equal(t, "A#deploy/3", register(ActionDeploy, "A", "Token", ""))

	got, ok := r.get("A#call/0")
	require.True(t, ok)
	assert.Equal(t, ActionCall, got.Kind)

	only := r.actionsOf(map[string]struct{}{"A": {}})
	assert.Len(t, only, 5)
	for _, a := range only {
		assert.Equal(t, "A", a.Module)
	}
}

func TestRegistry_Duplicate(t *testing.T) {
	r := newRegistry(SubjectNaming)
	_, err := r.register(ActionDeploy, "M", "Token", "", nil)
	require.NoError(t, err)

	_, err = r.register(ActionDeploy, "M", "Token", "", nil)
	var dup *DuplicateActionIDError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "M#deploy/Token", dup.ID)
}

func TestRegistry_InvalidName(t *testing.T) {
	r := newRegistry(nil)
	_, err := r.register(ActionDeploy, "M", "Token", "a#b", nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestNamingByName(t *testing.T) {
	for _, name := range []string{"", "ordinal", "Ordinal"} {
		p, err := NamingByName(name)
		require.NoError(t, err)
		assert.Equal(t, "3", p.ActionName(ActionDeploy, "Token", 3))
	}

	p, err := NamingByName("subject")
	require.NoError(t, err)
	assert.Equal(t, "Token.mint", p.ActionName(ActionCall, "Token.mint", 0))

	_, err = NamingByName("random")
	assert.Error(t, err)
}

func TestNamingFunc(t *testing.T) {
	custom := NamingFunc(func(kind ActionKind, subject string, ordinal int) string {
		return subject + "-" + string(kind)
	})
	mod, err := Build("M", func(m *Context) (Results, error) {
		return Results{"t": m.Contract("Token", nil)}, nil
	}, WithNaming(custom))
	require.NoError(t, err)
	assert.Equal(t, "M#deploy/Token-deploy", mod.Results()["t"].ID)
}
