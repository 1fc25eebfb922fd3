package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeys(t *testing.T, named map[string]string) *StaticKeys {
	t.Helper()
	var entries []string
	for name, key := range named {
		entries = append(entries, name+"="+HashAPIKey(key))
	}
	keys, err := ParseKeys(entries)
	require.NoError(t, err)
	return keys
}

func statusOnly(w http.ResponseWriter, status int, code, message string) {
	w.WriteHeader(status)
}

func TestMiddleware_ValidKey(t *testing.T) {
	keys := testKeys(t, map[string]string{"ci": "ign_key_valid"})

	var capturedCtx context.Context
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedCtx = r.Context()
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("POST", "/", nil)
	req.Header.Set("X-API-Key", "ign_key_valid")
	rec := httptest.NewRecorder()

	Middleware(keys, statusOnly)(handler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	key := KeyFromContext(capturedCtx)
	require.NotNil(t, key)
	assert.Equal(t, "ci", key.Name)
	assert.Equal(t, "ci", KeyNameFromContext(capturedCtx))
}

func TestMiddleware_InvalidKey(t *testing.T) {
	keys := testKeys(t, map[string]string{"ci": "ign_key_valid"})

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run")
	})

	req := httptest.NewRequest("POST", "/", nil)
	req.Header.Set("X-API-Key", "ign_key_invalid")
	rec := httptest.NewRecorder()

	Middleware(keys, statusOnly)(handler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_MissingKey(t *testing.T) {
	keys := testKeys(t, nil)

	var gotCode string
	writeErr := func(w http.ResponseWriter, status int, code, message string) {
		gotCode = code
		w.WriteHeader(status)
	}

	req := httptest.NewRequest("POST", "/", nil)
	rec := httptest.NewRecorder()

	Middleware(keys, writeErr)(http.NotFoundHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", gotCode)
}

func TestMiddleware_BearerToken(t *testing.T) {
	keys := testKeys(t, map[string]string{"deployer": "ign_key_bearer"})

	var capturedCtx context.Context
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedCtx = r.Context()
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("POST", "/", nil)
	req.Header.Set("Authorization", "Bearer ign_key_bearer")
	rec := httptest.NewRecorder()

	Middleware(keys, statusOnly)(handler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "deployer", KeyNameFromContext(capturedCtx))
}

func TestKeyNameFromContext_Empty(t *testing.T) {
	assert.Nil(t, KeyFromContext(context.Background()))
	assert.Equal(t, "", KeyNameFromContext(context.Background()))
}

func TestParseKeys(t *testing.T) {
	hash := HashAPIKey("ign_key_test")

	keys, err := ParseKeys([]string{"ci=" + hash, " ", "ops = " + strings.ToUpper(HashAPIKey("other"))})
	require.NoError(t, err)
	assert.Equal(t, 2, keys.Len())

	key, err := keys.ValidateAPIKey(context.Background(), "other")
	require.NoError(t, err)
	assert.Equal(t, "ops", key.Name)

	_, err = keys.ValidateAPIKey(context.Background(), hash)
	assert.ErrorIs(t, err, ErrInvalidKey)

	for _, bad := range []string{"no-separator", "=" + hash, "ci=abc", "ci=" + strings.Repeat("zz", 32)} {
		_, err := ParseKeys([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestGenerateAPIKey(t *testing.T) {
	key, err := GenerateAPIKey()
	require.NoError(t, err)
	assert.True(t, len(key) > len(KeyPrefix))
	assert.Equal(t, KeyPrefix, key[:len(KeyPrefix)])

	other, err := GenerateAPIKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}

func TestHashAPIKey(t *testing.T) {
	hash := HashAPIKey("ign_key_test")
	assert.Len(t, hash, 64) // SHA256 hex = 64 chars

	// Same key should produce same hash
	hash2 := HashAPIKey("ign_key_test")
	assert.Equal(t, hash, hash2)

	// Different key should produce different hash
	hash3 := HashAPIKey("ign_key_different")
	assert.NotEqual(t, hash, hash3)
}
