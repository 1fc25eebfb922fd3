package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/ignition/pkg/client"
	"github.com/pendergraft/ignition/pkg/module"
)

const vaultManifest = `
modules:
  - module: Vault
    version: v1.0.0
    actions:
      - id: vault
        deploy: Vault
      - call: init
        target: "${vault}"
        args: [1]
    results:
      vault: "${vault}"
`

const loopManifest = `
modules:
  - module: Loop
    actions:
      - id: a
        deploy: A
        after: ["${b}"]
      - id: b
        deploy: B
        after: ["${a}"]
`

// isolate resets the global flags and moves the test into an empty
// directory with its own HOME.
func isolate(t *testing.T) string {
	t.Helper()

	origServer, origNaming, origCfg, origJSON, origKey := server, naming, cfgFile, jsonOutput, apiKey
	t.Cleanup(func() {
		server, naming, cfgFile, jsonOutput, apiKey = origServer, origNaming, origCfg, origJSON, origKey
	})
	server, naming, cfgFile, jsonOutput, apiKey = "", "", "", false, ""

	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("IGNITION_SERVER", "")
	t.Setenv("IGNITION_NAMING", "")
	t.Setenv("IGNITION_API_KEY", "")
	return dir
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	require.NoError(t, os.WriteFile(name, []byte(content), 0644))
	return name
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd("test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestGetServer(t *testing.T) {
	dir := isolate(t)

	t.Run("default when nothing set", func(t *testing.T) {
		assert.Equal(t, "http://localhost:8080", getServer())
	})

	t.Run("global config", func(t *testing.T) {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, ".ignition"), 0700))
		writeFile(t, filepath.Join(dir, ".ignition", "config.yaml"), "server: http://global:8080\n")
		assert.Equal(t, "http://global:8080", getServer())
	})

	t.Run("project config over global", func(t *testing.T) {
		writeFile(t, "ignition.toml", `server = "http://project:8080"`)
		assert.Equal(t, "http://project:8080", getServer())
	})

	t.Run("env var over config", func(t *testing.T) {
		t.Setenv("IGNITION_SERVER", "http://env-server:8080")
		assert.Equal(t, "http://env-server:8080", getServer())
	})

	t.Run("flag takes precedence", func(t *testing.T) {
		t.Setenv("IGNITION_SERVER", "http://env-server:8080")
		server = "http://flag-server:8080"
		defer func() { server = "" }()
		assert.Equal(t, "http://flag-server:8080", getServer())
	})
}

func TestGetNamingAndManifest(t *testing.T) {
	isolate(t)

	assert.Equal(t, "", getNaming())
	assert.Equal(t, "ignition.yaml", getManifestPath(nil))
	assert.Equal(t, "other.toml", getManifestPath([]string{"other.toml"}))

	writeFile(t, "ign.toml", "naming = \"subject\"\nmanifest = \"deploy/main.toml\"\n")
	assert.Equal(t, "subject", getNaming())
	assert.Equal(t, "deploy/main.toml", getManifestPath(nil))

	t.Setenv("IGNITION_NAMING", "ordinal")
	assert.Equal(t, "ordinal", getNaming())
}

func TestLoadProjectConfig(t *testing.T) {
	isolate(t)

	t.Run("no config file", func(t *testing.T) {
		_, _, err := loadProjectConfig()
		assert.True(t, os.IsNotExist(err))
		assert.Nil(t, loadProjectConfigSilent())
	})

	t.Run("explicit path", func(t *testing.T) {
		writeFile(t, "custom.toml", `server = "http://custom:8080"`)
		cfgFile = "custom.toml"
		defer func() { cfgFile = "" }()

		config, path, err := loadProjectConfig()
		require.NoError(t, err)
		assert.Equal(t, "custom.toml", path)
		assert.Equal(t, "http://custom:8080", config.Server)
	})

	t.Run("invalid TOML", func(t *testing.T) {
		writeFile(t, "ignition.toml", `server = `)
		_, _, err := loadProjectConfig()
		assert.ErrorContains(t, err, "parsing TOML")
	})
}

func TestConfigInit(t *testing.T) {
	isolate(t)

	out, err := run(t, "config", "init", "--server", "http://ignition.test", "--naming", "subject")
	require.NoError(t, err)
	assert.Contains(t, out, "Created ignition.toml")

	config, err := loadProjectConfigFromPath("ignition.toml")
	require.NoError(t, err)
	assert.Equal(t, "http://ignition.test", config.Server)
	assert.Equal(t, "subject", config.Naming)
	assert.Equal(t, "ignition.yaml", config.Manifest)

	_, err = run(t, "config", "init")
	assert.ErrorContains(t, err, "already exists")

	_, err = run(t, "config", "init", "--force")
	assert.NoError(t, err)
}

func TestConfigShow(t *testing.T) {
	isolate(t)
	writeFile(t, "ignition.toml", `server = "http://project:8080"`)

	out, err := run(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Loaded from: ignition.toml")
	assert.Contains(t, out, "IGNITION_SERVER=(not set)")
	assert.Contains(t, out, "Server:   http://project:8080")
	assert.Contains(t, out, "ordinal (default)")
}

func TestValidateCmd(t *testing.T) {
	isolate(t)

	writeFile(t, "vault.yaml", vaultManifest)
	out, err := run(t, "validate", "vault.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "module Vault is valid (2 actions, 0 submodules)")

	writeFile(t, "loop.yaml", loopManifest)
	_, err = run(t, "validate", "loop.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dependency cycle")

	_, err = run(t, "validate", "missing.yaml")
	assert.ErrorContains(t, err, "reading manifest")
}

func TestPlanCmd_JSON(t *testing.T) {
	isolate(t)
	writeFile(t, "vault.yaml", vaultManifest)

	out, err := run(t, "plan", "vault.yaml", "--json", "--naming", "subject")
	require.NoError(t, err)

	p, err := module.DecodePlan([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, "Vault", p.Module)
	assert.Equal(t, []string{"Vault#deploy/vault", "Vault#call/Vault.init"}, p.Order)
}

func TestPlanCmd_Order(t *testing.T) {
	isolate(t)
	writeFile(t, "vault.yaml", vaultManifest)

	out, err := run(t, "plan", "vault.yaml", "--order", "--json")
	require.NoError(t, err)

	var order []string
	require.NoError(t, json.Unmarshal([]byte(out), &order))
	assert.Equal(t, []string{"Vault#deploy/vault", "Vault#call/0"}, order)
}

func TestPrintPlanTable(t *testing.T) {
	isolate(t)
	writeFile(t, "vault.yaml", vaultManifest)

	m, err := buildManifest("vault.yaml", "", "", false)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, printPlanTable(&out, m))
	text := out.String()
	assert.Contains(t, text, "Module: Vault")
	assert.Contains(t, text, "Hash:   sha256:")
	assert.Contains(t, text, "Vault#call/0")
	assert.Contains(t, text, "vault -> Vault#deploy/vault")
}

func TestBuildManifest_Errors(t *testing.T) {
	isolate(t)
	writeFile(t, "vault.txt", vaultManifest)
	writeFile(t, "vault.yaml", vaultManifest)

	_, err := buildManifest("vault.txt", "", "", false)
	assert.Error(t, err)

	_, err = buildManifest("vault.txt", "yaml", "", false)
	assert.NoError(t, err)

	_, err = buildManifest("vault.yaml", "", "alphabetical", false)
	assert.Error(t, err)
}

func TestGetAPIKey(t *testing.T) {
	isolate(t)
	writeFile(t, "ignition.toml", `server = "http://project:8080"`)

	assert.Equal(t, "", getAPIKey())

	t.Setenv("IGNITION_API_KEY", "ign_key_env")
	assert.Equal(t, "ign_key_env", getAPIKey())

	apiKey = "ign_key_flag"
	assert.Equal(t, "ign_key_flag", getAPIKey())
}

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		key      string
		expected string
	}{
		{"ign_key_abcdefghijklmnop", "ign_key_...mnop"},
		{"short", "****"},
		{"12345678", "****"},
		{"123456789", "12345678...6789"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.expected, maskAPIKey(tt.key))
		})
	}
}

func TestShortHash(t *testing.T) {
	assert.Equal(t, "sha256:0123456789ab", shortHash("sha256:0123456789abcdef0123"))
	assert.Equal(t, "sha256:ff", shortHash("sha256:ff"))
	assert.Equal(t, "other", shortHash("other"))
}

func TestPublish(t *testing.T) {
	isolate(t)
	writeFile(t, "vault.toml", "[[modules]]\nmodule = \"Vault\"\n")

	var got client.CompileRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/plans", r.URL.Path)
		assert.True(t, strings.HasPrefix(r.Header.Get("User-Agent"), "ignition-cli/"))
		assert.Equal(t, "ign_key_env", r.Header.Get("X-API-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(client.PublishResult{
			Created: true,
			Plan:    client.Plan{Module: "Vault", Hash: "sha256:abc", NamingPolicy: "ordinal", ActionCount: 1},
		})
	}))
	defer srv.Close()
	server = srv.URL
	naming = "subject"
	t.Setenv("IGNITION_API_KEY", "ign_key_env")

	var out bytes.Buffer
	require.NoError(t, runPublish(context.Background(), &out, "vault.toml", "", false))

	assert.Equal(t, "toml", got.Format)
	assert.Equal(t, "subject", got.Naming)
	assert.Contains(t, got.Manifest, "module = \"Vault\"")

	// stdout is not a terminal under go test, so output is JSON
	var result client.PublishResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.True(t, result.Created)
	assert.Equal(t, "sha256:abc", result.Plan.Hash)
}

func TestPublish_ErrorDetails(t *testing.T) {
	isolate(t)
	writeFile(t, "loop.yaml", loopManifest)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/plans/compile", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":{"code":"DEPENDENCY_CYCLE","message":"dependency cycle","details":{"path":["Loop#deploy/a","Loop#deploy/b","Loop#deploy/a"]}}}`))
	}))
	defer srv.Close()
	server = srv.URL

	err := runPublish(context.Background(), &bytes.Buffer{}, "loop.yaml", "", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEPENDENCY_CYCLE")
	assert.Contains(t, err.Error(), "Loop#deploy/b")

	var apiErr *client.APIError
	assert.ErrorAs(t, err, &apiErr)
}

func TestPlansList(t *testing.T) {
	isolate(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Vault", r.URL.Query().Get("module"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_ = json.NewEncoder(w).Encode(client.ListPlansResponse{
			Data:       []client.Plan{{Module: "Vault", Hash: "sha256:abc", ActionCount: 2}},
			Pagination: client.Pagination{Limit: 5, HasMore: true, NextCursor: "Vault/sha256:abc"},
		})
	}))
	defer srv.Close()

	var out bytes.Buffer
	err := runPlansList(context.Background(), &out, client.New(srv.URL), client.ListOptions{Module: "Vault", Limit: 5})
	require.NoError(t, err)

	var resp struct {
		Plans      []client.Plan `json:"plans"`
		Count      int           `json:"count"`
		HasMore    bool          `json:"hasMore"`
		NextCursor string        `json:"nextCursor"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.True(t, resp.HasMore)
	assert.Equal(t, "Vault/sha256:abc", resp.NextCursor)
}

func TestPlansShow(t *testing.T) {
	isolate(t)
	writeFile(t, "vault.yaml", vaultManifest)

	m, err := buildManifest("vault.yaml", "", "", false)
	require.NoError(t, err)
	p, err := m.Plan()
	require.NoError(t, err)
	content, err := p.Encode()
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/plans/Vault":
			_ = json.NewEncoder(w).Encode(client.Plan{Module: "Vault", Hash: p.Hash, Plan: content})
		case "/api/v1/plans/Vault/sha256:ffff":
			_ = json.NewEncoder(w).Encode(client.Plan{Module: "Vault", Hash: "sha256:ffff", Plan: content})
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":"NOT_FOUND","message":"plan not found"}}`))
		}
	}))
	defer srv.Close()
	c := client.New(srv.URL)

	t.Run("latest to file", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, runPlansShow(context.Background(), &out, c, "Vault", "", "plan.json"))
		written, err := os.ReadFile("plan.json")
		require.NoError(t, err)
		assert.JSONEq(t, string(content), string(written))
	})

	t.Run("hash mismatch", func(t *testing.T) {
		err := runPlansShow(context.Background(), &bytes.Buffer{}, c, "Vault", "sha256:ffff", "")
		assert.ErrorIs(t, err, module.ErrPlanHashMismatch)
	})

	t.Run("not found", func(t *testing.T) {
		err := runPlansShow(context.Background(), &bytes.Buffer{}, c, "Token", "", "")
		assert.ErrorContains(t, err, "no plan found for Token")
	})
}

func TestPlansDelete_RequiresConfirmation(t *testing.T) {
	isolate(t)

	cmd := newRootCmd("test")
	cmd.SetIn(strings.NewReader("y\n"))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"plans", "delete", "Vault", "sha256:abc"})
	err := cmd.Execute()
	assert.ErrorContains(t, err, "--yes")
}
