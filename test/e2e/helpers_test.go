//go:build e2e

package e2e

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/ignition/internal/config"
	"github.com/pendergraft/ignition/internal/server"
	"github.com/pendergraft/ignition/internal/storage"
	"github.com/pendergraft/ignition/pkg/client"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestContext holds shared test infrastructure
type TestContext struct {
	PostgresContainer *postgres.PostgresContainer
	ConnString        string
	TestServer        *httptest.Server
	Store             storage.Store
}

// setupPostgresE starts a Postgres container and returns the connection string
func setupPostgresE(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	postgresContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("ignition"),
		postgres.WithUsername("ignition"),
		postgres.WithPassword("ignition"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	connString, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = postgresContainer.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to get postgres connection string: %w", err)
	}

	return postgresContainer, connString, nil
}

// startServerE starts the ignition server in-process against Postgres
func startServerE(connString string) (*httptest.Server, storage.Store, error) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Storage: config.StorageConfig{
			Type: "postgres",
			Postgres: config.PostgresConfig{
				URL: connString,
			},
		},
		Build:     config.BuildConfig{NamingPolicy: "ordinal", MaxManifestSizeKB: 64},
		Logging:   config.LoggingConfig{Level: "debug", Format: "text"},
		RateLimit: config.RateLimitConfig{Enabled: false},
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create store: %w", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	srv := server.New(cfg, store, logger)
	return httptest.NewServer(srv.Handler()), store, nil
}

// newClient creates a new API client for the test server
func newClient(testServer *httptest.Server) *client.Client {
	return client.New(testServer.URL, client.WithUserAgent("ignition-e2e"))
}

// uniqueModule returns a module id that no other test uses, so tests can
// share one database.
func uniqueModule(prefix string) string {
	return prefix + "_" + uuid.New().String()[:8]
}

// tokenManifest declares a module that deploys a token, mints to a
// parameterized owner and exports the token.
func tokenManifest(moduleID, version string, supply int) string {
	return fmt.Sprintf(`
modules:
  - module: %s
    version: %q
    parameters:
      owner: "0x0000000000000000000000000000000000000001"
    actions:
      - id: token
        deploy: Token
        args: ["Test", "TST", %d]
      - call: mint
        target: "${token}"
        args: ["${param:owner}", 100]
    results:
      token: "${token}"
`, moduleID, version, supply)
}

// publish publishes a manifest and fails the test on error
func publish(t *testing.T, c *client.Client, manifest string) *client.PublishResult {
	t.Helper()
	result, err := c.Publish(context.Background(), client.CompileRequest{Manifest: manifest})
	require.NoError(t, err, "Failed to publish manifest")
	return result
}

// assertHTTPError asserts that an error is an APIError with the expected code
func assertHTTPError(t *testing.T, err error, expectedCode string) *client.APIError {
	t.Helper()
	require.Error(t, err, "Expected an error")
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr), "Error should be an APIError")
	require.Equal(t, expectedCode, apiErr.Code, "Error code mismatch")
	return apiErr
}
