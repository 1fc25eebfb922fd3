package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pendergraft/ignition/internal/auth"
	"github.com/pendergraft/ignition/internal/config"
	"github.com/pendergraft/ignition/internal/observability/metrics"
	"github.com/pendergraft/ignition/internal/server"
	"github.com/pendergraft/ignition/internal/storage"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "ignition-server",
		Short:   "Ignition server - compiles and archives deployment plans",
		Version: version,
	}

	// Default behavior (no subcommand) is to serve
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runServe()
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newKeysCmd())

	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the plan archive schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			logger := setupLogger(cfg)

			store, err := storage.New(cfg.Storage, logger)
			if err != nil {
				return fmt.Errorf("initializing storage: %w", err)
			}
			defer store.Close()

			return store.Migrate(cmd.Context())
		},
	}
}

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys for publish and delete",
	}

	cmd.AddCommand(newKeysCreateCmd())
	cmd.AddCommand(newKeysListCmd())

	return cmd
}

func newKeysCreateCmd() *cobra.Command {
	var name string
	var outputFile string
	var quiet bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long: `Create a new API key and print the AUTH_API_KEYS entry for it.

The server only stores the hash, so the key is shown once. By default it
is written to a file in the current directory.

EXAMPLES:
  # Create key, write to file (default)
  ignition-server keys create --name ci-release

  # Create key, print only (for piping to secrets manager)
  ignition-server keys create --name ci-release --quiet | gh secret set IGNITION_API_KEY
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeysCreate(cmd.OutOrStdout(), name, outputFile, quiet)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "name/label for the key (required)")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "write key to file (default: ./ignition-key-{name}.txt)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "print only the key (for piping)")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newKeysListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return runKeysList(cmd.OutOrStdout(), cfg.Auth)
		},
	}
}

func runKeysCreate(w io.Writer, name, outputFile string, quiet bool) error {
	if name == "" || strings.ContainsAny(name, "=,") {
		return fmt.Errorf("invalid key name %q", name)
	}

	key, err := auth.GenerateAPIKey()
	if err != nil {
		return fmt.Errorf("creating API key: %w", err)
	}
	entry := name + "=" + auth.HashAPIKey(key)

	if quiet {
		fmt.Fprintln(w, key)
		return nil
	}

	if outputFile == "" {
		outputFile = fmt.Sprintf("./ignition-key-%s.txt", name)
	}
	if dir := filepath.Dir(outputFile); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating directory: %w", err)
		}
	}
	if err := os.WriteFile(outputFile, []byte(key+"\n"), 0600); err != nil {
		return fmt.Errorf("writing key to file: %w", err)
	}

	fmt.Fprintf(w, "API key created: %s\n", name)
	fmt.Fprintf(w, "   Written to: %s (mode 0600)\n", outputFile)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "   Add this entry to AUTH_API_KEYS on the server:")
	fmt.Fprintf(w, "     %s\n", entry)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "   Usage:")
	fmt.Fprintf(w, "     export IGNITION_API_KEY=$(cat %s)\n", outputFile)
	fmt.Fprintln(w, "     ignition publish")

	return nil
}

func runKeysList(w io.Writer, cfg config.AuthConfig) error {
	if !cfg.Enabled() {
		fmt.Fprintln(w, "No API keys configured; publish and delete are open")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Create one with: ignition-server keys create --name \"my-key\"")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tHASH")
	for _, entry := range cfg.APIKeys {
		name, hash, _ := strings.Cut(entry, "=")
		if len(hash) > 12 {
			hash = hash[:12] + "..."
		}
		fmt.Fprintf(tw, "%s\t%s\n", strings.TrimSpace(name), hash)
	}
	return tw.Flush()
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg)
	logger.Info("starting ignition-server",
		"version", version,
		"storage", cfg.Storage.Type,
		"naming", cfg.Build.NamingPolicy,
		"auth", cfg.Auth.Enabled(),
	)

	metrics.Init(cfg.Metrics.Enabled, cfg.Metrics.ServiceName)

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(context.Background()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	srv := server.New(cfg, store, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func setupLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
