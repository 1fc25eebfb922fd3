package cli

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	cfgFile    string
	server     string
	naming     string
	apiKey     string
	jsonOutput bool

	cliVersion = "dev"
)

const defaultServer = "http://localhost:8080"

// Execute runs the CLI
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

func newRootCmd(version string) *cobra.Command {
	cliVersion = version

	rootCmd := &cobra.Command{
		Use:          "ignition",
		Short:        "Declarative deployment module CLI",
		Long:         `Ignition builds deployment modules from manifests into plans and archives them on an ignition server.`,
		Version:      version,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ignition.toml or ign.toml)")
	rootCmd.PersistentFlags().StringVar(&server, "server", "", "server URL (default from config)")
	rootCmd.PersistentFlags().StringVar(&naming, "naming", "", "action naming policy: ordinal or subject (default from config)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key for publish and delete")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	// Add subcommands
	rootCmd.AddCommand(createPlanCmd())
	rootCmd.AddCommand(createValidateCmd())
	rootCmd.AddCommand(createPublishCmd())
	rootCmd.AddCommand(createPlansCmd())
	rootCmd.AddCommand(createConfigCmd())

	return rootCmd
}

// getServer returns the server URL from flag, env, project config, or global config
func getServer() string {
	// 1. Command line flag
	if server != "" {
		return server
	}

	// 2. Environment variable
	if env := os.Getenv("IGNITION_SERVER"); env != "" {
		return env
	}

	// 3. Project config file (TOML)
	if config := loadProjectConfigSilent(); config != nil && config.Server != "" {
		return config.Server
	}

	// 4. Global config file (YAML)
	if global, err := loadGlobalConfig(); err == nil && global.Server != "" {
		return global.Server
	}

	// 5. Default
	return defaultServer
}

// getAPIKey returns the API key from flag or env. Keys are never read from
// project config, which is usually committed.
func getAPIKey() string {
	if apiKey != "" {
		return apiKey
	}
	return os.Getenv("IGNITION_API_KEY")
}

// getNaming returns the naming policy from flag, env, or project config.
// Empty means the builder default.
func getNaming() string {
	if naming != "" {
		return naming
	}
	if env := os.Getenv("IGNITION_NAMING"); env != "" {
		return env
	}
	if config := loadProjectConfigSilent(); config != nil {
		return config.Naming
	}
	return ""
}

// getManifestPath returns the manifest argument or the configured default.
func getManifestPath(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	if config := loadProjectConfigSilent(); config != nil && config.Manifest != "" {
		return config.Manifest
	}
	return defaultManifest
}

// wantJSON reports whether output should be JSON: when asked for, or when
// stdout is not a terminal.
func wantJSON() bool {
	if jsonOutput {
		return true
	}
	return !term.IsTerminal(int(os.Stdout.Fd()))
}
