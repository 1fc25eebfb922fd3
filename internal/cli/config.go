package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// projectConfigFiles is the search order for project config files
var projectConfigFiles = []string{"ignition.toml", "ign.toml"}

// ProjectConfig is the project-level TOML configuration
type ProjectConfig struct {
	Server   string `toml:"server"`
	Manifest string `toml:"manifest,omitempty"`
	Naming   string `toml:"naming,omitempty"`
}

// GlobalConfig is the user configuration (stored in ~/.ignition/config.yaml)
type GlobalConfig struct {
	Server string `yaml:"server"`
}

func createConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	cmd.AddCommand(createConfigInitCmd())
	cmd.AddCommand(createConfigShowCmd())

	return cmd
}

func createConfigInitCmd() *cobra.Command {
	var serverURL string
	var manifestPath string
	var namingPolicy string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create config file",
		Long: `Create an ignition.toml configuration file in the current directory.

This file stores project-specific settings like the server URL, the
default manifest and the action naming policy.

EXAMPLES:
  # Create config with default server
  ignition config init

  # Create config for a specific server
  ignition config init --server https://ignition.example.com

  # Overwrite existing config
  ignition config init --force
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(cmd.OutOrStdout(), serverURL, manifestPath, namingPolicy, force)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", defaultServer, "server URL")
	cmd.Flags().StringVar(&manifestPath, "manifest", defaultManifest, "default manifest file")
	cmd.Flags().StringVar(&namingPolicy, "naming", "ordinal", "action naming policy: ordinal or subject")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")

	return cmd
}

func createConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display current config",
		Long: `Display the current configuration.

Shows both the local project config (ignition.toml) and the global config from ~/.ignition/config.yaml.

EXAMPLES:
  ignition config show
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd.OutOrStdout())
		},
	}

	return cmd
}

func runConfigInit(w io.Writer, serverURL, manifestPath, namingPolicy string, force bool) error {
	configPath := "ignition.toml"

	// Check if any config file already exists
	for _, cfgFile := range projectConfigFiles {
		if _, err := os.Stat(cfgFile); err == nil && !force {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", cfgFile)
		}
	}

	content := fmt.Sprintf(`# Ignition project configuration

server = %q

# Manifest used when no file is given on the command line
manifest = %q

# Action naming policy: "ordinal" (Token#deploy/0) or "subject" (Token#deploy/Token)
naming = %q
`, serverURL, manifestPath, namingPolicy)

	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(w, "Created %s\n", configPath)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Configuration:")
	fmt.Fprintf(w, "  Server:   %s\n", serverURL)
	fmt.Fprintf(w, "  Manifest: %s\n", manifestPath)
	fmt.Fprintf(w, "  Naming:   %s\n", namingPolicy)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Next steps:")
	fmt.Fprintf(w, "  1. Run 'ignition validate' to check %s\n", manifestPath)
	fmt.Fprintln(w, "  2. Run 'ignition plan' to inspect the plan")
	fmt.Fprintln(w, "  3. Run 'ignition publish' to archive it")

	return nil
}

func runConfigShow(w io.Writer) error {
	fmt.Fprintln(w, "Configuration sources (in order of precedence):")
	fmt.Fprintln(w)

	// 1. Command line flags
	fmt.Fprintln(w, "1. Command line flags")
	fmt.Fprintln(w, "   --server, --naming, --api-key, --config")
	fmt.Fprintln(w)

	// 2. Environment variables
	fmt.Fprintln(w, "2. Environment variables")
	for _, name := range []string{"IGNITION_SERVER", "IGNITION_NAMING", "IGNITION_API_KEY"} {
		if v := os.Getenv(name); v != "" {
			if name == "IGNITION_API_KEY" {
				v = maskAPIKey(v)
			}
			fmt.Fprintf(w, "   %s=%s\n", name, v)
		} else {
			fmt.Fprintf(w, "   %s=(not set)\n", name)
		}
	}
	fmt.Fprintln(w)

	// 3. Local project config
	fmt.Fprintln(w, "3. Local project config (ignition.toml or ign.toml)")
	projectConfig, configPath, err := loadProjectConfig()
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintln(w, "   (not found)")
		} else {
			fmt.Fprintf(w, "   Error: %v\n", err)
		}
	} else {
		fmt.Fprintf(w, "   Loaded from: %s\n", configPath)
		if projectConfig.Server != "" {
			fmt.Fprintf(w, "   server: %s\n", projectConfig.Server)
		}
		if projectConfig.Manifest != "" {
			fmt.Fprintf(w, "   manifest: %s\n", projectConfig.Manifest)
		}
		if projectConfig.Naming != "" {
			fmt.Fprintf(w, "   naming: %s\n", projectConfig.Naming)
		}
	}
	fmt.Fprintln(w)

	// 4. Global config
	fmt.Fprintf(w, "4. Global config (%s)\n", globalConfigPath())
	globalConfig, err := loadGlobalConfig()
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintln(w, "   (not found)")
		} else {
			fmt.Fprintf(w, "   Error: %v\n", err)
		}
	} else if globalConfig.Server != "" {
		fmt.Fprintf(w, "   server: %s\n", globalConfig.Server)
	}
	fmt.Fprintln(w)

	// Effective config
	fmt.Fprintln(w, "Effective configuration:")
	fmt.Fprintf(w, "   Server:   %s\n", getServer())
	fmt.Fprintf(w, "   Manifest: %s\n", getManifestPath(nil))
	if key := getAPIKey(); key != "" {
		fmt.Fprintf(w, "   API Key:  %s\n", maskAPIKey(key))
	} else {
		fmt.Fprintln(w, "   API Key:  (not set)")
	}
	if n := getNaming(); n != "" {
		fmt.Fprintf(w, "   Naming:   %s\n", n)
	} else {
		fmt.Fprintln(w, "   Naming:   ordinal (default)")
	}

	return nil
}

// configDir is ~/.ignition
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".ignition")
}

func globalConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

func loadGlobalConfig() (*GlobalConfig, error) {
	data, err := os.ReadFile(globalConfigPath())
	if err != nil {
		return nil, err
	}
	var config GlobalConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	return &config, nil
}

// loadProjectConfig loads the project config from the first matching config file.
// Returns the config, the path it was loaded from, and an error.
func loadProjectConfig() (*ProjectConfig, string, error) {
	// If --config flag was provided, use that directly
	if cfgFile != "" {
		config, err := loadProjectConfigFromPath(cfgFile)
		if err != nil {
			return nil, cfgFile, err
		}
		return config, cfgFile, nil
	}

	// Search for config files in order
	for _, name := range projectConfigFiles {
		if _, err := os.Stat(name); err == nil {
			config, err := loadProjectConfigFromPath(name)
			if err != nil {
				return nil, name, err
			}
			return config, name, nil
		}
	}
	return nil, "", os.ErrNotExist
}

// loadProjectConfigFromPath loads a project config from a specific path
func loadProjectConfigFromPath(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config ProjectConfig
	if _, err := toml.Decode(string(data), &config); err != nil {
		return nil, fmt.Errorf("parsing TOML: %w", err)
	}

	return &config, nil
}

// loadProjectConfigSilent loads the project config without returning errors for missing files.
// Returns nil if the file doesn't exist, but returns errors for parse failures.
func loadProjectConfigSilent() *ProjectConfig {
	config, _, err := loadProjectConfig()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		// Show actionable errors (parse failures)
		fmt.Fprintf(os.Stderr, "Warning: failed to load project config: %v\n", err)
		return nil
	}
	return config
}

// maskAPIKey shows the first 8 and last 4 characters of a key.
func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:8] + "..." + key[len(key)-4:]
}
