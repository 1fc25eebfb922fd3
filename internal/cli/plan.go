package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pendergraft/ignition/internal/manifest"
	"github.com/pendergraft/ignition/pkg/module"
)

// defaultManifest is used when no file is given and no config names one
const defaultManifest = "ignition.yaml"

func createPlanCmd() *cobra.Command {
	var format string
	var orderOnly bool
	var verbose bool

	cmd := &cobra.Command{
		Use:   "plan [manifest]",
		Short: "Build a module locally and print its plan",
		Long: `Build the main module of a manifest and print the resulting plan.

The build runs locally; no server is contacted. On a terminal the plan is
printed as a table, otherwise (or with --json) as the encoded plan.

EXAMPLES:
  # Plan the default manifest (ignition.yaml or the one in ignition.toml)
  ignition plan

  # Plan a TOML manifest with subject naming
  ignition plan deploy.toml --naming subject

  # Print only the execution order
  ignition plan deploy.yaml --order
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := buildManifest(getManifestPath(args), format, getNaming(), verbose)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if orderOnly {
				return printOrder(out, m)
			}
			if wantJSON() {
				return printPlanJSON(out, m)
			}
			return printPlanTable(out, m)
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "manifest format: yaml, toml or json (default from extension)")
	cmd.Flags().BoolVar(&orderOnly, "order", false, "print only the execution order")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log build steps to stderr")

	return cmd
}

func createValidateCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "validate [manifest]",
		Short: "Check that a manifest builds",
		Long: `Parse, compile and build a manifest without printing the plan.

Exits non-zero and reports the offending module and action when the
manifest is malformed or the resulting graph is invalid.

EXAMPLES:
  ignition validate deploy.yaml
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := getManifestPath(args)
			m, err := buildManifest(path, format, getNaming(), false)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: module %s is valid (%d actions, %d submodules)\n",
				path, m.ID(), m.Len(), len(m.Submodules()))
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "manifest format: yaml, toml or json (default from extension)")

	return cmd
}

// buildManifest loads, compiles and builds the main module of a manifest.
func buildManifest(path, formatName, namingName string, verbose bool) (*module.Module, error) {
	format, err := resolveFormat(path, formatName)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	f, err := manifest.Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	def, err := manifest.Compile(f)
	if err != nil {
		return nil, fmt.Errorf("compiling %s: %w", path, err)
	}

	policy, err := module.NamingByName(namingName)
	if err != nil {
		return nil, err
	}
	opts := []module.BuildOption{module.WithNaming(policy)}
	if verbose {
		opts = append(opts, module.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))))
	}

	m, err := def.Build(opts...)
	if err != nil {
		return nil, describeBuildError(err)
	}
	return m, nil
}

// resolveFormat prefers an explicit format over the file extension.
func resolveFormat(path, name string) (manifest.Format, error) {
	if name != "" {
		return manifest.ParseFormat(name)
	}
	return manifest.DetectFormat(path)
}

// describeBuildError adds the cycle path or missing reference to graph errors.
func describeBuildError(err error) error {
	var graphErr *module.GraphError
	if errors.As(err, &graphErr) {
		switch {
		case errors.Is(err, module.ErrCycle):
			return fmt.Errorf("dependency cycle: %s", strings.Join(graphErr.Path, " -> "))
		case errors.Is(err, module.ErrDanglingReference):
			return fmt.Errorf("%s references %s: %s", graphErr.ActionID, graphErr.MissingID, graphErr.Reason)
		}
	}
	return fmt.Errorf("building module: %w", err)
}

func printOrder(w io.Writer, m *module.Module) error {
	order := m.Order()
	if wantJSON() {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(order)
	}
	for i, id := range order {
		fmt.Fprintf(w, "%3d  %s\n", i+1, id)
	}
	return nil
}

func printPlanJSON(w io.Writer, m *module.Module) error {
	p, err := m.Plan()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}

func printPlanTable(w io.Writer, m *module.Module) error {
	p, err := m.Plan()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Module: %s\n", p.Module)
	fmt.Fprintf(w, "Hash:   %s\n", p.Hash)
	if len(p.Submodules) > 0 {
		fmt.Fprintf(w, "Uses:   %s\n", strings.Join(p.Submodules, ", "))
	}
	fmt.Fprintln(w)

	byID := make(map[string]module.PlanAction, len(p.Actions))
	for _, a := range p.Actions {
		byID[a.ID] = a
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tACTION\tKIND\tDEPENDS ON")
	for i, id := range p.Order {
		a := byID[id]
		deps := "-"
		if len(a.DependsOn) > 0 {
			deps = strings.Join(a.DependsOn, ", ")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, a.ID, a.Kind, deps)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(p.Results) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Results:")
		names := make([]string, 0, len(p.Results))
		for name := range p.Results {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			fmt.Fprintf(w, "  %s -> %s\n", name, p.Results[name].ActionID)
		}
	}
	return nil
}
