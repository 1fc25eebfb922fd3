package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pendergraft/ignition/pkg/client"
)

func createPublishCmd() *cobra.Command {
	var format string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "publish [manifest]",
		Short: "Compile a manifest on the server and archive its plan",
		Long: `Send a manifest to the ignition server, which builds it and archives the
resulting plan under the module id and plan hash.

Publishing is idempotent: publishing an unchanged manifest again reports
the plan that is already archived.

EXAMPLES:
  # Publish the default manifest
  ignition publish

  # Publish to a specific server
  ignition publish deploy.yaml --server https://ignition.example.com

  # Compile on the server without archiving
  ignition publish deploy.yaml --dry-run
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(cmd.Context(), cmd.OutOrStdout(), getManifestPath(args), format, dryRun)
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "manifest format: yaml, toml or json (default from extension)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compile on the server without archiving the plan")

	return cmd
}

func runPublish(ctx context.Context, w io.Writer, path, formatName string, dryRun bool) error {
	format, err := resolveFormat(path, formatName)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading manifest: %w", err)
	}

	req := client.CompileRequest{
		Manifest: string(data),
		Format:   string(format),
		Naming:   getNaming(),
	}
	c := newClient()

	if dryRun {
		plan, err := c.Compile(ctx, req)
		if err != nil {
			return describeAPIError("compile failed", err)
		}
		if wantJSON() {
			return writeJSON(w, plan)
		}
		fmt.Fprintf(w, "Compiled %s (dry run, not archived)\n", plan.Module)
		printPlanSummary(w, plan)
		return nil
	}

	result, err := c.Publish(ctx, req)
	if err != nil {
		return describeAPIError("publish failed", err)
	}
	if wantJSON() {
		return writeJSON(w, result)
	}

	if result.Created {
		fmt.Fprintf(w, "Published %s\n", result.Plan.Module)
	} else {
		fmt.Fprintf(w, "Already published %s\n", result.Plan.Module)
	}
	printPlanSummary(w, &result.Plan)
	return nil
}

func newClient() *client.Client {
	opts := []client.Option{client.WithUserAgent("ignition-cli/" + cliVersion)}
	if key := getAPIKey(); key != "" {
		opts = append(opts, client.WithAPIKey(key))
	}
	return client.New(getServer(), opts...)
}

func printPlanSummary(w io.Writer, p *client.Plan) {
	if p.Version != "" {
		fmt.Fprintf(w, "  Version:    %s\n", p.Version)
	}
	fmt.Fprintf(w, "  Hash:       %s\n", p.Hash)
	fmt.Fprintf(w, "  Naming:     %s\n", p.NamingPolicy)
	fmt.Fprintf(w, "  Actions:    %d\n", p.ActionCount)
	if len(p.Submodules) > 0 {
		fmt.Fprintf(w, "  Submodules: %v\n", p.Submodules)
	}
	if p.CreatedAt != "" {
		fmt.Fprintf(w, "  Created:    %s\n", p.CreatedAt)
	}
}

// describeAPIError appends the server's error details, such as a cycle path,
// to the message.
func describeAPIError(prefix string, err error) error {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || len(apiErr.Details) == 0 {
		return fmt.Errorf("%s: %w", prefix, err)
	}
	details, _ := json.Marshal(apiErr.Details)
	return fmt.Errorf("%s: %w %s", prefix, err, details)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
