package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pendergraft/ignition/pkg/client"
)

func createPlansCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plans",
		Short: "Browse and manage archived plans",
	}

	cmd.AddCommand(createPlansListCmd())
	cmd.AddCommand(createPlansShowCmd())
	cmd.AddCommand(createPlansDeleteCmd())

	return cmd
}

func createPlansListCmd() *cobra.Command {
	var opts client.ListOptions

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived plans",
		Long: `List archived plans ordered by module id and hash.

EXAMPLES:
  # List all plans
  ignition plans list

  # List plans of one module
  ignition plans list --module Token

  # Search module ids and page through results
  ignition plans list --query vault --limit 10
  ignition plans list --query vault --limit 10 --cursor 'Vault/sha256:...'
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlansList(cmd.Context(), cmd.OutOrStdout(), newClient(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Module, "module", "", "only plans of this module")
	cmd.Flags().StringVar(&opts.Version, "version", "", "only plans with this version")
	cmd.Flags().StringVar(&opts.Query, "query", "", "substring of the module id")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "number of plans to show")
	cmd.Flags().StringVar(&opts.Cursor, "cursor", "", "continue after this cursor")

	return cmd
}

func createPlansShowCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "show <module> [hash]",
		Short: "Show an archived plan",
		Long: `Show an archived plan. Without a hash the latest plan of the module is
shown: the one with the highest version, most recent first.

EXAMPLES:
  ignition plans show Token
  ignition plans show Token sha256:4f1c... --json
  ignition plans show Token --output token-plan.json
`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var hash string
			if len(args) == 2 {
				hash = args[1]
			}
			return runPlansShow(cmd.Context(), cmd.OutOrStdout(), newClient(), args[0], hash, output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the encoded plan to a file")

	return cmd
}

func createPlansDeleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <module> <hash>",
		Short: "Delete an archived plan",
		Long: `Delete an archived plan.

Asks for confirmation on a terminal; pass --yes to skip it. Without a
terminal --yes is required.

EXAMPLES:
  ignition plans delete Token sha256:4f1c... --yes
`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(), fmt.Sprintf("Delete %s %s?", args[0], args[1]))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
					return nil
				}
			}
			if err := newClient().DeletePlan(cmd.Context(), args[0], args[1]); err != nil {
				return describeAPIError("delete failed", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s %s\n", args[0], args[1])
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")

	return cmd
}

func runPlansList(ctx context.Context, w io.Writer, c *client.Client, opts client.ListOptions) error {
	resp, err := c.ListPlans(ctx, opts)
	if err != nil {
		return describeAPIError("failed to list plans", err)
	}

	if wantJSON() {
		return writeJSON(w, map[string]any{
			"plans":      resp.Data,
			"count":      len(resp.Data),
			"hasMore":    resp.Pagination.HasMore,
			"nextCursor": resp.Pagination.NextCursor,
		})
	}

	if len(resp.Data) == 0 {
		fmt.Fprintln(w, "No plans found")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODULE\tVERSION\tHASH\tACTIONS\tCREATED")
	for _, p := range resp.Data {
		version := p.Version
		if version == "" {
			version = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", p.Module, version, shortHash(p.Hash), p.ActionCount, p.CreatedAt)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if resp.Pagination.HasMore {
		fmt.Fprintf(w, "\n(showing %d plans, more available: --cursor %q)\n", len(resp.Data), resp.Pagination.NextCursor)
	}
	return nil
}

func runPlansShow(ctx context.Context, w io.Writer, c *client.Client, moduleID, hash, output string) error {
	var (
		p   *client.Plan
		err error
	)
	if hash == "" {
		p, err = c.GetLatestPlan(ctx, moduleID)
	} else {
		p, err = c.GetPlan(ctx, moduleID, hash)
	}
	if err != nil {
		if client.IsNotFound(err) {
			return fmt.Errorf("no plan found for %s", describeRef(moduleID, hash))
		}
		return describeAPIError("failed to get plan", err)
	}

	// Refuse to hand out a plan whose content does not match its hash.
	decoded, err := p.Decode()
	if err != nil {
		return fmt.Errorf("plan %s: %w", describeRef(moduleID, p.Hash), err)
	}

	if output != "" {
		if err := os.WriteFile(output, p.Plan, 0644); err != nil {
			return fmt.Errorf("writing plan: %w", err)
		}
		fmt.Fprintf(w, "Wrote %s\n", output)
		return nil
	}

	if wantJSON() {
		return writeJSON(w, p)
	}

	fmt.Fprintf(w, "Module: %s\n", p.Module)
	printPlanSummary(w, p)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Execution order:")
	for i, id := range decoded.Order {
		fmt.Fprintf(w, "%3d  %s\n", i+1, id)
	}
	return nil
}

// confirm asks a yes/no question. It fails when stdin is not a terminal.
func confirm(in io.Reader, w io.Writer, question string) (bool, error) {
	if f, ok := in.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		return false, fmt.Errorf("refusing to delete without confirmation: pass --yes")
	}
	fmt.Fprintf(w, "%s [y/N] ", question)
	var answer string
	if _, err := fmt.Fscanln(in, &answer); err != nil {
		return false, nil
	}
	return answer == "y" || answer == "Y" || answer == "yes", nil
}

func describeRef(moduleID, hash string) string {
	if hash == "" {
		return moduleID
	}
	return moduleID + "@" + hash
}

// shortHash trims "sha256:<hex>" to the first 12 hex digits.
func shortHash(hash string) string {
	const prefix = "sha256:"
	if len(hash) > len(prefix)+12 && hash[:len(prefix)] == prefix {
		return hash[:len(prefix)+12]
	}
	return hash
}
