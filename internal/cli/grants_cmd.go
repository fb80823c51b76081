package cli

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/daap14/askdb/internal/api/validation"
	"github.com/daap14/askdb/internal/permission"
)

type grantOutput struct {
	PrincipalID      string   `json:"principalId"`
	Kind             string   `json:"kind"`
	Role             string   `json:"role"`
	IsActive         bool     `json:"isActive"`
	Datasets         []string `json:"datasets"`
	Agents           []string `json:"agents"`
	CanViewDashboard bool     `json:"canViewDashboard"`
	CanViewReports   bool     `json:"canViewReports"`
}

func toGrantOutput(g permission.Grant) grantOutput {
	return grantOutput{
		PrincipalID:      g.PrincipalID,
		Kind:             string(g.Kind),
		Role:             string(g.Role),
		IsActive:         g.IsActive,
		Datasets:         orEmpty(g.Datasets),
		Agents:           orEmpty(g.Agents),
		CanViewDashboard: g.CanViewDashboard,
		CanViewReports:   g.CanViewReports,
	}
}

func newGrantsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grants",
		Short: "Manage principal grants",
	}
	cmd.AddCommand(newGrantsListCmd(opts), newGrantsSetCmd(opts), newGrantsDeleteCmd(opts))
	return cmd
}

func newGrantsListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every grant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := opts.backend(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			grants, err := b.Grants.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing grants: %w", err)
			}

			out := make([]grantOutput, 0, len(grants))
			for _, g := range grants {
				out = append(out, toGrantOutput(g))
			}

			w := cmd.OutOrStdout()
			if opts.output == "json" {
				return printJSON(w, out)
			}

			tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "PRINCIPAL\tKIND\tROLE\tACTIVE\tDATASETS\tAGENTS")
			for _, g := range out {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%s\n",
					g.PrincipalID, g.Kind, g.Role, g.IsActive,
					dashIfEmpty(g.Datasets), dashIfEmpty(g.Agents))
			}
			return tw.Flush()
		},
	}
}

func newGrantsSetCmd(opts *rootOptions) *cobra.Command {
	var (
		kind      string
		role      string
		inactive  bool
		datasets  []string
		agents    []string
		dashboard bool
		reports   bool
	)

	cmd := &cobra.Command{
		Use:   "set <principal>",
		Short: "Create or replace the grant of a principal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			principal := strings.ToLower(strings.TrimSpace(args[0]))

			if fieldErrors := validation.ValidatePutGrantRequest(validation.PutGrantRequest{
				PrincipalID: principal,
				Kind:        kind,
				Role:        role,
			}); len(fieldErrors) > 0 {
				msgs := make([]string, 0, len(fieldErrors))
				for _, fe := range fieldErrors {
					msgs = append(msgs, fe.Message)
				}
				return errors.New(strings.Join(msgs, "; "))
			}

			g := &permission.Grant{
				PrincipalID:      principal,
				Kind:             permission.PrincipalKind(kind),
				Role:             permission.Role(role),
				IsActive:         !inactive,
				Datasets:         orEmpty(datasets),
				Agents:           orEmpty(agents),
				CanViewDashboard: dashboard,
				CanViewReports:   reports,
			}

			b, err := opts.backend(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			if err := b.Grants.Upsert(cmd.Context(), g); err != nil {
				return fmt.Errorf("saving grant: %w", err)
			}

			w := cmd.OutOrStdout()
			if opts.output == "json" {
				return printJSON(w, toGrantOutput(*g))
			}
			fmt.Fprintf(w, "grant saved: %s (%s, active=%t)\n", g.PrincipalID, g.Role, g.IsActive)
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "user", "Principal kind (user, group)")
	cmd.Flags().StringVar(&role, "role", "user", "Role (admin, user)")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "Store the grant as inactive")
	cmd.Flags().StringSliceVar(&datasets, "datasets", nil, "Dataset ids the principal may query")
	cmd.Flags().StringSliceVar(&agents, "agents", nil, "Agent ids the principal may use")
	cmd.Flags().BoolVar(&dashboard, "dashboard", false, "Allow the dashboard view")
	cmd.Flags().BoolVar(&reports, "reports", false, "Allow the reports view")

	return cmd
}

func newGrantsDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <principal>",
		Short: "Delete the grant of a principal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := opts.backend(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			principal := strings.ToLower(strings.TrimSpace(args[0]))
			if err := b.Grants.Delete(cmd.Context(), principal); err != nil {
				return fmt.Errorf("deleting grant: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "grant deleted: %s\n", principal)
			return nil
		},
	}
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func dashIfEmpty(s []string) string {
	if len(s) == 0 {
		return "-"
	}
	return strings.Join(s, ",")
}
