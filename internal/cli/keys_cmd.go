package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/daap14/askdb/internal/auth"
	"github.com/daap14/askdb/internal/permission"
)

type keyOutput struct {
	ID          string  `json:"id"`
	PrincipalID string  `json:"principalId"`
	Kind        string  `json:"kind"`
	Label       string  `json:"label"`
	Prefix      string  `json:"prefix"`
	CreatedAt   string  `json:"createdAt"`
	RevokedAt   *string `json:"revokedAt,omitempty"`
	Key         string  `json:"key,omitempty"`
}

func toKeyOutput(k *auth.APIKey) keyOutput {
	out := keyOutput{
		ID:          k.ID.String(),
		PrincipalID: k.PrincipalID,
		Kind:        string(k.PrincipalKind),
		Label:       k.Label,
		Prefix:      k.KeyPrefix,
		CreatedAt:   k.CreatedAt.UTC().Format(time.RFC3339),
	}
	if k.RevokedAt != nil {
		s := k.RevokedAt.UTC().Format(time.RFC3339)
		out.RevokedAt = &s
	}
	return out
}

func newKeysCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys",
	}
	cmd.AddCommand(newKeysCreateCmd(opts), newKeysListCmd(opts), newKeysRevokeCmd(opts))
	return cmd
}

func newKeysCreateCmd(opts *rootOptions) *cobra.Command {
	var (
		kind  string
		label string
	)

	cmd := &cobra.Command{
		Use:   "create <principal>",
		Short: "Issue an API key for a principal",
		Long:  "Issues a new API key. The raw key is printed once and cannot be recovered later.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if kind != string(permission.KindUser) && kind != string(permission.KindGroup) {
				return fmt.Errorf("kind must be %q or %q", permission.KindUser, permission.KindGroup)
			}

			b, err := opts.backend(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			svc := auth.NewService(b.Keys, opts.bcryptCost)
			rawKey, k, err := svc.Issue(cmd.Context(), permission.Principal{ID: args[0], Kind: permission.PrincipalKind(kind)}, label)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if opts.output == "json" {
				out := toKeyOutput(k)
				out.Key = rawKey
				return printJSON(w, out)
			}
			fmt.Fprintf(w, "key %s issued for %s\n%s\n", k.ID, k.PrincipalID, rawKey)
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "user", "Principal kind (user, group)")
	cmd.Flags().StringVar(&label, "label", "", "Free-form label to identify the key")

	return cmd
}

func newKeysListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list <principal>",
		Short: "List the API keys of a principal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := opts.backend(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			keys, err := b.Keys.List(cmd.Context(), strings.ToLower(strings.TrimSpace(args[0])))
			if err != nil {
				return fmt.Errorf("listing keys: %w", err)
			}

			out := make([]keyOutput, 0, len(keys))
			for i := range keys {
				out = append(out, toKeyOutput(&keys[i]))
			}

			w := cmd.OutOrStdout()
			if opts.output == "json" {
				return printJSON(w, out)
			}

			tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "ID\tPREFIX\tLABEL\tCREATED\tREVOKED")
			for _, k := range out {
				revoked := "-"
				if k.RevokedAt != nil {
					revoked = *k.RevokedAt
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", k.ID, k.Prefix, k.Label, k.CreatedAt, revoked)
			}
			return tw.Flush()
		},
	}
}

func newKeysRevokeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid key id %q: %w", args[0], err)
			}

			b, err := opts.backend(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			if err := b.Keys.Revoke(cmd.Context(), id); err != nil {
				return fmt.Errorf("revoking key: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "key revoked: %s\n", id)
			return nil
		},
	}
}
