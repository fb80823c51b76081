package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/daap14/askdb/internal/sqlguard"
)

// ErrRejected is returned by validate when the statement fails the policy.
var ErrRejected = errors.New("statement rejected")

type validateOutput struct {
	Valid     bool   `json:"valid"`
	Policy    string `json:"policy"`
	Reason    string `json:"reason,omitempty"`
	Detail    string `json:"detail,omitempty"`
	Sanitized string `json:"sanitized,omitempty"`
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "validate [SQL]",
		Short: "Check a SQL statement against the safety policy",
		Long:  "Runs the same read-only safety check the question pipeline applies to generated SQL. Reads the statement from the arguments, --file, or stdin with --file -.",
		RunE: func(cmd *cobra.Command, args []string) error {
			sql, err := readStatement(cmd, file, args)
			if err != nil {
				return err
			}

			v := sqlguard.New(sqlguard.PolicyV1)
			res := v.Validate(sql)
			out := validateOutput{
				Valid:     res.Valid,
				Policy:    v.Policy().Version,
				Reason:    string(res.Reason),
				Detail:    res.Detail,
				Sanitized: res.Sanitized,
			}

			w := cmd.OutOrStdout()
			if opts.output == "json" {
				if err := printJSON(w, out); err != nil {
					return err
				}
			} else if res.Valid {
				fmt.Fprintf(w, "valid (policy %s)\n%s\n", out.Policy, out.Sanitized)
			} else {
				fmt.Fprintf(w, "rejected (policy %s): %s\n", out.Policy, out.Reason)
				if out.Detail != "" {
					fmt.Fprintf(w, "  %s\n", out.Detail)
				}
			}

			if !res.Valid {
				return fmt.Errorf("%w: %s", ErrRejected, res.Reason)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the statement from a file (- for stdin)")

	return cmd
}

func readStatement(cmd *cobra.Command, file string, args []string) (string, error) {
	switch {
	case file != "" && len(args) > 0:
		return "", errors.New("pass the statement as arguments or --file, not both")
	case file == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", file, err)
		}
		return string(data), nil
	case len(args) > 0:
		return strings.Join(args, " "), nil
	default:
		return "", errors.New("no statement given")
	}
}
