// Package cli implements askdbctl, the operator command line for askdb.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/daap14/askdb/internal/auth"
	"github.com/daap14/askdb/internal/engine"
	"github.com/daap14/askdb/internal/migrations"
	"github.com/daap14/askdb/internal/permission"
)

var version = "dev"

// Backend is the metadata store the commands operate on.
type Backend struct {
	Grants  permission.Store
	Keys    auth.KeyRepository
	Migrate func(ctx context.Context) error
	Close   func()
}

// Opener connects to the metadata database.
type Opener func(ctx context.Context, databaseURL string) (*Backend, error)

// OpenPostgres is the production Opener.
func OpenPostgres(ctx context.Context, databaseURL string) (*Backend, error) {
	if databaseURL == "" {
		return nil, errors.New("a database URL is required (--database-url or DATABASE_URL)")
	}
	db, err := engine.New(ctx, databaseURL, engine.Options{MaxConns: 2})
	if err != nil {
		return nil, err
	}
	return &Backend{
		Grants:  permission.NewPostgresStore(db.Pool()),
		Keys:    auth.NewRepository(db.Pool()),
		Migrate: func(ctx context.Context) error { return migrations.RunOnPool(ctx, db.Pool()) },
		Close:   db.Close,
	}, nil
}

type rootOptions struct {
	databaseURL string
	output      string
	bcryptCost  int
	open        Opener
}

// backend opens the database for a command. Callers must Close it.
func (o *rootOptions) backend(cmd *cobra.Command) (*Backend, error) {
	b, err := o.open(cmd.Context(), o.databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return b, nil
}

// Execute runs askdbctl and returns the process exit code.
func Execute() int {
	cmd := NewRootCmd(OpenPostgres)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// NewRootCmd builds the command tree. open is called lazily by commands
// that need the database.
func NewRootCmd(open Opener) *cobra.Command {
	opts := &rootOptions{open: open}

	root := &cobra.Command{
		Use:           "askdbctl",
		Short:         "Operate an askdb deployment",
		Long:          "Validate SQL against the safety policy, check catalogue files, manage grants and API keys, and run migrations.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if opts.output != "table" && opts.output != "json" {
				return fmt.Errorf("unsupported output format %q: use 'table' or 'json'", opts.output)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&opts.databaseURL, "database-url", os.Getenv("DATABASE_URL"), "Postgres URL of the askdb metadata database")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "Output format (table, json)")
	root.PersistentFlags().IntVar(&opts.bcryptCost, "bcrypt-cost", 12, "bcrypt cost for new API keys")

	root.AddCommand(
		newValidateCmd(opts),
		newCatalogCmd(opts),
		newGrantsCmd(opts),
		newKeysCmd(opts),
		newMigrateCmd(opts),
	)

	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
