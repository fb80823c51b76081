package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/daap14/askdb/internal/catalog"
)

func newCatalogCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect dataset catalogue files",
	}

	var path string
	check := &cobra.Command{
		Use:   "check",
		Short: "Validate a catalogue file and list its datasets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := catalog.LoadFile(path)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if opts.output == "json" {
				return printJSON(w, map[string]any{
					"datasets": c.Datasets(),
					"agents":   c.Agents(),
					"tables":   catalog.Tables(c),
				})
			}

			tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "DATASET\tSTATUS\tAGENT\tTABLES")
			for _, d := range c.Datasets() {
				agent := "-"
				if d.AgentID != nil {
					agent = *d.AgentID
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ID, d.Status, agent, strings.Join(d.Tables, ","))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(w, "%d datasets, %d agents, %d tables\n", len(c.Datasets()), len(c.Agents()), len(catalog.Tables(c)))
			return nil
		},
	}
	check.Flags().StringVar(&path, "path", "catalog.yaml", "Catalogue file")

	cmd.AddCommand(check)
	return cmd
}
