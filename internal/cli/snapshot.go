package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/closet/internal/collection"
	"github.com/mesh-intelligence/closet/internal/privacy"
	"github.com/mesh-intelligence/closet/internal/snapshot"
)

func newSnapshotCmd(a *app) *cobra.Command {
	var public bool
	cmd := &cobra.Command{
		Use:   "snapshot <db>",
		Short: "Write the collection to a SQLite database",
		Long: `Rebuild a SQLite database holding every record and embedded list of the
collection, for ad-hoc SQL queries. An existing database at the path is
replaced.

Example:
  closet snapshot wardrobe.db
  sqlite3 wardrobe.db 'SELECT id, description FROM textiles'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCollection(cmd.Context(), func(c *collection.Collection) error {
				var src snapshot.Source = c.Store()
				if public {
					src = privacy.New(c.Store())
				}
				if err := snapshot.Write(cmd.Context(), args[0], src); err != nil {
					return err
				}
				counts, err := snapshot.Counts(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if a.jsonMode {
					return printJSON(out(cmd), counts)
				}
				rows := make([][]string, 0, len(snapshot.Tables))
				for _, t := range snapshot.Tables {
					rows = append(rows, []string{t, fmt.Sprint(counts[t])})
				}
				fmt.Fprintf(out(cmd), "Wrote %s\n", args[0])
				return table(out(cmd), "TABLE\tROWS", rows)
			})
		},
	}
	cmd.Flags().BoolVar(&public, "public", false, "leave out private records and references")
	return cmd
}
