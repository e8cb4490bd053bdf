package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/closet/internal/collection"
	"github.com/mesh-intelligence/closet/pkg/types"
)

func newListCmd(a *app) *cobra.Command {
	var public bool
	cmd := &cobra.Command{
		Use:   "list <kind>",
		Short: "List records of one kind",
		Long: `List the textiles, ensembles, media, notes or tags of the collection in
handle order. With --public private records are left out.

Example:
  closet list textile
  closet list note --public --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := parseKindArg(args[0])
			if err != nil {
				return err
			}
			return a.withCollection(cmd.Context(), func(c *collection.Collection) error {
				var recs []types.Record
				view(c.Store(), public).Iterate(k, func(rec types.Record) bool {
					recs = append(recs, rec)
					return true
				})
				if a.jsonMode {
					views := make([]recordView, len(recs))
					for i, rec := range recs {
						views[i] = newRecordView(rec, false)
					}
					return printJSON(out(cmd), views)
				}
				return printList(cmd, k, recs)
			})
		},
	}
	cmd.Flags().BoolVar(&public, "public", false, "hide private records")
	return cmd
}

func printList(cmd *cobra.Command, k types.Kind, recs []types.Record) error {
	if len(recs) == 0 {
		fmt.Fprintf(out(cmd), "No %s records found.\n", k)
		return nil
	}
	rows := make([][]string, len(recs))
	for i, rec := range recs {
		m := rec.Meta()
		priv := ""
		if m.Private {
			priv = "yes"
		}
		rows[i] = []string{m.ID, shortHandle(m.Handle), priv, truncate(summary(rec), 50)}
	}
	if err := table(out(cmd), "ID\tHANDLE\tPRIVATE\tSUMMARY", rows); err != nil {
		return err
	}
	fmt.Fprintf(out(cmd), "Total: %d %s record(s)\n", len(recs), k)
	return nil
}

// shortHandle keeps the random tail of a handle, which is what differs
// between handles minted close together.
func shortHandle(h types.Handle) string {
	s := string(h)
	if len(s) > 8 {
		return strings.ToLower(s[len(s)-8:])
	}
	return s
}
