package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/closet/internal/collection"
	"github.com/mesh-intelligence/closet/internal/store"
	"github.com/mesh-intelligence/closet/pkg/types"
)

func newRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <kind> <id>",
		Short: "Remove a record and every reference to it",
		Long: `Remove a record. Records that reference it are updated in the same
transaction so the collection keeps no dangling references.

Example:
  closet remove textile I0003`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := parseKindArg(args[0])
			if err != nil {
				return err
			}
			var id string
			var unlinked int
			err = a.mutate(cmd.Context(), "remove "+k.String()+" "+args[1], func(_ *collection.Collection, tx *store.Txn) error {
				rec, err := lookup(tx.Store(), k, args[1])
				if err != nil {
					return err
				}
				id = rec.Meta().ID
				if unlinked, err = removeRecord(tx, rec); err != nil {
					return err
				}
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "Removed %s %s", k, id)
			if unlinked > 0 {
				fmt.Fprintf(out(cmd), " (unlinked from %d record(s))", unlinked)
			}
			fmt.Fprintln(out(cmd))
			return nil
		},
	}
}

// removeRecord strips references to rec from every referrer, then removes
// it. Returns the number of referrers updated.
func removeRecord(tx *store.Txn, rec types.Record) (int, error) {
	s := tx.Store()
	h := rec.Meta().Handle
	n := 0
	for _, ref := range s.Backlinks(h) {
		referrer, ok := s.Get(ref.Kind, ref.Handle)
		if !ok || !types.Unlink(referrer, h) {
			continue
		}
		if err := tx.Put(referrer); err != nil {
			return n, err
		}
		n++
	}
	return n, tx.Remove(rec.Kind(), h)
}
