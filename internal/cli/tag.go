package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/closet/internal/collection"
	"github.com/mesh-intelligence/closet/internal/store"
	"github.com/mesh-intelligence/closet/pkg/types"
)

func newTagCmd(a *app) *cobra.Command {
	var remove bool
	cmd := &cobra.Command{
		Use:   "tag <kind> <id> <tag>...",
		Short: "Add or remove tags on a record",
		Long: `Attach tags to a record by name, creating missing tags. With --remove the
named tags are detached instead; the tags themselves are kept.

Example:
  closet tag textile I0001 summer linen
  closet tag textile I0001 summer --remove`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := parseKindArg(args[0])
			if err != nil {
				return err
			}
			if k == types.KindTag {
				return fmt.Errorf("%w: tags cannot be tagged", errUsage)
			}
			var tags []types.Handle
			err = a.mutate(cmd.Context(), "tag "+k.String()+" "+args[1], func(_ *collection.Collection, tx *store.Txn) error {
				rec, err := lookup(tx.Store(), k, args[1])
				if err != nil {
					return err
				}
				tags = tagsOf(rec)
				for _, name := range args[2:] {
					if remove {
						h, ok := findTag(tx.Store(), name)
						if !ok {
							return fmt.Errorf("tag %q: %w", name, types.ErrNotFound)
						}
						tags = slices.DeleteFunc(tags, func(x types.Handle) bool { return x == h })
						continue
					}
					h, err := ensureTag(tx, name)
					if err != nil {
						return err
					}
					if !slices.Contains(tags, h) {
						tags = append(tags, h)
					}
				}
				if err := setTags(rec, tags); err != nil {
					return err
				}
				return tx.Put(rec)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "%s %s now has %d tag(s)\n", k, args[1], len(tags))
			return nil
		},
	}
	cmd.Flags().BoolVar(&remove, "remove", false, "detach the tags instead")
	return cmd
}
