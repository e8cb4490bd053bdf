package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/closet/internal/collection"
)

func newCollectionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "collections",
		Short: "List the collections in the data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, err := collection.Discover(a.cfg.Store.DataDir)
			if err != nil {
				return err
			}
			if a.jsonMode {
				if infos == nil {
					infos = []collection.Info{}
				}
				return printJSON(out(cmd), infos)
			}
			if len(infos) == 0 {
				fmt.Fprintf(out(cmd), "No collections in %s\n", a.cfg.Store.DataDir)
				return nil
			}
			rows := make([][]string, len(infos))
			for i, info := range infos {
				locked := ""
				if info.Locked {
					locked = "locked"
				}
				modified := "-"
				if !info.Modified.IsZero() {
					modified = info.Modified.Format("2006-01-02 15:04")
				}
				rows[i] = []string{info.Name, info.Dir, info.Backend, modified, locked}
			}
			return table(out(cmd), "NAME\tDIRECTORY\tBACKEND\tMODIFIED\tSTATUS", rows)
		},
	}
}
