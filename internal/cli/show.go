package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/closet/internal/collection"
	"github.com/mesh-intelligence/closet/pkg/types"
)

func newShowCmd(a *app) *cobra.Command {
	var public bool
	cmd := &cobra.Command{
		Use:   "show <kind> <id>",
		Short: "Display a record with full details",
		Long: `Show one record by user ID or handle, together with the records that
reference it.

Example:
  closet show textile I0001`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := parseKindArg(args[0])
			if err != nil {
				return err
			}
			return a.withCollection(cmd.Context(), func(c *collection.Collection) error {
				r := view(c.Store(), public)
				rec, err := lookup(r, k, args[1])
				if err != nil {
					return err
				}
				backlinks := r.Backlinks(rec.Meta().Handle)
				if a.jsonMode {
					return printJSON(out(cmd), struct {
						recordView
						ReferencedBy []types.Reference `json:"referenced_by"`
					}{newRecordView(rec, true), backlinks})
				}
				printRecord(out(cmd), r, rec)
				if len(backlinks) > 0 {
					fmt.Fprintln(out(cmd), "\nReferenced by:")
					for _, ref := range backlinks {
						fmt.Fprintf(out(cmd), "  %s %s\n", ref.Kind, idOf(r, ref.Kind, ref.Handle))
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&public, "public", false, "hide private records and references")
	return cmd
}

func printRecord(w io.Writer, r reader, rec types.Record) {
	m := rec.Meta()
	field := func(name, value string) {
		if value != "" {
			fmt.Fprintf(w, "%-12s %s\n", name+":", value)
		}
	}
	field("ID", m.ID)
	field("Handle", string(m.Handle))
	field("Kind", rec.Kind().String())
	if m.Private {
		field("Private", "yes")
	}
	if m.Change != 0 {
		field("Changed", time.Unix(m.Change, 0).UTC().Format("2006-01-02 15:04:05"))
	}

	switch t := rec.(type) {
	case *types.Textile:
		field("Description", t.Description)
		field("Type", t.Type)
		for _, at := range t.Attributes {
			line := at.Type + " = " + at.Value
			if at.Private {
				line += " (private)"
			}
			if len(at.Notes) > 0 {
				line += " [notes: " + idsOf(r, types.KindNote, at.Notes) + "]"
			}
			field("Attribute", line)
		}
		for _, u := range t.URLs {
			field("URL", strings.TrimSpace(u.Path+" "+u.Description))
		}
		field("Media", mediaIDs(r, t.Media))
		field("Notes", idsOf(r, types.KindNote, t.Notes))
		field("Tags", tagNames(r, t.Tags))
	case *types.Ensemble:
		field("Description", t.Description)
		children := make([]types.Handle, len(t.Children))
		for i, ch := range t.Children {
			children[i] = ch.Ref
		}
		field("Textiles", idsOf(r, types.KindTextile, children))
		field("Media", mediaIDs(r, t.Media))
		field("Notes", idsOf(r, types.KindNote, t.Notes))
		field("Tags", tagNames(r, t.Tags))
	case *types.MediaObject:
		field("Path", t.Path)
		field("MIME", t.Mime)
		field("Checksum", t.Checksum)
		field("Description", t.Description)
		field("Notes", idsOf(r, types.KindNote, t.Notes))
		field("Tags", tagNames(r, t.Tags))
	case *types.Note:
		field("Type", t.Type)
		field("Tags", tagNames(r, t.Tags))
		fmt.Fprintf(w, "\n%s\n", t.Text.String)
	case *types.Tag:
		field("Name", t.Name)
		field("Color", t.Color)
		if t.Priority != 0 {
			field("Priority", fmt.Sprint(t.Priority))
		}
	}
}

func mediaIDs(r reader, refs []types.MediaRef) string {
	hs := make([]types.Handle, len(refs))
	for i, m := range refs {
		hs[i] = m.Ref
	}
	return idsOf(r, types.KindMedia, hs)
}

func tagNames(r reader, hs []types.Handle) string {
	names := make([]string, 0, len(hs))
	for _, h := range hs {
		if rec, ok := r.Get(types.KindTag, h); ok {
			names = append(names, rec.(*types.Tag).Name)
		}
	}
	return strings.Join(names, ", ")
}
