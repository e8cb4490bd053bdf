package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/closet/internal/collection"
	"github.com/mesh-intelligence/closet/internal/mediafile"
	"github.com/mesh-intelligence/closet/internal/store"
	"github.com/mesh-intelligence/closet/pkg/types"
)

// commonAddFlags are shared by every add subcommand.
type commonAddFlags struct {
	tags    []string
	private bool
}

func (f *commonAddFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&f.tags, "tag", nil, "tag name, created when missing (repeatable)")
	cmd.Flags().BoolVar(&f.private, "private", false, "mark the record private")
}

func newAddCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a record to the collection",
	}
	cmd.AddCommand(
		newAddTextileCmd(a),
		newAddEnsembleCmd(a),
		newAddMediaCmd(a),
		newAddNoteCmd(a),
		newAddTagCmd(a),
	)
	return cmd
}

// add runs build in a transaction, adds the record it returns and prints the
// assigned ID.
func (a *app) add(cmd *cobra.Command, f commonAddFlags, build func(c *collection.Collection, tx *store.Txn) (types.Record, error)) error {
	var added types.Record
	err := a.mutate(cmd.Context(), "add", func(c *collection.Collection, tx *store.Txn) error {
		rec, err := build(c, tx)
		if err != nil {
			return err
		}
		rec.Meta().Private = f.private
		if len(f.tags) > 0 {
			tags, err := ensureTags(tx, f.tags)
			if err != nil {
				return err
			}
			if err := setTags(rec, tags); err != nil {
				return err
			}
		}
		if _, err := tx.Add(rec); err != nil {
			return err
		}
		added = rec
		return nil
	})
	if err != nil {
		return err
	}
	if a.jsonMode {
		return printJSON(out(cmd), newRecordView(added, true))
	}
	fmt.Fprintf(out(cmd), "Added %s %s\n", added.Kind(), added.Meta().ID)
	return nil
}

// setTags replaces the tag list of rec.
func setTags(rec types.Record, tags []types.Handle) error {
	switch r := rec.(type) {
	case *types.Textile:
		r.Tags = tags
	case *types.Ensemble:
		r.Tags = tags
	case *types.MediaObject:
		r.Tags = tags
	case *types.Note:
		r.Tags = tags
	default:
		return fmt.Errorf("%s records carry no tags: %w", rec.Kind(), types.ErrInvalidData)
	}
	return nil
}

func tagsOf(rec types.Record) []types.Handle {
	switch r := rec.(type) {
	case *types.Textile:
		return r.Tags
	case *types.Ensemble:
		return r.Tags
	case *types.MediaObject:
		return r.Tags
	case *types.Note:
		return r.Tags
	}
	return nil
}

// parseAttr splits "type=value".
func parseAttr(s string) (types.Attribute, error) {
	k, v, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(k) == "" {
		return types.Attribute{}, fmt.Errorf("%w: attribute %q is not type=value", errUsage, s)
	}
	return types.Attribute{Type: strings.TrimSpace(k), Value: strings.TrimSpace(v)}, nil
}

func newAddTextileCmd(a *app) *cobra.Command {
	var (
		common commonAddFlags
		typ    string
		attrs  []string
		urls   []string
	)
	cmd := &cobra.Command{
		Use:   "textile <description>",
		Short: "Add a textile",
		Long: `Add a single garment.

Example:
  closet add textile "Linen shirt" --type shirt --attr fabric=linen --tag summer`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.add(cmd, common, func(_ *collection.Collection, _ *store.Txn) (types.Record, error) {
				t := &types.Textile{Description: args[0], Type: typ}
				for _, s := range attrs {
					at, err := parseAttr(s)
					if err != nil {
						return nil, err
					}
					t.Attributes = append(t.Attributes, at)
				}
				for _, u := range urls {
					t.URLs = append(t.URLs, types.URL{Path: u})
				}
				return t, nil
			})
		},
	}
	common.register(cmd)
	cmd.Flags().StringVar(&typ, "type", "", "garment type")
	cmd.Flags().StringArrayVar(&attrs, "attr", nil, "attribute as type=value (repeatable)")
	cmd.Flags().StringArrayVar(&urls, "url", nil, "web link (repeatable)")
	return cmd
}

func newAddEnsembleCmd(a *app) *cobra.Command {
	var (
		common   commonAddFlags
		children []string
	)
	cmd := &cobra.Command{
		Use:   "ensemble <description>",
		Short: "Add an ensemble of textiles",
		Long: `Add an ensemble. Children are textile IDs or handles.

Example:
  closet add ensemble "Office" --child I0001 --child I0004`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.add(cmd, common, func(_ *collection.Collection, tx *store.Txn) (types.Record, error) {
				e := &types.Ensemble{Description: args[0]}
				for _, ref := range children {
					rec, err := lookup(tx.Store(), types.KindTextile, ref)
					if err != nil {
						return nil, err
					}
					e.Children = append(e.Children, types.ChildRef{Ref: rec.Meta().Handle})
				}
				return e, nil
			})
		},
	}
	common.register(cmd)
	cmd.Flags().StringArrayVar(&children, "child", nil, "textile ID (repeatable)")
	return cmd
}

func newAddMediaCmd(a *app) *cobra.Command {
	var (
		common  commonAddFlags
		desc    string
		baseDir string
		attach  []string
	)
	cmd := &cobra.Command{
		Use:   "media <file>",
		Short: "Add a media file",
		Long: `Add a media object for a file. The checksum and MIME type are taken from
the file. With --attach the media is referenced from the given textiles or
ensembles.

Example:
  closet add media photos/shirt.jpg --base-dir photos --attach I0001`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.addAttached(cmd, common, attach, func() (types.Record, error) {
				m, err := mediafile.Describe(args[0], baseDir)
				if err != nil {
					return nil, err
				}
				if desc != "" {
					m.Description = desc
				}
				return m, nil
			})
		},
	}
	common.register(cmd)
	cmd.Flags().StringVar(&desc, "description", "", "description (default: file name)")
	cmd.Flags().StringVar(&baseDir, "base-dir", "", "store the path relative to this directory")
	cmd.Flags().StringArrayVar(&attach, "attach", nil, "textile or ensemble ID to attach to (repeatable)")
	return cmd
}

func newAddNoteCmd(a *app) *cobra.Command {
	var (
		common commonAddFlags
		typ    string
		attach []string
	)
	cmd := &cobra.Command{
		Use:   "note <text>",
		Short: "Add a note",
		Long: `Add a note. With --attach the note is referenced from the given textiles,
ensembles or media objects.

Example:
  closet add note "Wash cold, hang dry" --type Care --attach I0001`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.addAttached(cmd, common, attach, func() (types.Record, error) {
				return &types.Note{Text: types.StyledText{String: args[0]}, Type: typ}, nil
			})
		},
	}
	common.register(cmd)
	cmd.Flags().StringVar(&typ, "type", types.NoteTypeGeneral, "note type")
	cmd.Flags().StringArrayVar(&attach, "attach", nil, "textile, ensemble or media ID to attach to (repeatable)")
	return cmd
}

// addAttached adds the record from build and links it from each record in
// attach within the same transaction.
func (a *app) addAttached(cmd *cobra.Command, common commonAddFlags, attach []string, build func() (types.Record, error)) error {
	return a.add(cmd, common, func(_ *collection.Collection, tx *store.Txn) (types.Record, error) {
		rec, err := build()
		if err != nil {
			return nil, err
		}
		// Handles are minted up front so referrers can point at the record
		// before it is added.
		rec.Meta().Handle = types.NewHandle()
		for _, ref := range attach {
			if err := attachTo(tx, ref, rec); err != nil {
				return nil, err
			}
		}
		return rec, nil
	})
}

func attachTo(tx *store.Txn, ref string, rec types.Record) error {
	kinds := []types.Kind{types.KindTextile, types.KindEnsemble}
	if rec.Kind() == types.KindNote {
		kinds = append(kinds, types.KindMedia)
	}
	target, err := lookupAny(tx.Store(), ref, kinds...)
	if err != nil {
		return err
	}
	h := rec.Meta().Handle
	switch t := target.(type) {
	case *types.Textile:
		if rec.Kind() == types.KindMedia {
			t.Media = append(t.Media, types.MediaRef{Ref: h})
		} else {
			t.Notes = append(t.Notes, h)
		}
	case *types.Ensemble:
		if rec.Kind() == types.KindMedia {
			t.Media = append(t.Media, types.MediaRef{Ref: h})
		} else {
			t.Notes = append(t.Notes, h)
		}
	case *types.MediaObject:
		t.Notes = append(t.Notes, h)
	}
	return tx.Put(target)
}

func newAddTagCmd(a *app) *cobra.Command {
	var (
		color    string
		priority int
		private  bool
	)
	cmd := &cobra.Command{
		Use:   "tag <name>",
		Short: "Add a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.add(cmd, commonAddFlags{private: private}, func(_ *collection.Collection, tx *store.Txn) (types.Record, error) {
				if h, ok := findTag(tx.Store(), args[0]); ok {
					return nil, fmt.Errorf("%w: tag %q already exists as %s", types.ErrInvalidData, args[0], idOf(tx.Store(), types.KindTag, h))
				}
				return &types.Tag{Name: args[0], Color: color, Priority: priority}, nil
			})
		},
	}
	cmd.Flags().StringVar(&color, "color", "", "display color, e.g. #4a90d9")
	cmd.Flags().IntVar(&priority, "priority", 0, "sort priority")
	cmd.Flags().BoolVar(&private, "private", false, "mark the tag private")
	return cmd
}

func findTag(s *store.Store, name string) (types.Handle, bool) {
	var found types.Handle
	s.Iterate(types.KindTag, func(rec types.Record) bool {
		if strings.EqualFold(rec.(*types.Tag).Name, name) {
			found = rec.Meta().Handle
			return false
		}
		return true
	})
	return found, found != ""
}
