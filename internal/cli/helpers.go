package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/closet/internal/collection"
	"github.com/mesh-intelligence/closet/internal/privacy"
	"github.com/mesh-intelligence/closet/internal/store"
	"github.com/mesh-intelligence/closet/pkg/types"
)

func (a *app) collectionOptions() collection.Options {
	return collection.Options{Force: a.force, Logger: a.log, Clock: a.now}
}

// withCollection opens the configured collection, runs fn and closes it.
func (a *app) withCollection(ctx context.Context, fn func(c *collection.Collection) error) (err error) {
	c, err := collection.Open(ctx, a.cfg.Store, a.collectionOptions())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(c)
}

// mutate runs fn in one undoable transaction and saves the collection when
// it commits.
func (a *app) mutate(ctx context.Context, desc string, fn func(c *collection.Collection, tx *store.Txn) error) error {
	return a.withCollection(ctx, func(c *collection.Collection) error {
		err := c.Store().Update(desc, false, func(tx *store.Txn) error {
			return fn(c, tx)
		})
		if err != nil {
			return err
		}
		return c.Save()
	})
}

// reader is the read surface shared by the store and the privacy filter.
type reader interface {
	privacy.Reader
	Count(k types.Kind) int
	Iterate(k types.Kind, fn func(types.Record) bool)
	Backlinks(h types.Handle) []types.Reference
}

// view returns the store itself, or a privacy filter over it when public is
// set.
func view(s *store.Store, public bool) reader {
	if public {
		return privacy.New(s)
	}
	return s
}

// lookup finds a record of kind k by user ID, falling back to the handle.
func lookup(r privacy.Reader, k types.Kind, ref string) (types.Record, error) {
	if rec, ok := r.GetByID(k, ref); ok {
		return rec, nil
	}
	if rec, ok := r.Get(k, types.Handle(ref)); ok {
		return rec, nil
	}
	return nil, fmt.Errorf("%s %q: %w", k, ref, types.ErrNotFound)
}

// lookupAny finds ref among the given kinds in order.
func lookupAny(r privacy.Reader, ref string, kinds ...types.Kind) (types.Record, error) {
	for _, k := range kinds {
		if rec, err := lookup(r, k, ref); err == nil {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("%q: %w", ref, types.ErrNotFound)
}

func parseKindArg(s string) (types.Kind, error) {
	k, err := types.ParseKind(s)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", s, err)
	}
	return k, nil
}

// ensureTag returns the handle of the tag named name, adding it when the
// store has none.
func ensureTag(tx *store.Txn, name string) (types.Handle, error) {
	if h, ok := findTag(tx.Store(), name); ok {
		return h, nil
	}
	return tx.Add(&types.Tag{Name: name})
}

func ensureTags(tx *store.Txn, names []string) ([]types.Handle, error) {
	var out []types.Handle
	for _, n := range names {
		h, err := ensureTag(tx, n)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

// summary is the one-line description shown in listings.
func summary(rec types.Record) string {
	switch r := rec.(type) {
	case *types.Textile:
		if r.Type != "" {
			return r.Description + " (" + r.Type + ")"
		}
		return r.Description
	case *types.Ensemble:
		return fmt.Sprintf("%s [%d textiles]", r.Description, len(r.Children))
	case *types.MediaObject:
		return r.Path
	case *types.Note:
		text, _, _ := strings.Cut(r.Text.String, "\n")
		return truncate(text, 60)
	case *types.Tag:
		return r.Name
	}
	return ""
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// recordView is the JSON shape of a record in listings and show output.
type recordView struct {
	Kind    string       `json:"kind"`
	Handle  types.Handle `json:"handle"`
	ID      string       `json:"id"`
	Private bool         `json:"private"`
	Change  int64        `json:"change"`
	Summary string       `json:"summary"`
	Record  types.Record `json:"record,omitempty"`
}

func newRecordView(rec types.Record, full bool) recordView {
	m := rec.Meta()
	v := recordView{
		Kind:    rec.Kind().String(),
		Handle:  m.Handle,
		ID:      m.ID,
		Private: m.Private,
		Change:  m.Change,
		Summary: summary(rec),
	}
	if full {
		v.Record = rec
	}
	return v
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

// table writes tab-separated rows aligned in columns, trimming trailing
// padding from each line.
func table(w io.Writer, header string, rows [][]string) error {
	var sb strings.Builder
	tw := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, header)
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, line := range strings.Split(strings.TrimRight(sb.String(), "\n"), "\n") {
		if _, err := fmt.Fprintln(w, strings.TrimRight(line, " ")); err != nil {
			return err
		}
	}
	return nil
}

// idOf renders a handle as the referenced record's user ID when it exists.
func idOf(r privacy.Reader, k types.Kind, h types.Handle) string {
	if rec, ok := r.Get(k, h); ok {
		return rec.Meta().ID
	}
	return string(h)
}

func idsOf(r privacy.Reader, k types.Kind, hs []types.Handle) string {
	ids := make([]string, len(hs))
	for i, h := range hs {
		ids[i] = idOf(r, k, h)
	}
	return strings.Join(ids, ", ")
}

func out(cmd *cobra.Command) io.Writer { return cmd.OutOrStdout() }
