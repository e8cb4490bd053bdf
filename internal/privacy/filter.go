// Package privacy provides a read-only view of a collection with private
// records and private references removed.
package privacy

import (
	"slices"

	"github.com/mesh-intelligence/closet/pkg/types"
)

// Reader is the read surface the filter wraps. *store.Store implements it.
type Reader interface {
	Get(k types.Kind, h types.Handle) (types.Record, bool)
	GetByID(k types.Kind, id string) (types.Record, bool)
	Handles(k types.Kind) []types.Handle
	Owner() types.Owner
	Home() types.Handle
	Bookmarks(k types.Kind) []types.Handle
}

// Filter wraps a Reader and hides everything marked private. It never
// modifies the wrapped reader; every record it returns is a sanitized copy.
//
// A record is hidden when its own private flag is set. Embedded entries
// (attributes, URLs, media references, child references) are dropped when
// they are private or when they point at a hidden record, and plain handle
// lists lose handles of hidden records.
type Filter struct {
	src Reader
}

// New returns a filter over src.
func New(src Reader) *Filter {
	return &Filter{src: src}
}

// Unwrap returns the underlying reader.
func (f *Filter) Unwrap() Reader { return f.src }

// Include reports whether the record of kind k with handle h exists and is
// not private.
func (f *Filter) Include(k types.Kind, h types.Handle) bool {
	rec, ok := f.src.Get(k, h)
	return ok && !rec.Meta().Private
}

// Get returns a sanitized copy of the record, or false when it is missing or
// private.
func (f *Filter) Get(k types.Kind, h types.Handle) (types.Record, bool) {
	rec, ok := f.src.Get(k, h)
	if !ok || rec.Meta().Private {
		return nil, false
	}
	return f.sanitize(rec), true
}

// GetByID is Get by user ID.
func (f *Filter) GetByID(k types.Kind, id string) (types.Record, bool) {
	rec, ok := f.src.GetByID(k, id)
	if !ok || rec.Meta().Private {
		return nil, false
	}
	return f.sanitize(rec), true
}

// Handles returns the handles of included records of kind k in sorted order.
func (f *Filter) Handles(k types.Kind) []types.Handle {
	return slices.DeleteFunc(f.src.Handles(k), func(h types.Handle) bool {
		return !f.Include(k, h)
	})
}

// Count returns the number of included records of kind k.
func (f *Filter) Count(k types.Kind) int {
	return len(f.Handles(k))
}

// Iterate calls fn with each included record of kind k until fn returns
// false.
func (f *Filter) Iterate(k types.Kind, fn func(types.Record) bool) {
	for _, h := range f.src.Handles(k) {
		rec, ok := f.Get(k, h)
		if !ok {
			continue
		}
		if !fn(rec) {
			return
		}
	}
}

// Backlinks returns the included records whose sanitized form references h.
func (f *Filter) Backlinks(h types.Handle) []types.Reference {
	var out []types.Reference
	for _, k := range types.Kinds {
		f.Iterate(k, func(rec types.Record) bool {
			if types.ReferencesHandle(rec, h) {
				out = append(out, types.Reference{Kind: k, Handle: rec.Meta().Handle})
			}
			return true
		})
	}
	return out
}

// Owner passes the collection owner through unchanged.
func (f *Filter) Owner() types.Owner { return f.src.Owner() }

// Home returns the home textile, or "" when it is private.
func (f *Filter) Home() types.Handle {
	h := f.src.Home()
	if h == "" || !f.Include(types.KindTextile, h) {
		return ""
	}
	return h
}

// Bookmarks returns the bookmarks of kind k that point at included records.
func (f *Filter) Bookmarks(k types.Kind) []types.Handle {
	return slices.DeleteFunc(f.src.Bookmarks(k), func(h types.Handle) bool {
		return !f.Include(k, h)
	})
}

// sanitize strips private and dangling-private content from rec, which is
// already a copy owned by the filter.
func (f *Filter) sanitize(rec types.Record) types.Record {
	switch r := rec.(type) {
	case *types.Textile:
		r.Attributes = slices.DeleteFunc(r.Attributes, func(a types.Attribute) bool { return a.Private })
		for i := range r.Attributes {
			r.Attributes[i].Notes = f.handles(types.KindNote, r.Attributes[i].Notes)
		}
		r.URLs = slices.DeleteFunc(r.URLs, func(u types.URL) bool { return u.Private })
		r.Media = f.mediaRefs(r.Media)
		r.Notes = f.handles(types.KindNote, r.Notes)
		r.Tags = f.handles(types.KindTag, r.Tags)
	case *types.Ensemble:
		r.Children = slices.DeleteFunc(r.Children, func(c types.ChildRef) bool {
			return c.Private || !f.Include(types.KindTextile, c.Ref)
		})
		r.Media = f.mediaRefs(r.Media)
		r.Notes = f.handles(types.KindNote, r.Notes)
		r.Tags = f.handles(types.KindTag, r.Tags)
	case *types.MediaObject:
		r.Notes = f.handles(types.KindNote, r.Notes)
		r.Tags = f.handles(types.KindTag, r.Tags)
	case *types.Note:
		r.Tags = f.handles(types.KindTag, r.Tags)
	}
	return rec
}

func (f *Filter) mediaRefs(refs []types.MediaRef) []types.MediaRef {
	return slices.DeleteFunc(refs, func(m types.MediaRef) bool {
		return m.Private || !f.Include(types.KindMedia, m.Ref)
	})
}

func (f *Filter) handles(k types.Kind, hs []types.Handle) []types.Handle {
	return slices.DeleteFunc(hs, func(h types.Handle) bool { return !f.Include(k, h) })
}
