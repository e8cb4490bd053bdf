package types

import "slices"

// Object holds the fields shared by every primary record.
type Object struct {
	Handle  Handle // Internal identifier, minted on creation.
	ID      string // Human-facing ID (e.g. I0001), unique within the kind.
	Private bool   // Excluded from privacy-filtered views when set.
	Change  int64  // Unix time of the last commit.
}

// Record is implemented by every primary record kind.
// Clone returns a deep copy; References lists every handle the record points
// at, including handles held by embedded structures.
type Record interface {
	Kind() Kind
	Meta() *Object
	Clone() Record
	References() []Reference
}

// Compile-time checks: every primary kind implements Record.
var (
	_ Record = (*Textile)(nil)
	_ Record = (*Ensemble)(nil)
	_ Record = (*MediaObject)(nil)
	_ Record = (*Note)(nil)
	_ Record = (*Tag)(nil)
)

// New returns an empty record of kind k.
func New(k Kind) (Record, error) {
	switch k {
	case KindTextile:
		return &Textile{}, nil
	case KindEnsemble:
		return &Ensemble{}, nil
	case KindMedia:
		return &MediaObject{}, nil
	case KindNote:
		return &Note{}, nil
	case KindTag:
		return &Tag{}, nil
	default:
		return nil, ErrUnknownKind
	}
}

// Owner describes whoever maintains a collection. It is written to the XML
// header.
type Owner struct {
	Name    string
	Address string
	Email   string
}

// IsZero reports whether no owner field is set.
func (o Owner) IsZero() bool {
	return o == Owner{}
}

// Textile is a single garment.
type Textile struct {
	Object
	Description string
	Type        string
	Attributes  []Attribute
	URLs        []URL
	Media       []MediaRef
	Notes       []Handle
	Tags        []Handle
}

func (t *Textile) Kind() Kind    { return KindTextile }
func (t *Textile) Meta() *Object { return &t.Object }

// Clone returns a deep copy of the textile.
func (t *Textile) Clone() Record {
	cp := *t
	cp.Attributes = cloneAttributes(t.Attributes)
	cp.URLs = slices.Clone(t.URLs)
	cp.Media = cloneMediaRefs(t.Media)
	cp.Notes = slices.Clone(t.Notes)
	cp.Tags = slices.Clone(t.Tags)
	return &cp
}

// References lists notes, media, and tags referenced by the textile and its
// attributes.
func (t *Textile) References() []Reference {
	var refs []Reference
	refs = appendAttributeRefs(refs, t.Attributes)
	refs = appendMediaRefs(refs, t.Media)
	refs = appendHandles(refs, KindNote, t.Notes)
	refs = appendHandles(refs, KindTag, t.Tags)
	return refs
}

// Ensemble groups textiles worn together.
type Ensemble struct {
	Object
	Description string
	Children    []ChildRef
	Media       []MediaRef
	Notes       []Handle
	Tags        []Handle
}

func (e *Ensemble) Kind() Kind    { return KindEnsemble }
func (e *Ensemble) Meta() *Object { return &e.Object }

// Clone returns a deep copy of the ensemble.
func (e *Ensemble) Clone() Record {
	cp := *e
	cp.Children = slices.Clone(e.Children)
	cp.Media = cloneMediaRefs(e.Media)
	cp.Notes = slices.Clone(e.Notes)
	cp.Tags = slices.Clone(e.Tags)
	return &cp
}

// References lists child textiles, media, notes, and tags.
func (e *Ensemble) References() []Reference {
	var refs []Reference
	for _, c := range e.Children {
		refs = append(refs, Reference{Kind: KindTextile, Handle: c.Ref})
	}
	refs = appendMediaRefs(refs, e.Media)
	refs = appendHandles(refs, KindNote, e.Notes)
	refs = appendHandles(refs, KindTag, e.Tags)
	return refs
}

// MediaObject describes an external media file such as a photo of a garment.
type MediaObject struct {
	Object
	Path        string
	Mime        string
	Checksum    string
	Description string
	Notes       []Handle
	Tags        []Handle
}

func (m *MediaObject) Kind() Kind    { return KindMedia }
func (m *MediaObject) Meta() *Object { return &m.Object }

// Clone returns a deep copy of the media object.
func (m *MediaObject) Clone() Record {
	cp := *m
	cp.Notes = slices.Clone(m.Notes)
	cp.Tags = slices.Clone(m.Tags)
	return &cp
}

// References lists notes and tags.
func (m *MediaObject) References() []Reference {
	var refs []Reference
	refs = appendHandles(refs, KindNote, m.Notes)
	refs = appendHandles(refs, KindTag, m.Tags)
	return refs
}

// Note is a styled free-text note.
type Note struct {
	Object
	Text StyledText
	Type string
	Tags []Handle
}

// Note types.
const (
	NoteTypeGeneral = "General"
	NoteTypeCare    = "Care"
	NoteTypeFit     = "Fit"
)

func (n *Note) Kind() Kind    { return KindNote }
func (n *Note) Meta() *Object { return &n.Object }

// Clone returns a deep copy of the note.
func (n *Note) Clone() Record {
	cp := *n
	cp.Text = n.Text.Clone()
	cp.Tags = slices.Clone(n.Tags)
	return &cp
}

// References lists tags.
func (n *Note) References() []Reference {
	return appendHandles(nil, KindTag, n.Tags)
}

// Tag is a user-defined label. Tags carry no tag list of their own.
type Tag struct {
	Object
	Name     string
	Color    string
	Priority int
}

func (g *Tag) Kind() Kind    { return KindTag }
func (g *Tag) Meta() *Object { return &g.Object }

// Clone returns a copy of the tag.
func (g *Tag) Clone() Record {
	cp := *g
	return &cp
}

// References returns nil; tags do not reference other records.
func (g *Tag) References() []Reference { return nil }

func appendHandles(refs []Reference, k Kind, handles []Handle) []Reference {
	for _, h := range handles {
		refs = append(refs, Reference{Kind: k, Handle: h})
	}
	return refs
}

func appendMediaRefs(refs []Reference, media []MediaRef) []Reference {
	for _, m := range media {
		refs = append(refs, Reference{Kind: KindMedia, Handle: m.Ref})
	}
	return refs
}

func appendAttributeRefs(refs []Reference, attrs []Attribute) []Reference {
	for _, a := range attrs {
		refs = appendHandles(refs, KindNote, a.Notes)
	}
	return refs
}

// ReferencesHandle reports whether rec references h from any field.
func ReferencesHandle(rec Record, h Handle) bool {
	for _, ref := range rec.References() {
		if ref.Handle == h {
			return true
		}
	}
	return false
}

// Unlink removes every reference to h from rec, including references held by
// embedded attributes, media references and child references. It reports
// whether rec changed.
func Unlink(rec Record, h Handle) bool {
	changed := false
	drop := func(hs []Handle) []Handle {
		n := len(hs)
		hs = slices.DeleteFunc(hs, func(x Handle) bool { return x == h })
		changed = changed || len(hs) != n
		return hs
	}
	dropMedia := func(ms []MediaRef) []MediaRef {
		n := len(ms)
		ms = slices.DeleteFunc(ms, func(m MediaRef) bool { return m.Ref == h })
		changed = changed || len(ms) != n
		return ms
	}
	switch r := rec.(type) {
	case *Textile:
		for i := range r.Attributes {
			r.Attributes[i].Notes = drop(r.Attributes[i].Notes)
		}
		r.Media = dropMedia(r.Media)
		r.Notes = drop(r.Notes)
		r.Tags = drop(r.Tags)
	case *Ensemble:
		n := len(r.Children)
		r.Children = slices.DeleteFunc(r.Children, func(c ChildRef) bool { return c.Ref == h })
		changed = len(r.Children) != n
		r.Media = dropMedia(r.Media)
		r.Notes = drop(r.Notes)
		r.Tags = drop(r.Tags)
	case *MediaObject:
		r.Notes = drop(r.Notes)
		r.Tags = drop(r.Tags)
	case *Note:
		r.Tags = drop(r.Tags)
	}
	return changed
}
