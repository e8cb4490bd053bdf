package xmlcodec

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/closet/internal/store"
	"github.com/mesh-intelligence/closet/pkg/types"
)

// ImportOptions controls an import.
type ImportOptions struct {
	Policy   HandlePolicy
	Batch    bool // Commit as a batch transaction: no undo entry, rebuild events instead of per-record events.
	Progress ProgressFunc
	Now      func() time.Time // Stamp for records without a change time and for placeholders.
}

// MergeCandidate pairs a store record with the document record that
// overwrote it under a preserved handle.
type MergeCandidate struct {
	Kind     types.Kind
	Handle   types.Handle
	Existing types.Record
	Imported types.Record
}

// Report summarizes a completed import.
type Report struct {
	Version         string
	Policy          HandlePolicy // Effective policy; never HandlesAuto.
	Added           [types.NumKinds]int
	Placeholders    [types.NumKinds]int
	IDsChanged      [types.NumKinds]int
	Merges          []MergeCandidate
	Warnings        []string
	ExplanatoryNote types.Handle // Shared note linked from placeholders, or "".
}

// Total returns the number of records the import created or overwrote,
// including placeholders and the explanatory note.
func (r *Report) Total() int {
	n := len(r.Merges)
	for _, k := range types.Kinds {
		n += r.Added[k] + r.Placeholders[k]
	}
	if r.ExplanatoryNote != "" {
		n++
	}
	return n
}

// ImportFile imports the document at path into s.
func ImportFile(ctx context.Context, path string, s *store.Store, opts ImportOptions) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return Import(ctx, f, s, opts)
}

// Import reads a document from r into s inside a single transaction. Any
// failure, including cancellation of ctx, rolls the transaction back and
// leaves s unchanged. Gzip-compressed input is detected automatically.
func Import(ctx context.Context, r io.Reader, s *store.Store, opts ImportOptions) (*Report, error) {
	if opts.Now == nil {
		opts.Now = s.Now
	}
	in, err := decompress(r)
	if err != nil {
		return nil, &ParseError{Line: 1, Err: err}
	}

	preserve := opts.Policy == HandlesPreserve || (opts.Policy == HandlesAuto && s.IsEmpty())
	imp := &importer{
		ctx:     ctx,
		store:   s,
		opts:    opts,
		log:     s.Logger(),
		dec:     xml.NewDecoder(in),
		handles: NewHandleTable(preserve),
		report:  &Report{Version: Version, Policy: HandlesRemap},
	}
	if preserve {
		imp.report.Policy = HandlesPreserve
	}

	tx, err := s.Begin("import", opts.Batch)
	if err != nil {
		return nil, err
	}
	imp.tx = tx
	if err := imp.run(); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := imp.placeholders(); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := imp.applyHeader(); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	if opts.Batch {
		s.RequestRebuild()
	}
	if opts.Progress != nil {
		opts.Progress(imp.count, -1)
	}
	imp.log.Info().
		Str("version", imp.report.Version).
		Str("policy", imp.report.Policy.String()).
		Int("records", imp.report.Total()).
		Int("merges", len(imp.report.Merges)).
		Msg("import complete")
	return imp.report, nil
}

func decompress(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		return gzip.NewReader(br)
	}
	return br, nil
}

// importer holds the state of one streaming parse.
type importer struct {
	ctx     context.Context
	store   *store.Store
	tx      *store.Txn
	opts    ImportOptions
	log     zerolog.Logger
	dec     *xml.Decoder
	handles *HandleTable
	report  *Report

	sawRoot bool
	count   int

	rec      types.Record // record being parsed
	existing types.Record // store version of rec before the import, for merges
	dup      bool         // rec redefines a handle seen earlier in the document
	inAttr   bool         // inside a textile <attribute>
	inOwner  bool         // inside <header><owner>
	text     *strings.Builder

	owner     types.Owner
	home      types.Handle
	bookmarks []types.Reference
}

type startHandler func(*importer, xml.StartElement) error
type endHandler func(*importer, string) error

var startHandlers = map[string]startHandler{
	"database":    (*importer).startDatabase,
	"owner":       func(i *importer, _ xml.StartElement) error { i.inOwner = true; return nil },
	"textiles":    (*importer).startTextiles,
	"bookmark":    (*importer).startBookmark,
	"tag":         (*importer).startRecord,
	"textile":     (*importer).startRecord,
	"ensemble":    (*importer).startRecord,
	"object":      (*importer).startRecord,
	"note":        (*importer).startRecord,
	"attribute":   (*importer).startAttribute,
	"url":         (*importer).startURL,
	"objref":      (*importer).startObjRef,
	"region":      (*importer).startRegion,
	"childref":    (*importer).startChildRef,
	"file":        (*importer).startFile,
	"style":       (*importer).startStyle,
	"range":       (*importer).startRange,
	"noteref":     (*importer).startNoteRef,
	"tagref":      (*importer).startTagRef,
	"description": (*importer).startText,
	"type":        (*importer).startText,
	"text":        (*importer).startText,
	"name":        (*importer).startText,
	"address":     (*importer).startText,
	"email":       (*importer).startText,
}

var endHandlers = map[string]endHandler{
	"owner":       func(i *importer, _ string) error { i.inOwner = false; return nil },
	"attribute":   func(i *importer, _ string) error { i.inAttr = false; return nil },
	"tag":         (*importer).endRecord,
	"textile":     (*importer).endRecord,
	"ensemble":    (*importer).endRecord,
	"object":      (*importer).endRecord,
	"note":        (*importer).endRecord,
	"description": (*importer).endText,
	"type":        (*importer).endText,
	"text":        (*importer).endText,
	"name":        (*importer).endText,
	"address":     (*importer).endText,
	"email":       (*importer).endText,
}

// run drives the token loop. Elements without a handler are skipped.
func (i *importer) run() error {
	for {
		tok, err := i.dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return i.parseError(err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if !i.sawRoot {
				if t.Name.Local != "database" {
					return i.parseError(fmt.Errorf("unexpected root element <%s>", t.Name.Local))
				}
				i.sawRoot = true
			}
			if fn, ok := startHandlers[t.Name.Local]; ok {
				if err := fn(i, t); err != nil {
					return err
				}
			}
		case xml.EndElement:
			if fn, ok := endHandlers[t.Name.Local]; ok {
				if err := fn(i, t.Name.Local); err != nil {
					return err
				}
			}
		case xml.CharData:
			if i.text != nil {
				i.text.Write(t)
			}
		}
	}
	if !i.sawRoot {
		return i.parseError(errors.New("document has no root element"))
	}
	return nil
}

func (i *importer) parseError(err error) error {
	line, _ := i.dec.InputPos()
	var syn *xml.SyntaxError
	if errors.As(err, &syn) {
		line = syn.Line
	}
	return &ParseError{Line: line, Err: err}
}

func (i *importer) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	i.report.Warnings = append(i.report.Warnings, msg)
	i.log.Warn().Msg(msg)
}

func attr(se xml.StartElement, name string) string {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func (i *importer) intAttr(se xml.StartElement, name string) (int, error) {
	v := attr(se, name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, i.parseError(fmt.Errorf("<%s> attribute %s: %w", se.Name.Local, name, err))
	}
	return n, nil
}

func boolValue(s string) bool {
	return s == "1" || s == "true"
}

func (i *importer) startDatabase(se xml.StartElement) error {
	ns := se.Name.Space
	if ns == "" {
		i.warn("document has no namespace; assuming schema %s", Version)
		return nil
	}
	v, ours, err := versionFromNamespace(ns)
	if !ours {
		i.warn("unknown namespace %q; assuming schema %s", ns, Version)
		return nil
	}
	if err != nil {
		return i.parseError(err)
	}
	i.report.Version = v.String()
	switch {
	case v[0] > currentVersion[0]:
		return &VersionError{Found: v.String(), Supported: Version}
	case v[0] < currentVersion[0]:
		i.warn("document schema %s is older than %s", v, Version)
	case v != currentVersion:
		i.warn("document schema %s differs from %s", v, Version)
	}
	return nil
}

func (i *importer) startTextiles(se xml.StartElement) error {
	if home := attr(se, "home"); home != "" {
		i.home = i.handles.Lookup(types.KindTextile, parseDocHandle(home))
	}
	return nil
}

func (i *importer) startBookmark(se xml.StartElement) error {
	k, err := types.ParseKind(attr(se, "target"))
	if err != nil {
		i.warn("skipping bookmark: %v", err)
		return nil
	}
	h := i.handles.Lookup(k, parseDocHandle(attr(se, "hlink")))
	i.bookmarks = append(i.bookmarks, types.Reference{Kind: k, Handle: h})
	return nil
}

func kindOfElement(name string) (types.Kind, bool) {
	for _, k := range types.Kinds {
		if recordElem[k] == name {
			return k, true
		}
	}
	return 0, false
}

func (i *importer) startRecord(se xml.StartElement) error {
	k, _ := kindOfElement(se.Name.Local)
	if i.rec != nil {
		return i.parseError(fmt.Errorf("<%s> nested inside <%s>", se.Name.Local, recordElem[i.rec.Kind()]))
	}
	rec, err := types.New(k)
	if err != nil {
		return i.parseError(err)
	}
	doc := attr(se, "handle")
	if doc == "" {
		return i.parseError(fmt.Errorf("<%s> without handle", se.Name.Local))
	}
	h, dup := i.handles.Define(k, parseDocHandle(doc))
	i.dup = dup
	if dup {
		i.warn("duplicate definition of %s %s; the later one wins", k, doc)
	}

	i.existing = nil
	if !dup && i.handles.Preserve() {
		if old, ok := i.store.Get(k, h); ok {
			i.existing = old
		}
	}

	change, err := strconv.ParseInt(attr(se, "change"), 10, 64)
	if err != nil {
		change = i.opts.Now().Unix()
	}
	meta := rec.Meta()
	meta.Handle = h
	meta.ID = attr(se, "id")
	meta.Private = boolValue(attr(se, "priv"))
	meta.Change = change

	switch r := rec.(type) {
	case *types.Tag:
		r.Name = attr(se, "name")
		r.Color = attr(se, "color")
		if r.Priority, err = i.intAttr(se, "priority"); err != nil {
			return err
		}
	case *types.Note:
		r.Type = attr(se, "type")
	}
	i.rec = rec
	return nil
}

func (i *importer) endRecord(string) error {
	rec := i.rec
	if rec == nil {
		return nil
	}
	i.rec = nil
	k := rec.Kind()
	meta := rec.Meta()

	if meta.ID != "" {
		if owner, ok := i.store.IDOwner(k, meta.ID); ok && owner != meta.Handle {
			id := i.store.FindNextID(k)
			i.log.Warn().Str("kind", k.String()).Str("id", meta.ID).Str("assigned", id).Msg("user id in use")
			meta.ID = id
			i.report.IDsChanged[k]++
		}
	}
	if err := i.tx.PutAt(rec, meta.Change); err != nil {
		return fmt.Errorf("importing %s %s: %w", k, meta.Handle, err)
	}

	if i.existing != nil {
		imported, _ := i.store.Get(k, meta.Handle)
		i.report.Merges = append(i.report.Merges, MergeCandidate{
			Kind:     k,
			Handle:   meta.Handle,
			Existing: i.existing,
			Imported: imported,
		})
		i.existing = nil
	} else if !i.dup {
		i.report.Added[k]++
	}

	i.count++
	if i.opts.Progress != nil && i.count%progressEvery == 0 {
		i.opts.Progress(i.count, -1)
	}
	return i.ctx.Err()
}

func (i *importer) startAttribute(se xml.StartElement) error {
	t, ok := i.rec.(*types.Textile)
	if !ok {
		return nil
	}
	t.Attributes = append(t.Attributes, types.Attribute{
		Type:    attr(se, "type"),
		Value:   attr(se, "value"),
		Private: boolValue(attr(se, "priv")),
	})
	i.inAttr = true
	return nil
}

func (i *importer) startURL(se xml.StartElement) error {
	t, ok := i.rec.(*types.Textile)
	if !ok {
		return nil
	}
	t.URLs = append(t.URLs, types.URL{
		Path:        attr(se, "href"),
		Type:        attr(se, "type"),
		Description: attr(se, "description"),
		Private:     boolValue(attr(se, "priv")),
	})
	return nil
}

func (i *importer) mediaRefs() *[]types.MediaRef {
	switch r := i.rec.(type) {
	case *types.Textile:
		return &r.Media
	case *types.Ensemble:
		return &r.Media
	}
	return nil
}

func (i *importer) startObjRef(se xml.StartElement) error {
	refs := i.mediaRefs()
	if refs == nil {
		return nil
	}
	*refs = append(*refs, types.MediaRef{
		Ref:     i.handles.Lookup(types.KindMedia, parseDocHandle(attr(se, "hlink"))),
		Private: boolValue(attr(se, "priv")),
	})
	return nil
}

func (i *importer) startRegion(se xml.StartElement) error {
	refs := i.mediaRefs()
	if refs == nil || len(*refs) == 0 {
		return nil
	}
	var reg types.Region
	var err error
	for _, f := range []struct {
		name string
		dst  *int
	}{
		{"corner1_x", &reg.X1},
		{"corner1_y", &reg.Y1},
		{"corner2_x", &reg.X2},
		{"corner2_y", &reg.Y2},
	} {
		if *f.dst, err = i.intAttr(se, f.name); err != nil {
			return err
		}
	}
	(*refs)[len(*refs)-1].Region = &reg
	return nil
}

func (i *importer) startChildRef(se xml.StartElement) error {
	e, ok := i.rec.(*types.Ensemble)
	if !ok {
		return nil
	}
	e.Children = append(e.Children, types.ChildRef{
		Ref:     i.handles.Lookup(types.KindTextile, parseDocHandle(attr(se, "hlink"))),
		Private: boolValue(attr(se, "priv")),
	})
	return nil
}

func (i *importer) startFile(se xml.StartElement) error {
	m, ok := i.rec.(*types.MediaObject)
	if !ok {
		return nil
	}
	m.Path = attr(se, "src")
	m.Mime = attr(se, "mime")
	m.Checksum = attr(se, "checksum")
	m.Description = attr(se, "description")
	return nil
}

func (i *importer) startStyle(se xml.StartElement) error {
	n, ok := i.rec.(*types.Note)
	if !ok {
		return nil
	}
	n.Text.Tags = append(n.Text.Tags, types.StyledTextTag{
		Name:  attr(se, "name"),
		Value: attr(se, "value"),
	})
	return nil
}

func (i *importer) startRange(se xml.StartElement) error {
	n, ok := i.rec.(*types.Note)
	if !ok || len(n.Text.Tags) == 0 {
		return nil
	}
	start, err := i.intAttr(se, "start")
	if err != nil {
		return err
	}
	end, err := i.intAttr(se, "end")
	if err != nil {
		return err
	}
	st := &n.Text.Tags[len(n.Text.Tags)-1]
	st.Ranges = append(st.Ranges, types.Range{Start: start, End: end})
	return nil
}

func (i *importer) startNoteRef(se xml.StartElement) error {
	h := i.handles.Lookup(types.KindNote, parseDocHandle(attr(se, "hlink")))
	switch r := i.rec.(type) {
	case *types.Textile:
		if i.inAttr && len(r.Attributes) > 0 {
			a := &r.Attributes[len(r.Attributes)-1]
			a.Notes = append(a.Notes, h)
		} else {
			r.Notes = append(r.Notes, h)
		}
	case *types.Ensemble:
		r.Notes = append(r.Notes, h)
	case *types.MediaObject:
		r.Notes = append(r.Notes, h)
	}
	return nil
}

func (i *importer) startTagRef(se xml.StartElement) error {
	h := i.handles.Lookup(types.KindTag, parseDocHandle(attr(se, "hlink")))
	switch r := i.rec.(type) {
	case *types.Textile:
		r.Tags = append(r.Tags, h)
	case *types.Ensemble:
		r.Tags = append(r.Tags, h)
	case *types.MediaObject:
		r.Tags = append(r.Tags, h)
	case *types.Note:
		r.Tags = append(r.Tags, h)
	}
	return nil
}

func (i *importer) startText(xml.StartElement) error {
	i.text = &strings.Builder{}
	return nil
}

func (i *importer) endText(name string) error {
	if i.text == nil {
		return nil
	}
	s := i.text.String()
	i.text = nil

	if i.inOwner {
		switch name {
		case "name":
			i.owner.Name = s
		case "address":
			i.owner.Address = s
		case "email":
			i.owner.Email = s
		}
		return nil
	}
	switch r := i.rec.(type) {
	case *types.Textile:
		switch name {
		case "description":
			r.Description = s
		case "type":
			r.Type = s
		}
	case *types.Ensemble:
		if name == "description" {
			r.Description = s
		}
	case *types.Note:
		if name == "text" {
			r.Text.String = s
		}
	}
	return nil
}

// placeholders creates a record for every reference that neither the
// document nor the store can resolve. Placeholders with a note list point at
// one shared explanatory note.
func (i *importer) placeholders() error {
	now := i.opts.Now()
	var note types.Handle
	explain := func() (types.Handle, error) {
		if note != "" {
			return note, nil
		}
		n := &types.Note{
			Type: types.NoteTypeGeneral,
			Text: types.StyledText{String: fmt.Sprintf(
				"Records created on %s to stand in for references missing from an imported document.",
				now.UTC().Format(time.DateTime))},
		}
		h, err := i.tx.Add(n)
		if err != nil {
			return "", err
		}
		note = h
		i.report.ExplanatoryNote = h
		return h, nil
	}

	for _, k := range types.Kinds {
		for _, h := range i.handles.Unresolved(k) {
			if i.store.Has(k, h) {
				continue
			}
			var rec types.Record
			switch k {
			case types.KindTag:
				id := i.store.FindNextID(k)
				rec = &types.Tag{Object: types.Object{ID: id}, Name: "Missing tag " + id}
			case types.KindNote:
				rec = &types.Note{
					Type: types.NoteTypeGeneral,
					Text: types.StyledText{String: "This note was referenced but missing from the imported document."},
				}
			default:
				n, err := explain()
				if err != nil {
					return err
				}
				switch k {
				case types.KindTextile:
					rec = &types.Textile{Description: "Missing textile", Notes: []types.Handle{n}}
				case types.KindEnsemble:
					rec = &types.Ensemble{Description: "Missing ensemble", Notes: []types.Handle{n}}
				case types.KindMedia:
					rec = &types.MediaObject{Description: "Missing media object", Notes: []types.Handle{n}}
				}
			}
			rec.Meta().Handle = h
			if err := i.tx.PutAt(rec, now.Unix()); err != nil {
				return fmt.Errorf("creating placeholder %s %s: %w", k, h, err)
			}
			i.report.Placeholders[k]++
			i.log.Warn().Str("kind", k.String()).Str("handle", string(h)).Msg("placeholder created for missing reference")
		}
	}
	return nil
}

// applyHeader copies header data that the store lacks, inside the import
// transaction so undoing the import also undoes it.
func (i *importer) applyHeader() error {
	if i.store.Owner().IsZero() && !i.owner.IsZero() {
		if err := i.tx.SetOwner(i.owner); err != nil {
			return err
		}
	}
	if i.store.Home() == "" && i.home != "" {
		if err := i.tx.SetHome(i.home); err != nil {
			return err
		}
	}
	for _, b := range i.bookmarks {
		if err := i.tx.AddBookmark(b.Kind, b.Handle); err != nil {
			return err
		}
	}
	return nil
}
