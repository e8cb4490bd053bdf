package xmlcodec

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mesh-intelligence/closet/pkg/types"
)

// Source is the read surface the writer exports. *store.Store implements it,
// and so does the privacy filter.
type Source interface {
	Handles(k types.Kind) []types.Handle
	Get(k types.Kind, h types.Handle) (types.Record, bool)
	Owner() types.Owner
	Home() types.Handle
	Bookmarks(k types.Kind) []types.Handle
}

// ProgressFunc receives the number of records processed so far and the total,
// or -1 when the total is unknown.
type ProgressFunc func(done, total int)

// progressEvery is the record interval between progress callbacks.
const progressEvery = 100

// Options controls document output.
type Options struct {
	Created  func() time.Time // Header creation date; time.Now when nil.
	Compress bool             // Gzip the document.
	Progress ProgressFunc
}

// Writer serializes a Source to XML.
type Writer struct {
	opts Options
}

// NewWriter returns a writer with the given options.
func NewWriter(opts Options) *Writer {
	if opts.Created == nil {
		opts.Created = time.Now
	}
	return &Writer{opts: opts}
}

// Write emits the complete document for src to out. Any failure is returned
// as a *WriteError.
func (w *Writer) Write(out io.Writer, src Source) error {
	var zw *gzip.Writer
	if w.opts.Compress {
		zw = gzip.NewWriter(out)
		out = zw
	}
	e := &encoder{w: bufio.NewWriter(out), progress: w.opts.Progress}
	e.document(src, w.opts.Created())
	if e.err == nil {
		e.err = e.w.Flush()
	}
	if zw != nil {
		if err := zw.Close(); err != nil && e.err == nil {
			e.err = err
		}
	}
	if e.err != nil {
		return &WriteError{Err: e.err}
	}
	return nil
}

// ExportFile writes src to path atomically: the document goes to a temporary
// file in the same directory, which is synced and renamed over path. On
// failure path is left untouched.
func ExportFile(path string, src Source, opts Options) error {
	fail := func(err error) error { return &WriteError{Path: path, Err: err} }

	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*.tmp")
	if err != nil {
		return fail(fmt.Errorf("creating temp file: %w", err))
	}
	tmpName := tmp.Name()

	if err := NewWriter(opts).Write(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fail(fmt.Errorf("syncing temp file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fail(fmt.Errorf("closing temp file: %w", err))
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fail(fmt.Errorf("renaming temp file: %w", err))
	}
	return nil
}

// encoder writes indented lines and remembers the first error.
type encoder struct {
	w        *bufio.Writer
	err      error
	progress ProgressFunc
	done     int
	total    int
}

func (e *encoder) line(depth int, s string) {
	if e.err != nil {
		return
	}
	for range depth {
		e.w.WriteString("  ")
	}
	e.w.WriteString(s)
	_, e.err = e.w.WriteString("\n")
}

// attrs is a flat list of name/value pairs rendered in order.
type attrs []string

func (a attrs) String() string {
	var b strings.Builder
	for i := 0; i+1 < len(a); i += 2 {
		b.WriteByte(' ')
		b.WriteString(a[i])
		b.WriteString(`="`)
		escape(&b, a[i+1], true)
		b.WriteByte('"')
	}
	return b.String()
}

// optional appends name=value only when value is non-empty.
func (a attrs) optional(name, value string) attrs {
	if value == "" {
		return a
	}
	return append(a, name, value)
}

func (e *encoder) empty(depth int, name string, a attrs) {
	e.line(depth, "<"+name+a.String()+"/>")
}

func (e *encoder) open(depth int, name string, a attrs) {
	e.line(depth, "<"+name+a.String()+">")
}

func (e *encoder) close(depth int, name string) {
	e.line(depth, "</"+name+">")
}

func (e *encoder) text(depth int, name, value string) {
	if value == "" {
		return
	}
	e.line(depth, "<"+name+">"+escapeText(value)+"</"+name+">")
}

func boolAttr(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (e *encoder) tick() {
	e.done++
	if e.progress != nil && e.done%progressEvery == 0 {
		e.progress(e.done, e.total)
	}
}

func (e *encoder) document(src Source, created time.Time) {
	handles := make([][]types.Handle, types.NumKinds)
	for _, k := range types.Kinds {
		handles[k] = src.Handles(k)
		e.total += len(handles[k])
	}

	e.line(0, `<?xml version="1.0" encoding="UTF-8"?>`)
	e.open(0, "database", attrs{"xmlns", Namespace})
	e.header(src.Owner(), created)

	for _, k := range writeOrder {
		if len(handles[k]) == 0 {
			continue
		}
		a := attrs{}
		if k == types.KindTextile {
			a = a.optional("home", homeAttr(src))
		}
		e.open(1, tableElem[k], a)
		for _, h := range handles[k] {
			rec, ok := src.Get(k, h)
			if !ok {
				continue
			}
			e.record(rec)
			e.tick()
		}
		e.close(1, tableElem[k])
	}

	e.bookmarks(src)
	e.close(0, "database")

	if e.progress != nil && e.err == nil {
		e.progress(e.done, e.total)
	}
}

// homeAttr renders the home textile, or "" when it is unset or names a
// textile the source does not have.
func homeAttr(src Source) string {
	h := src.Home()
	if h == "" {
		return ""
	}
	if _, ok := src.Get(types.KindTextile, h); !ok {
		return ""
	}
	return docHandle(h)
}

func (e *encoder) header(owner types.Owner, created time.Time) {
	e.open(1, "header", nil)
	e.empty(2, "created", attrs{"date", created.UTC().Format(time.DateOnly), "version", Producer})
	if !owner.IsZero() {
		e.open(2, "owner", nil)
		e.text(3, "name", owner.Name)
		e.text(3, "address", owner.Address)
		e.text(3, "email", owner.Email)
		e.close(2, "owner")
	}
	e.close(1, "header")
}

func (e *encoder) bookmarks(src Source) {
	var lines []attrs
	for _, k := range types.Kinds {
		for _, h := range src.Bookmarks(k) {
			if _, ok := src.Get(k, h); !ok {
				continue
			}
			lines = append(lines, attrs{"target", k.String(), "hlink", docHandle(h)})
		}
	}
	if len(lines) == 0 {
		return
	}
	e.open(1, "bookmarks", nil)
	for _, a := range lines {
		e.empty(2, "bookmark", a)
	}
	e.close(1, "bookmarks")
}

func metaAttrs(o *types.Object) attrs {
	return attrs{
		"handle", docHandle(o.Handle),
		"id", o.ID,
		"change", strconv.FormatInt(o.Change, 10),
		"priv", boolAttr(o.Private),
	}
}

// record writes one primary record at depth 2. Records with no child
// elements are written as empty elements.
func (e *encoder) record(rec types.Record) {
	name := recordElem[rec.Kind()]
	a := metaAttrs(rec.Meta())

	var body func(depth int)
	switch r := rec.(type) {
	case *types.Tag:
		a = a.optional("name", r.Name).optional("color", r.Color)
		a = append(a, "priority", strconv.Itoa(r.Priority))
	case *types.Textile:
		if r.Description != "" || r.Type != "" || len(r.Attributes)+len(r.URLs)+len(r.Media)+len(r.Notes)+len(r.Tags) > 0 {
			body = func(d int) {
				e.text(d, "description", r.Description)
				e.text(d, "type", r.Type)
				for _, at := range r.Attributes {
					e.attribute(d, at)
				}
				for _, u := range r.URLs {
					e.empty(d, "url", attrs{"priv", boolAttr(u.Private), "href", u.Path}.
						optional("type", u.Type).optional("description", u.Description))
				}
				e.mediaRefs(d, r.Media)
				e.refs(d, "noteref", r.Notes)
				e.refs(d, "tagref", r.Tags)
			}
		}
	case *types.Ensemble:
		if r.Description != "" || len(r.Children)+len(r.Media)+len(r.Notes)+len(r.Tags) > 0 {
			body = func(d int) {
				e.text(d, "description", r.Description)
				for _, c := range r.Children {
					e.empty(d, "childref", attrs{"hlink", docHandle(c.Ref), "priv", boolAttr(c.Private)})
				}
				e.mediaRefs(d, r.Media)
				e.refs(d, "noteref", r.Notes)
				e.refs(d, "tagref", r.Tags)
			}
		}
	case *types.MediaObject:
		body = func(d int) {
			e.empty(d, "file", attrs{"src", r.Path}.
				optional("mime", r.Mime).
				optional("checksum", r.Checksum).
				optional("description", r.Description))
			e.refs(d, "noteref", r.Notes)
			e.refs(d, "tagref", r.Tags)
		}
	case *types.Note:
		a = a.optional("type", r.Type)
		if r.Text.String != "" || len(r.Text.Tags)+len(r.Tags) > 0 {
			body = func(d int) {
				e.text(d, "text", r.Text.String)
				for _, st := range r.Text.Tags {
					e.style(d, st)
				}
				e.refs(d, "tagref", r.Tags)
			}
		}
	}

	if body == nil {
		e.empty(2, name, a)
		return
	}
	e.open(2, name, a)
	body(3)
	e.close(2, name)
}

func (e *encoder) attribute(d int, at types.Attribute) {
	a := attrs{"priv", boolAttr(at.Private), "type", at.Type, "value", at.Value}
	if len(at.Notes) == 0 {
		e.empty(d, "attribute", a)
		return
	}
	e.open(d, "attribute", a)
	e.refs(d+1, "noteref", at.Notes)
	e.close(d, "attribute")
}

func (e *encoder) mediaRefs(d int, refs []types.MediaRef) {
	for _, m := range refs {
		a := attrs{"hlink", docHandle(m.Ref), "priv", boolAttr(m.Private)}
		if m.Region == nil {
			e.empty(d, "objref", a)
			continue
		}
		e.open(d, "objref", a)
		e.empty(d+1, "region", attrs{
			"corner1_x", strconv.Itoa(m.Region.X1),
			"corner1_y", strconv.Itoa(m.Region.Y1),
			"corner2_x", strconv.Itoa(m.Region.X2),
			"corner2_y", strconv.Itoa(m.Region.Y2),
		})
		e.close(d, "objref")
	}
}

func (e *encoder) style(d int, st types.StyledTextTag) {
	a := attrs{"name", st.Name}.optional("value", st.Value)
	if len(st.Ranges) == 0 {
		e.empty(d, "style", a)
		return
	}
	e.open(d, "style", a)
	for _, r := range st.Ranges {
		e.empty(d+1, "range", attrs{"start", strconv.Itoa(r.Start), "end", strconv.Itoa(r.End)})
	}
	e.close(d, "style")
}

func (e *encoder) refs(d int, name string, handles []types.Handle) {
	for _, h := range handles {
		e.empty(d, name, attrs{"hlink", docHandle(h)})
	}
}
