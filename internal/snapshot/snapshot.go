// Package snapshot exports a collection into a SQLite database so it can be
// queried with ad-hoc SQL. A snapshot is write-only from closet's point of
// view: it is rebuilt from scratch on every export and never read back into
// a store.
package snapshot

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/closet/pkg/types"
)

//go:embed schema.sql
var schemaSQL string

// Source is the read surface exported. Both *store.Store and the privacy
// filter implement it.
type Source interface {
	Handles(k types.Kind) []types.Handle
	Get(k types.Kind, h types.Handle) (types.Record, bool)
	Owner() types.Owner
	Home() types.Handle
	Bookmarks(k types.Kind) []types.Handle
}

// Tables lists the snapshot tables in creation order.
var Tables = []string{
	"textiles", "ensembles", "media", "notes", "tags",
	"attributes", "urls", "children", "media_refs", "note_refs", "tag_refs",
	"bookmarks", "collection",
}

var statements = map[string]string{
	"textiles":   "INSERT INTO textiles (handle, id, private, change, description, type) VALUES (?, ?, ?, ?, ?, ?)",
	"ensembles":  "INSERT INTO ensembles (handle, id, private, change, description) VALUES (?, ?, ?, ?, ?)",
	"media":      "INSERT INTO media (handle, id, private, change, path, mime, checksum, description) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
	"notes":      "INSERT INTO notes (handle, id, private, change, type, text) VALUES (?, ?, ?, ?, ?, ?)",
	"tags":       "INSERT INTO tags (handle, id, private, change, name, color, priority) VALUES (?, ?, ?, ?, ?, ?, ?)",
	"attributes": "INSERT INTO attributes (textile, ordinal, type, value, private) VALUES (?, ?, ?, ?, ?)",
	"urls":       "INSERT INTO urls (textile, ordinal, path, type, description, private) VALUES (?, ?, ?, ?, ?, ?)",
	"children":   "INSERT INTO children (ensemble, ordinal, textile, private) VALUES (?, ?, ?, ?)",
	"media_refs": "INSERT INTO media_refs (owner, owner_kind, ordinal, media, private, x1, y1, x2, y2) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
	"note_refs":  "INSERT INTO note_refs (owner, owner_kind, attribute, ordinal, note) VALUES (?, ?, ?, ?, ?)",
	"tag_refs":   "INSERT INTO tag_refs (owner, owner_kind, ordinal, tag) VALUES (?, ?, ?, ?)",
	"bookmarks":  "INSERT INTO bookmarks (kind, ordinal, handle) VALUES (?, ?, ?)",
	"collection": "INSERT INTO collection (key, value) VALUES (?, ?)",
}

// Write replaces the database at path with a snapshot of src. The snapshot
// is built in one SQLite transaction; on failure the file is removed.
func Write(ctx context.Context, path string, src Source) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing old snapshot: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("opening snapshot %s: %w", path, err)
	}
	defer func() {
		db.Close()
		if err != nil {
			os.Remove(path)
		}
	}()

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("creating snapshot schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	ins := &inserter{ctx: ctx, tx: tx, stmts: make(map[string]*sql.Stmt)}
	defer ins.close()

	for _, k := range types.Kinds {
		for _, h := range src.Handles(k) {
			rec, ok := src.Get(k, h)
			if !ok {
				continue
			}
			if err := ins.record(rec); err != nil {
				return fmt.Errorf("exporting %s %s: %w", k, h, err)
			}
		}
		for i, h := range src.Bookmarks(k) {
			if err := ins.exec("bookmarks", k.String(), i, string(h)); err != nil {
				return err
			}
		}
	}
	if err := ins.collection(src); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	return nil
}

// Counts returns the row count of every snapshot table in the database at
// path.
func Counts(ctx context.Context, path string) (map[string]int, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("opening snapshot: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot %s: %w", path, err)
	}
	defer db.Close()

	out := make(map[string]int, len(Tables))
	for _, table := range Tables {
		var n int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("counting %s: %w", table, err)
		}
		out[table] = n
	}
	return out, nil
}

type inserter struct {
	ctx   context.Context
	tx    *sql.Tx
	stmts map[string]*sql.Stmt
}

func (in *inserter) exec(table string, args ...any) error {
	stmt, ok := in.stmts[table]
	if !ok {
		var err error
		stmt, err = in.tx.PrepareContext(in.ctx, statements[table])
		if err != nil {
			return fmt.Errorf("preparing insert for %s: %w", table, err)
		}
		in.stmts[table] = stmt
	}
	if _, err := stmt.ExecContext(in.ctx, args...); err != nil {
		return fmt.Errorf("inserting into %s: %w", table, err)
	}
	return nil
}

func (in *inserter) close() {
	for _, stmt := range in.stmts {
		stmt.Close()
	}
}

func (in *inserter) record(rec types.Record) error {
	m := rec.Meta()
	h := string(m.Handle)
	var err error
	switch r := rec.(type) {
	case *types.Textile:
		err = in.exec("textiles", h, m.ID, m.Private, m.Change, r.Description, r.Type)
		for i, a := range r.Attributes {
			if err == nil {
				err = in.exec("attributes", h, i, a.Type, a.Value, a.Private)
			}
			for j, n := range a.Notes {
				if err == nil {
					err = in.exec("note_refs", h, "attribute", i, j, string(n))
				}
			}
		}
		for i, u := range r.URLs {
			if err == nil {
				err = in.exec("urls", h, i, u.Path, u.Type, u.Description, u.Private)
			}
		}
		err = in.refs(err, h, rec.Kind(), r.Media, r.Notes, r.Tags)
	case *types.Ensemble:
		err = in.exec("ensembles", h, m.ID, m.Private, m.Change, r.Description)
		for i, c := range r.Children {
			if err == nil {
				err = in.exec("children", h, i, string(c.Ref), c.Private)
			}
		}
		err = in.refs(err, h, rec.Kind(), r.Media, r.Notes, r.Tags)
	case *types.MediaObject:
		err = in.exec("media", h, m.ID, m.Private, m.Change, r.Path, r.Mime, r.Checksum, r.Description)
		err = in.refs(err, h, rec.Kind(), nil, r.Notes, r.Tags)
	case *types.Note:
		err = in.exec("notes", h, m.ID, m.Private, m.Change, r.Type, r.Text.String)
		err = in.refs(err, h, rec.Kind(), nil, nil, r.Tags)
	case *types.Tag:
		err = in.exec("tags", h, m.ID, m.Private, m.Change, r.Name, r.Color, r.Priority)
	}
	return err
}

// refs writes the shared reference lists of a record unless err is already
// set.
func (in *inserter) refs(err error, owner string, k types.Kind, media []types.MediaRef, notes, tags []types.Handle) error {
	kind := k.String()
	for i, mr := range media {
		if err != nil {
			return err
		}
		var x1, y1, x2, y2 any
		if r := mr.Region; r != nil {
			x1, y1, x2, y2 = r.X1, r.Y1, r.X2, r.Y2
		}
		err = in.exec("media_refs", owner, kind, i, string(mr.Ref), mr.Private, x1, y1, x2, y2)
	}
	for i, n := range notes {
		if err != nil {
			return err
		}
		err = in.exec("note_refs", owner, kind, nil, i, string(n))
	}
	for i, t := range tags {
		if err != nil {
			return err
		}
		err = in.exec("tag_refs", owner, kind, i, string(t))
	}
	return err
}

func (in *inserter) collection(src Source) error {
	owner := src.Owner()
	for _, kv := range [][2]string{
		{"owner.name", owner.Name},
		{"owner.address", owner.Address},
		{"owner.email", owner.Email},
		{"home", string(src.Home())},
	} {
		if kv[1] == "" {
			continue
		}
		if err := in.exec("collection", kv[0], kv[1]); err != nil {
			return err
		}
	}
	return nil
}
