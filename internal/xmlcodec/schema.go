// Package xmlcodec reads and writes collections in the versioned XML
// interchange format.
//
// The writer emits a deterministic document from any Source (the store or a
// privacy-filtered view of it). The importer streams a document into a store
// inside one transaction, remapping handles, legalizing user IDs, resolving
// forward references, and synthesizing placeholders for references that
// never resolve.
package xmlcodec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mesh-intelligence/closet/pkg/types"
)

// Schema constants.
const (
	NamespaceBase = "http://closet-project.org/xml/"
	Version       = "1.2.0"
	Namespace     = NamespaceBase + Version + "/"
)

// Producer is written to the header as the version of the producing program.
var Producer = "0.1.0"

// Element names for the top-level tables, indexed by kind.
var (
	tableElem = [types.NumKinds]string{
		types.KindTextile:  "textiles",
		types.KindEnsemble: "ensembles",
		types.KindMedia:    "objects",
		types.KindNote:     "notes",
		types.KindTag:      "tags",
	}
	recordElem = [types.NumKinds]string{
		types.KindTextile:  "textile",
		types.KindEnsemble: "ensemble",
		types.KindMedia:    "object",
		types.KindNote:     "note",
		types.KindTag:      "tag",
	}
)

// writeOrder is the order tables appear in a document.
var writeOrder = []types.Kind{
	types.KindTag,
	types.KindTextile,
	types.KindEnsemble,
	types.KindMedia,
	types.KindNote,
}

// schemaVersion is a parsed major.minor.patch triple.
type schemaVersion [3]int

func (v schemaVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v[0], v[1], v[2])
}

var currentVersion = mustParseVersion(Version)

func mustParseVersion(s string) schemaVersion {
	v, err := parseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// parseVersion parses "1.2" or "1.2.0". Missing components are zero.
func parseVersion(s string) (schemaVersion, error) {
	var v schemaVersion
	parts := strings.Split(s, ".")
	if len(parts) == 0 || len(parts) > 3 {
		return v, fmt.Errorf("invalid schema version %q", s)
	}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return v, fmt.Errorf("invalid schema version %q", s)
		}
		v[i] = n
	}
	return v, nil
}

// versionFromNamespace extracts the version from a namespace URI of the form
// NamespaceBase + "<version>/". ok is false when the URI is not one of ours.
func versionFromNamespace(ns string) (schemaVersion, bool, error) {
	rest, found := strings.CutPrefix(ns, NamespaceBase)
	if !found {
		return schemaVersion{}, false, nil
	}
	v, err := parseVersion(strings.TrimSuffix(rest, "/"))
	return v, true, err
}

// docHandle renders a handle as written in documents.
func docHandle(h types.Handle) string {
	return "_" + string(h)
}

// parseDocHandle strips the leading underscore from a document handle.
func parseDocHandle(s string) types.Handle {
	return types.Handle(strings.TrimPrefix(s, "_"))
}
