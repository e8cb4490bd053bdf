package xmlcodec

import (
	"fmt"

	"github.com/mesh-intelligence/closet/pkg/types"
)

// ParseError reports a malformed document. Line is the 1-based input line
// where the problem was detected.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed document at line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() []error {
	return []error{types.ErrMalformedDocument, e.Err}
}

// VersionError reports a document written with a newer major schema version
// than this program understands.
type VersionError struct {
	Found     string
	Supported string
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("document schema %s is newer than supported %s", e.Found, e.Supported)
}

func (e *VersionError) Unwrap() error { return types.ErrSchemaVersion }

// WriteError reports a failed export. Path is empty when writing to a
// caller-supplied stream.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("writing document: %v", e.Err)
	}
	return fmt.Sprintf("writing %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() []error {
	return []error{types.ErrWriteFailure, e.Err}
}
