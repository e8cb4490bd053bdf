package types

import "errors"

// Lookup and mutation errors.
var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidData  = errors.New("invalid record data")
	ErrKindMismatch = errors.New("record kind mismatch")
	ErrUnknownKind  = errors.New("unknown record kind")
)

// Transaction errors.
var (
	ErrTxnActive = errors.New("a transaction is already in progress")
	ErrTxnClosed = errors.New("transaction is already finished")
)

// Interchange errors. The codec wraps these in typed errors carrying the
// document line or the failing path.
var (
	ErrMalformedDocument = errors.New("malformed document")
	ErrSchemaVersion     = errors.New("unsupported schema version")
	ErrWriteFailure      = errors.New("write failure")
)

// Collection errors.
var (
	ErrLocked        = errors.New("collection is locked")
	ErrNotCollection = errors.New("not a collection directory")
	ErrClosed        = errors.New("collection is closed")
)
