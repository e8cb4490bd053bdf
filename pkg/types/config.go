package types

import "errors"

// Config holds the parameters used to open a collection.
type Config struct {
	Backend    string `json:"backend" yaml:"backend"`
	DataDir    string `json:"data_dir" yaml:"data_dir"`
	Collection string `json:"collection" yaml:"collection"`
	UndoLimit  int    `json:"undo_limit" yaml:"undo_limit"`
}

// Supported backend names. The backend name is also written to the
// collection's backend marker file.
const (
	BackendXML = "xml"
)

// DefaultUndoLimit bounds the undo history when Config.UndoLimit is zero.
const DefaultUndoLimit = 100

// Config validation errors.
var (
	ErrBackendEmpty      = errors.New("backend must not be empty")
	ErrBackendUnknown    = errors.New("unknown backend")
	ErrCollectionEmpty   = errors.New("collection name must not be empty")
	ErrUndoLimitNegative = errors.New("undo limit must not be negative")
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendXML: true,
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	if c.Collection == "" {
		return ErrCollectionEmpty
	}
	if c.UndoLimit < 0 {
		return ErrUndoLimitNegative
	}
	return nil
}

// EffectiveUndoLimit returns UndoLimit, or DefaultUndoLimit when unset.
func (c Config) EffectiveUndoLimit() int {
	if c.UndoLimit == 0 {
		return DefaultUndoLimit
	}
	return c.UndoLimit
}
