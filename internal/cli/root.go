// Package cli implements the closet command-line interface.
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/closet/internal/backup"
	"github.com/mesh-intelligence/closet/internal/logging"
	"github.com/mesh-intelligence/closet/internal/mediafile"
	"github.com/mesh-intelligence/closet/internal/paths"
	"github.com/mesh-intelligence/closet/internal/xmlcodec"
	"github.com/mesh-intelligence/closet/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// app holds global flag values and the state resolved before a subcommand
// runs.
type app struct {
	configDir  string
	dataDir    string
	collection string
	logLevel   string
	jsonMode   bool
	force      bool

	cfg     settings
	log     zerolog.Logger
	logFile *os.File
	now     func() time.Time
}

// NewRootCmd creates the top-level "closet" command with global flags and
// all subcommands registered.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&app{log: zerolog.Nop(), now: time.Now})
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "closet",
		Short: "Track garments, ensembles and their care notes",
		Long: "Closet keeps a collection of textiles, ensembles, media, notes and tags\n" +
			"in a compressed XML file per collection.",
		Version:           Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.closeLog()
		},
	}

	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", errUsage, err)
	})

	pf := root.PersistentFlags()
	pf.StringVar(&a.configDir, "config-dir", "", "configuration directory (default: $XDG_CONFIG_HOME/closet)")
	pf.StringVar(&a.dataDir, "data-dir", "", "data directory holding collections (default: $XDG_DATA_HOME/closet)")
	pf.StringVar(&a.collection, "collection", "", "collection name (default from config, else \"default\")")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVar(&a.jsonMode, "json", false, "output in JSON format")
	pf.BoolVar(&a.force, "force", false, "take over a collection locked by another process")

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(a),
		newAddCmd(a),
		newListCmd(a),
		newShowCmd(a),
		newRemoveCmd(a),
		newTagCmd(a),
		newImportCmd(a),
		newExportCmd(a),
		newSnapshotCmd(a),
		newBackupCmd(a),
		newCollectionsCmd(a),
		newVerifyCmd(a),
	)
	return root
}

// setup resolves directories, loads .env and config.yaml, and builds the
// logger. Logs go to stderr unless log_file is configured.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "version" {
		return nil
	}
	configDir, err := paths.ResolveConfigDir(a.configDir)
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}
	a.configDir = configDir
	if err := loadDotEnv(configDir); err != nil {
		return err
	}
	v, err := loadConfig(configDir)
	if err != nil {
		return err
	}
	if a.cfg, err = a.resolveSettings(v); err != nil {
		return err
	}
	if a.cfg.LogFile == "" {
		a.log, err = logging.New(cmd.ErrOrStderr(), a.cfg.LogLevel, true)
		return err
	}
	a.log, a.logFile, err = logging.OpenFile(a.cfg.LogFile, a.cfg.LogLevel)
	return err
}

// closeLog closes the log file opened by setup, if any.
func (a *app) closeLog() error {
	if a.logFile == nil {
		return nil
	}
	err := a.logFile.Close()
	a.logFile = nil
	return err
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	xmlcodec.Producer = Version
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "closet:", err)
		os.Exit(exitCode(err))
	}
	os.Exit(exitSuccess)
}

// userErrors are failures caused by the invocation rather than the system.
var userErrors = []error{
	types.ErrNotFound,
	types.ErrInvalidData,
	types.ErrUnknownKind,
	types.ErrKindMismatch,
	types.ErrLocked,
	types.ErrNotCollection,
	types.ErrMalformedDocument,
	types.ErrSchemaVersion,
	types.ErrBackendUnknown,
	types.ErrCollectionEmpty,
	mediafile.ErrChecksumMismatch,
	backup.ErrNoBackups,
	backup.ErrUnknownDest,
	backup.ErrKeyExists,
	errUsage,
	fs.ErrExist,
}

// errUsage marks invalid flag or argument combinations.
var errUsage = errors.New("invalid usage")

func exitCode(err error) int {
	for _, target := range userErrors {
		if errors.Is(err, target) {
			return exitUserError
		}
	}
	return exitSysError
}
