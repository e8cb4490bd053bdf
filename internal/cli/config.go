package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/closet/internal/backup"
	"github.com/mesh-intelligence/closet/internal/paths"
	"github.com/mesh-intelligence/closet/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	envPrefix      = "CLOSET"
	dotEnvFile     = ".env"

	cfgKeyBackend    = "backend"
	cfgKeyDataDir    = "data_dir"
	cfgKeyCollection = "collection"
	cfgKeyUndoLimit  = "undo_limit"
	cfgKeyLogLevel   = "log_level"
	cfgKeyLogFile    = "log_file"
	cfgKeyOwnerName  = "owner.name"
	cfgKeyOwnerAddr  = "owner.address"
	cfgKeyOwnerEmail = "owner.email"

	defaultCollection = "default"
)

// configFile is the structure written to config.yaml by init.
type configFile struct {
	Backend    string      `yaml:"backend"`
	DataDir    string      `yaml:"data_dir,omitempty"`
	Collection string      `yaml:"collection"`
	UndoLimit  int         `yaml:"undo_limit"`
	LogLevel   string      `yaml:"log_level"`
	LogFile    string      `yaml:"log_file,omitempty"`
	Owner      ownerConfig `yaml:"owner"`
	Backup     struct {
		Dest string `yaml:"dest,omitempty"`
	} `yaml:"backup"`
}

type ownerConfig struct {
	Name    string `yaml:"name,omitempty"`
	Address string `yaml:"address,omitempty"`
	Email   string `yaml:"email,omitempty"`
}

// settings is the merged view of flags, environment and config.yaml that
// commands work from.
type settings struct {
	ConfigDir string
	Store     types.Config
	Owner     types.Owner
	LogLevel  string
	LogFile   string
	Backup    backup.Config
}

// loadDotEnv loads .env from the working directory and from configDir.
// Variables already set in the environment win. Missing files are ignored.
func loadDotEnv(configDir string) error {
	for _, p := range []string{dotEnvFile, filepath.Join(configDir, dotEnvFile)} {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// loadConfig reads config.yaml from configDir with CLOSET_* environment
// overrides. A missing config file is not an error.
func loadConfig(configDir string) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault(cfgKeyBackend, types.BackendXML)
	v.SetDefault(cfgKeyCollection, defaultCollection)
	v.SetDefault(cfgKeyUndoLimit, types.DefaultUndoLimit)
	v.SetDefault(cfgKeyLogLevel, "")
	v.SetDefault(cfgKeyLogFile, "")
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only covers keys viper already knows about.
	for _, k := range []string{
		cfgKeyOwnerName, cfgKeyOwnerAddr, cfgKeyOwnerEmail,
		"backup.dest", "backup.s3.bucket", "backup.s3.prefix", "backup.s3.region",
		"backup.s3.endpoint", "backup.s3.access_key_id", "backup.s3.secret_access_key",
		"backup.s3.session_token", "backup.s3.path_style",
	} {
		if err := v.BindEnv(k); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// resolveSettings merges the global flags into the viper config.
func (a *app) resolveSettings(v *viper.Viper) (settings, error) {
	dataDir, err := paths.ResolveDataDir(a.dataDir, v.GetString(cfgKeyDataDir))
	if err != nil {
		return settings{}, fmt.Errorf("resolve data dir: %w", err)
	}
	name := a.collection
	if name == "" {
		name = v.GetString(cfgKeyCollection)
	}
	level := a.logLevel
	if level == "" {
		level = v.GetString(cfgKeyLogLevel)
	}
	bk := backup.Config{
		Dest: v.GetString("backup.dest"),
		S3: backup.S3Config{
			Bucket:          v.GetString("backup.s3.bucket"),
			Prefix:          v.GetString("backup.s3.prefix"),
			Region:          v.GetString("backup.s3.region"),
			Endpoint:        v.GetString("backup.s3.endpoint"),
			AccessKeyID:     v.GetString("backup.s3.access_key_id"),
			SecretAccessKey: v.GetString("backup.s3.secret_access_key"),
			SessionToken:    v.GetString("backup.s3.session_token"),
			PathStyle:       v.GetBool("backup.s3.path_style"),
		},
	}
	return settings{
		ConfigDir: a.configDir,
		Store: types.Config{
			Backend:    v.GetString(cfgKeyBackend),
			DataDir:    dataDir,
			Collection: name,
			UndoLimit:  v.GetInt(cfgKeyUndoLimit),
		},
		Owner: types.Owner{
			Name:    v.GetString(cfgKeyOwnerName),
			Address: v.GetString(cfgKeyOwnerAddr),
			Email:   v.GetString(cfgKeyOwnerEmail),
		},
		LogLevel: level,
		LogFile:  v.GetString(cfgKeyLogFile),
		Backup:   bk,
	}, nil
}

// writeConfigIfMissing creates config.yaml from s when the file does not
// exist. An existing file is left alone.
func writeConfigIfMissing(path string, s settings) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	cfg := configFile{
		Backend:    s.Store.Backend,
		DataDir:    s.Store.DataDir,
		Collection: s.Store.Collection,
		UndoLimit:  s.Store.EffectiveUndoLimit(),
		LogLevel:   s.LogLevel,
		LogFile:    s.LogFile,
		Owner: ownerConfig{
			Name:    s.Owner.Name,
			Address: s.Owner.Address,
			Email:   s.Owner.Email,
		},
	}
	cfg.Backup.Dest = s.Backup.Dest

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
