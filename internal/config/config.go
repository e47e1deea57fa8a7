package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything a single upload cycle needs. It is built once by
// Resolve and passed by pointer; callers must not mutate it afterwards.
type Config struct {
	// Domain is the kintone host, e.g. example.cybozu.com. A value that already
	// carries a scheme is used verbatim.
	Domain string
	// Username is the kintone login name.
	Username string
	// Password is the kintone password. Never log it.
	Password string
	// File is the path to the plugin package.
	File string
	// PluginID is the explicit plugin identifier. Empty means "use the stored
	// identifier, or install a new plugin".
	PluginID string
	// WaitTime delays the first upload cycle.
	WaitTime time.Duration
	// Watch keeps the process alive and re-uploads on every file change.
	Watch bool
	// Timeout bounds each HTTP call.
	Timeout time.Duration
	// PluginIDFile is where installed plugin identifiers are persisted.
	PluginIDFile string
}

// Settings is the optional YAML settings file. Every field is the lowest
// precedence source for the matching Config field.
type Settings struct {
	// Domain is the kintone host.
	Domain string `yaml:"domain"`
	// Username is the kintone login name.
	Username string `yaml:"username"`
	// Password is the kintone password.
	Password string `yaml:"password"`
	// File is the path to the plugin package.
	File string `yaml:"file"`
	// PluginIDFile overrides DefaultPluginIDFilename.
	PluginIDFile string `yaml:"plugin_id_file"`
	// Timeout bounds each HTTP call.
	Timeout time.Duration `yaml:"timeout"`
}

const (
	// DefaultSettingsFilename is the settings file looked up when --config is not set.
	DefaultSettingsFilename = "plugin-uploader.yaml"

	// DefaultPluginIDFilename stores the identifier of the last installed plugin.
	DefaultPluginIDFilename = "pluginId.txt"

	// DefaultTimeout is the default duration for a single HTTP call.
	DefaultTimeout = 60 * time.Second

	// DefaultFilePermissions is the permission used for files written by the uploader.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errNegativeWaitTime is returned when the startup delay is below zero.
	errNegativeWaitTime = errors.New("wait time must not be negative")
)

// MissingFieldsError lists required settings that no source provided.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return "domain, username, password, and file are required; missing: " + strings.Join(e.Fields, ", ")
}

// LoadSettings reads the YAML settings file at path.
// When path is empty the default file is read if it exists; a missing default
// file yields empty settings. An explicitly requested file must exist.
func LoadSettings(path string) (*Settings, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultSettingsFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return new(Settings), nil
		}

		return nil, fmt.Errorf("read settings: %w", err)
	}

	var settings Settings
	if err = yaml.Unmarshal(contents, &settings); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	return &settings, nil
}

// Validate checks required fields and fills in defaults.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	var missing []string

	if cfg.Domain == "" {
		missing = append(missing, "domain")
	}

	if cfg.Username == "" {
		missing = append(missing, "username")
	}

	if cfg.Password == "" {
		missing = append(missing, "password")
	}

	if cfg.File == "" {
		missing = append(missing, "file")
	}

	if len(missing) > 0 {
		return &MissingFieldsError{Fields: missing}
	}

	if cfg.WaitTime < 0 {
		return fmt.Errorf("%w: %s", errNegativeWaitTime, cfg.WaitTime)
	}

	// Set default timeout if not specified
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	// Set default identifier file if not specified
	if cfg.PluginIDFile == "" {
		cfg.PluginIDFile = DefaultPluginIDFilename
	}

	return nil
}
