package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables consulted when the matching flag is empty.
const (
	EnvDomain   = "KINTONE_DOMAIN"
	EnvUsername = "KINTONE_USERNAME"
	EnvPassword = "KINTONE_PASSWORD"
)

// LookupFunc reads a process environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Options are the raw command-line values. Empty strings mean "not given".
type Options struct {
	// EnvFile is the optional path to a KEY=VALUE env file.
	EnvFile string
	// SettingsFile is the optional path to the YAML settings file.
	SettingsFile string
	Domain       string
	Username     string
	Password     string
	File         string
	PluginID     string
	// WaitTime is the startup delay in milliseconds.
	WaitTime int
	Watch    bool
	Timeout  time.Duration
}

// Resolve builds a validated Config from the command-line options, the env
// file, the process environment and the settings file, in that order of
// precedence. The process environment is only read, never modified.
func Resolve(opts *Options, lookup LookupFunc) (*Config, error) {
	if opts == nil {
		opts = new(Options)
	}

	if lookup == nil {
		lookup = os.LookupEnv
	}

	envFile, err := readEnvFile(opts.EnvFile)
	if err != nil {
		return nil, err
	}

	settings, err := LoadSettings(opts.SettingsFile)
	if err != nil {
		return nil, err
	}

	fromEnv := func(key string) string {
		// An env file entry replaces the process value, even when blank.
		if value, ok := envFile[key]; ok {
			return value
		}

		value, _ := lookup(key)

		return value
	}

	cfg := &Config{
		Domain:       firstNonEmpty(opts.Domain, fromEnv(EnvDomain), settings.Domain),
		Username:     firstNonEmpty(opts.Username, fromEnv(EnvUsername), settings.Username),
		Password:     firstNonEmpty(opts.Password, fromEnv(EnvPassword), settings.Password),
		File:         firstNonEmpty(opts.File, settings.File),
		PluginID:     opts.PluginID,
		WaitTime:     time.Duration(opts.WaitTime) * time.Millisecond,
		Watch:        opts.Watch,
		Timeout:      opts.Timeout,
		PluginIDFile: settings.PluginIDFile,
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = settings.Timeout
	}

	if err = Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// readEnvFile parses the env file into a map. An empty path yields no entries.
func readEnvFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absolute, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve env file path: %w", err)
	}

	values, err := godotenv.Read(absolute)
	if err != nil {
		return nil, fmt.Errorf("read env file: %w", err)
	}

	return values, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}

	return ""
}
