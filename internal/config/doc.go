// Package config resolves the uploader configuration.
//
// Values come from four layers, highest precedence first: command-line flags,
// an optional env file, the process environment and an optional YAML settings
// file. Resolve folds them into an immutable Config and Validate rejects a
// Config that is missing the kintone domain, credentials or plugin file.
package config
