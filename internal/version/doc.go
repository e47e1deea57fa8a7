// Package version exposes build metadata for plugin-uploader.
//
// Version, Commit and BuildTime are injected at build time via ldflags.
package version
