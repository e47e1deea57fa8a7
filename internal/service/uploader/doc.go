// Package uploader publishes a plugin package to kintone.
//
// A cycle uploads the package, then updates the plugin when its identifier is
// known and installs it otherwise, persisting the identifier of a fresh
// install. Run performs one cycle after an optional startup delay and, in
// watch mode, one more cycle per change of the package file. Cycle failures
// are logged and never stop the process.
package uploader
