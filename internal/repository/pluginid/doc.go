// Package pluginid persists the identifier of the last installed plugin.
//
// The FileRepository keeps a single identifier in a plain-text file so that
// later runs update the same plugin instead of installing a new copy.
package pluginid
