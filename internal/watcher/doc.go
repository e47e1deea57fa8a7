// Package watcher reports modifications of a single file.
//
// It watches the parent directory rather than the file itself so that editors
// and build tools that replace the file through a rename are still noticed.
// Notifications are coalesced: while the consumer is busy, any number of
// changes collapse into one pending notification.
package watcher
