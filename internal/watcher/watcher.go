package watcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/oshokin/plugin-uploader/internal/logger"
)

// ErrClosed is returned by Run when the watcher was closed underneath it.
var ErrClosed = errors.New("file watcher closed")

// Watcher emits a notification on Changes whenever the target file is written,
// created or renamed into place.
type Watcher struct {
	// target is the cleaned absolute path of the watched file.
	target string
	// fs is the underlying fsnotify watcher on the parent directory.
	fs *fsnotify.Watcher
	// changes holds at most one pending notification.
	changes chan struct{}
}

// New starts watching path. Close must be called to release the watcher.
func New(path string) (*Watcher, error) {
	target, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve watched path: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	if err = fsWatcher.Add(filepath.Dir(target)); err != nil {
		_ = fsWatcher.Close()

		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}

	return &Watcher{
		target:  target,
		fs:      fsWatcher,
		changes: make(chan struct{}, 1),
	}, nil
}

// Changes returns the notification channel. It is never closed.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Run forwards file events until ctx is cancelled, then returns nil.
// Watcher errors are logged and do not stop the loop; ErrClosed is returned if
// the watcher is closed while Run is still active.
func (w *Watcher) Run(ctx context.Context) error {
	ctx = logger.WithKV(ctx, "file", w.target)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fs.Events:
			if !ok {
				return ErrClosed
			}

			if !w.matches(event) {
				continue
			}

			logger.DebugKV(ctx, "File change detected", "op", event.Op.String())
			w.notify()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return ErrClosed
			}

			logger.WarnKV(ctx, "File watcher error", "error", err)
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

// matches reports whether event modifies the watched file.
func (w *Watcher) matches(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.target {
		return false
	}

	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create)
}

// notify queues a notification unless one is already pending.
func (w *Watcher) notify() {
	select {
	case w.changes <- struct{}{}:
	default:
	}
}
