package uploader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oshokin/plugin-uploader/internal/config"
	"github.com/oshokin/plugin-uploader/internal/kintone"
	"github.com/oshokin/plugin-uploader/internal/logger"
	"github.com/oshokin/plugin-uploader/internal/repository/pluginid"
	"github.com/oshokin/plugin-uploader/internal/watcher"
)

// Options are inputs accepted by the uploader entry point.
type Options struct {
	config.Options

	// LookupEnv reads the process environment; nil means os.LookupEnv.
	LookupEnv config.LookupFunc
}

// Run resolves the configuration and publishes the plugin. It returns an
// error only when the configuration is invalid, the startup delay is
// interrupted or watch mode cannot start; failed cycles are logged.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "plugin-uploader")

	if opts == nil {
		opts = new(Options)
	}

	cfg, err := config.Resolve(&opts.Options, opts.LookupEnv)
	if err != nil {
		return fmt.Errorf("resolve configuration: %w", err)
	}

	client, err := kintone.New(cfg.Domain, cfg.Username, cfg.Password, kintone.WithCallTimeout(cfg.Timeout))
	if err != nil {
		return err
	}

	r := newRunner(cfg, client, pluginid.NewFileRepository(cfg.PluginIDFile))

	logger.InfoKV(ctx, "Plugin uploader started",
		"domain", client.BaseURL(),
		"username", cfg.Username,
		"file", cfg.File,
		"watch", cfg.Watch)

	return r.Run(ctx)
}

// Run executes the startup delay, the first cycle and, in watch mode, the
// watch loop.
func (r *runner) Run(ctx context.Context) error {
	if r.cfg.WaitTime > 0 {
		logger.InfoKV(ctx, "Waiting before the first upload", "wait_time", r.cfg.WaitTime)

		if err := sleep(ctx, r.cfg.WaitTime); err != nil {
			return fmt.Errorf("startup delay: %w", err)
		}
	}

	r.runCycle(ctx)

	if !r.cfg.Watch {
		return nil
	}

	return r.watch(ctx)
}

// watch re-runs the cycle for every change of the package file until ctx is
// cancelled. Changes that arrive during a cycle collapse into one follow-up
// cycle, so cycles never overlap.
func (r *runner) watch(ctx context.Context) error {
	w, err := watcher.New(r.cfg.File)
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}

	defer func() {
		_ = w.Close()
	}()

	logger.InfoKV(ctx, "Watching the plugin file for changes", "file", r.cfg.File)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return w.Run(groupCtx)
	})

	group.Go(func() error {
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-w.Changes():
				r.runCycle(groupCtx)
			}
		}
	})

	if err = group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("watch plugin file: %w", err)
	}

	logger.Info(ctx, "Stopped watching the plugin file")

	return nil
}

// sleep blocks for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
