package uploader

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/oshokin/plugin-uploader/internal/config"
	"github.com/oshokin/plugin-uploader/internal/kintone"
	"github.com/oshokin/plugin-uploader/internal/logger"
	"github.com/oshokin/plugin-uploader/internal/repository/pluginid"
)

var (
	// ErrUpload is returned when the package could not be uploaded; nothing else is attempted.
	ErrUpload = errors.New("upload plugin file")
	// ErrInstall is returned when the install call fails.
	ErrInstall = errors.New("install plugin")
)

// Action tells how a cycle published the plugin.
type Action string

const (
	// ActionUpdated means an installed plugin received the new package.
	ActionUpdated Action = "updated"
	// ActionInstalled means the package was installed as a plugin.
	ActionInstalled Action = "installed"
)

// Result describes a successful cycle.
type Result struct {
	// Action is how the plugin was published.
	Action Action
	// FileKey is the token of the uploaded package.
	FileKey string
	// PluginID is the identifier kintone reported for the plugin.
	PluginID string
	// Version is the plugin version kintone reported.
	Version string
}

// API is the subset of the kintone client a cycle needs.
type API interface {
	UploadFile(ctx context.Context, path string) (string, error)
	UpdatePlugin(ctx context.Context, request *kintone.PluginRequest) (*kintone.PluginResponse, error)
	InstallPlugin(ctx context.Context, request *kintone.PluginRequest) (*kintone.PluginResponse, error)
}

// runner holds what every cycle shares. It is unexported: call Run(ctx, Options).
type runner struct {
	cfg   *config.Config      // Resolved configuration, read-only.
	api   API                 // kintone endpoints.
	store pluginid.Repository // Persisted identifier of the installed plugin.
	seq   atomic.Int64        // Cycle counter for log correlation.
}

func newRunner(cfg *config.Config, api API, store pluginid.Repository) *runner {
	return &runner{
		cfg:   cfg,
		api:   api,
		store: store,
	}
}

// runCycle performs one cycle and logs its outcome.
func (r *runner) runCycle(ctx context.Context) {
	ctx = logger.WithKV(ctx, "cycle", r.seq.Add(1))

	result, err := r.cycle(ctx)
	if err != nil {
		logger.ErrorKV(ctx, "Upload cycle failed", "error", err)
		return
	}

	logger.InfoKV(ctx, "Upload cycle completed",
		"action", result.Action,
		"plugin_id", result.PluginID,
		"version", result.Version)
}

// cycle uploads the package and updates or installs the plugin.
func (r *runner) cycle(ctx context.Context) (*Result, error) {
	logger.Info(ctx, "Uploading file...")

	fileKey, err := r.api.UploadFile(ctx, r.cfg.File)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpload, err)
	}

	logger.InfoKV(ctx, "File uploaded successfully", "file_key", fileKey)

	request := &kintone.PluginRequest{
		FileKey: fileKey,
		ID:      r.pluginID(ctx),
	}

	if request.ID != "" {
		response, updateErr := r.api.UpdatePlugin(ctx, request)
		if updateErr == nil {
			logger.InfoKV(ctx, "Plugin updated successfully", "plugin_id", response.ID, "version", response.Version)

			return newResult(ActionUpdated, fileKey, response), nil
		}

		// Any update failure falls through to install, including failures
		// unrelated to a missing plugin such as rejected credentials.
		logger.ErrorKV(ctx, "Error updating plugin, trying to install it",
			"plugin_id", request.ID,
			"not_installed", kintone.IsNotFound(updateErr),
			"error", updateErr)
	}

	response, err := r.api.InstallPlugin(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInstall, err)
	}

	logger.InfoKV(ctx, "Plugin added successfully", "plugin_id", response.ID, "version", response.Version)

	if r.cfg.PluginID == "" {
		r.savePluginID(ctx, response.ID)
	}

	return newResult(ActionInstalled, fileKey, response), nil
}

// pluginID returns the explicit identifier or the stored one. Store failures
// are logged and yield an empty identifier.
func (r *runner) pluginID(ctx context.Context) string {
	if r.cfg.PluginID != "" {
		return r.cfg.PluginID
	}

	id, err := r.store.Load(ctx)

	switch {
	case err == nil:
		logger.DebugKV(ctx, "Loaded stored plugin identifier", "plugin_id", id)

		return id
	case errors.Is(err, pluginid.ErrNotFound):
		logger.Info(ctx, "No stored plugin identifier, the plugin will be installed")
	default:
		logger.ErrorKV(ctx, "Could not load plugin identifier", "error", err)
	}

	return ""
}

// savePluginID persists id, logging failures instead of returning them.
func (r *runner) savePluginID(ctx context.Context, id string) {
	if err := r.store.Save(ctx, id); err != nil {
		logger.ErrorKV(ctx, "Could not write plugin identifier", "plugin_id", id, "error", err)
		return
	}

	logger.DebugKV(ctx, "Stored plugin identifier", "plugin_id", id)
}

func newResult(action Action, fileKey string, response *kintone.PluginResponse) *Result {
	return &Result{
		Action:   action,
		FileKey:  fileKey,
		PluginID: response.ID,
		Version:  response.Version,
	}
}
