package uploader

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/plugin-uploader/internal/config"
	"github.com/oshokin/plugin-uploader/internal/kintone"
	"github.com/oshokin/plugin-uploader/internal/repository/pluginid"
)

// fakeAPI records calls and answers with canned results.
type fakeAPI struct {
	mu sync.Mutex

	fileKey    string
	uploadErr  error
	updateErr  error
	installID  string
	installErr error

	uploads  int
	updates  []kintone.PluginRequest
	installs []kintone.PluginRequest
}

func (f *fakeAPI) UploadFile(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.uploads++

	if f.uploadErr != nil {
		return "", f.uploadErr
	}

	return f.fileKey, nil
}

func (f *fakeAPI) UpdatePlugin(_ context.Context, request *kintone.PluginRequest) (*kintone.PluginResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.updates = append(f.updates, *request)

	if f.updateErr != nil {
		return nil, f.updateErr
	}

	return &kintone.PluginResponse{ID: request.ID, Version: "2"}, nil
}

func (f *fakeAPI) InstallPlugin(_ context.Context, request *kintone.PluginRequest) (*kintone.PluginResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.installs = append(f.installs, *request)

	if f.installErr != nil {
		return nil, f.installErr
	}

	return &kintone.PluginResponse{ID: f.installID, Version: "1"}, nil
}

func (f *fakeAPI) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.uploads
}

// memoryStore is an in-memory pluginid.Repository.
type memoryStore struct {
	mu      sync.Mutex
	id      string
	loadErr error
	saveErr error
	saves   int
}

func (s *memoryStore) Load(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loadErr != nil {
		return "", s.loadErr
	}

	if s.id == "" {
		return "", pluginid.ErrNotFound
	}

	return s.id, nil
}

func (s *memoryStore) Save(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.saves++

	if s.saveErr != nil {
		return s.saveErr
	}

	s.id = id

	return nil
}

func testConfig(pluginID string) *config.Config {
	return &config.Config{
		Domain:   "example.cybozu.com",
		Username: "u",
		Password: "p",
		File:     "plugin.zip",
		PluginID: pluginID,
	}
}

var errBoom = errors.New("boom")

// TestCycle_InstallStoresIdentifier installs when no identifier is known and stores the new one.
func TestCycle_InstallStoresIdentifier(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{fileKey: "abc123", installID: "plugin-99"}
	store := new(memoryStore)

	result, err := newRunner(testConfig(""), api, store).cycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, ActionInstalled, result.Action)
	require.Equal(t, "abc123", result.FileKey)
	require.Empty(t, api.updates)
	require.Equal(t, []kintone.PluginRequest{{FileKey: "abc123"}}, api.installs)
	require.Equal(t, "plugin-99", store.id)
}

// TestCycle_UpdateKeepsStore updates a stored plugin without installing or writing the store.
func TestCycle_UpdateKeepsStore(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{fileKey: "abc123", installID: "unexpected"}
	store := &memoryStore{id: "plugin-1"}

	result, err := newRunner(testConfig(""), api, store).cycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, ActionUpdated, result.Action)
	require.Equal(t, []kintone.PluginRequest{{FileKey: "abc123", ID: "plugin-1"}}, api.updates)
	require.Empty(t, api.installs)
	require.Zero(t, store.saves)
	require.Equal(t, "plugin-1", store.id)
}

// TestCycle_FailedUpdateFallsBackToInstall reuses the fileKey for the install after a failed update.
func TestCycle_FailedUpdateFallsBackToInstall(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{
		fileKey:   "abc123",
		updateErr: &kintone.APIError{StatusCode: http.StatusNotFound, Status: "404 Not Found"},
		installID: "plugin-2",
	}
	store := &memoryStore{id: "plugin-1"}

	result, err := newRunner(testConfig(""), api, store).cycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, ActionInstalled, result.Action)
	require.Len(t, api.updates, 1)
	require.Len(t, api.installs, 1)
	require.Equal(t, api.updates[0].FileKey, api.installs[0].FileKey)
	require.Equal(t, "plugin-1", api.installs[0].ID)
	require.Equal(t, "plugin-2", store.id)
}

// TestCycle_ExplicitIdentifier never touches the store when the identifier is given.
func TestCycle_ExplicitIdentifier(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{fileKey: "abc123", updateErr: errBoom, installID: "plugin-3"}
	store := &memoryStore{id: "stored", loadErr: errBoom}

	result, err := newRunner(testConfig("explicit"), api, store).cycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, ActionInstalled, result.Action)
	require.Equal(t, "explicit", api.updates[0].ID)
	require.Equal(t, "explicit", api.installs[0].ID)
	require.Zero(t, store.saves)
}

// TestCycle_UploadFailureStops skips update, install and store writes when the upload fails.
func TestCycle_UploadFailureStops(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{uploadErr: errBoom}
	store := &memoryStore{id: "plugin-1"}

	result, err := newRunner(testConfig(""), api, store).cycle(context.Background())
	require.ErrorIs(t, err, ErrUpload)
	require.ErrorIs(t, err, errBoom)
	require.Nil(t, result)
	require.Empty(t, api.updates)
	require.Empty(t, api.installs)
	require.Zero(t, store.saves)
}

// TestCycle_InstallFailure reports ErrInstall and leaves the store alone.
func TestCycle_InstallFailure(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{fileKey: "abc123", installErr: errBoom}
	store := new(memoryStore)

	_, err := newRunner(testConfig(""), api, store).cycle(context.Background())
	require.ErrorIs(t, err, ErrInstall)
	require.Zero(t, store.saves)
}

// TestCycle_PersistenceErrorsAreNotFatal keeps going when the store cannot be read or written.
func TestCycle_PersistenceErrorsAreNotFatal(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{fileKey: "abc123", installID: "plugin-4"}
	store := &memoryStore{loadErr: errBoom, saveErr: errBoom}

	result, err := newRunner(testConfig(""), api, store).cycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, "plugin-4", result.PluginID)
	require.Empty(t, api.updates)
	require.Equal(t, 1, store.saves)
}

// TestRunCycle_SwallowsErrors ensures a failing cycle does not panic or propagate.
func TestRunCycle_SwallowsErrors(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{uploadErr: errBoom}
	r := newRunner(testConfig(""), api, new(memoryStore))

	r.runCycle(context.Background())
	r.runCycle(context.Background())

	require.Equal(t, 2, api.uploadCount())
	require.EqualValues(t, 2, r.seq.Load())
}
