package pluginid

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/oshokin/plugin-uploader/internal/config"
)

// Repository defines persistence operations for the plugin identifier.
type Repository interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, id string) error
}

// FileRepository stores the plugin identifier as plain text on disk.
type FileRepository struct {
	// path is the filesystem location of the identifier file.
	path string
	// mu serialises access to the identifier file within the process.
	mu sync.Mutex
}

var (
	// ErrNotFound is returned when no identifier has been stored yet.
	ErrNotFound = errors.New("plugin identifier not found")
	// errEmptyIdentifier is returned when Save is called without an identifier.
	errEmptyIdentifier = errors.New("plugin identifier is empty")
)

// NewFileRepository creates a repository that reads/writes the identifier at path.
func NewFileRepository(path string) *FileRepository {
	if path == "" {
		path = config.DefaultPluginIDFilename
	}

	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Path returns the location of the identifier file.
func (r *FileRepository) Path() string {
	return r.path
}

// Load returns the stored identifier with surrounding whitespace removed.
// An empty file is reported as ErrNotFound.
func (r *FileRepository) Load(_ context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}

		return "", fmt.Errorf("read plugin id file: %w", err)
	}

	id := strings.TrimSpace(string(contents))
	if id == "" {
		return "", ErrNotFound
	}

	return id, nil
}

// Save overwrites the identifier file with id.
func (r *FileRepository) Save(_ context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errEmptyIdentifier
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.WriteFile(r.path, []byte(id), config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write plugin id file: %w", err)
	}

	return nil
}
