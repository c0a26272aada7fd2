package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kiranshivaraju/catalogstudio/pkg/models"
)

// FileStore persists artifacts onto the local filesystem. It is intended for
// development and test environments where an object storage service is not
// available.
type FileStore struct {
	basePath string
}

// NewFileStore initializes a FileStore rooted at basePath.
func NewFileStore(basePath string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("artifacts: base path is required")
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("artifacts: resolve base path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("artifacts: ensure base path: %w", err)
	}
	return &FileStore{basePath: abs}, nil
}

func (s *FileStore) BasePath() string {
	return s.basePath
}

func (s *FileStore) Save(ctx context.Context, key string, data []byte, _ string) (models.Location, error) {
	if err := ctx.Err(); err != nil {
		return models.Location{}, err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return models.Location{}, err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return models.Location{}, fmt.Errorf("artifacts: ensure directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return models.Location{}, fmt.Errorf("artifacts: write file: %w", err)
	}
	return models.LocalLocation(fullPath), nil
}

// Delete removes a file previously written by Save. Paths outside the store
// root are refused.
func (s *FileStore) Delete(_ context.Context, loc models.Location) error {
	path, err := s.ownedPath(loc)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("artifacts: delete file: %w", err)
	}
	return nil
}

func (s *FileStore) Open(_ context.Context, loc models.Location) (io.ReadCloser, error) {
	if loc.Kind != models.LocationLocal || loc.Value == "" {
		return nil, ErrForeignLocation
	}
	f, err := os.Open(loc.Value)
	if err != nil {
		return nil, fmt.Errorf("artifacts: open file: %w", err)
	}
	return f, nil
}

func (s *FileStore) ownedPath(loc models.Location) (string, error) {
	if loc.Kind != models.LocationLocal {
		return "", ErrForeignLocation
	}
	rel, err := filepath.Rel(s.basePath, filepath.Clean(loc.Value))
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", ErrForeignLocation
	}
	return filepath.Join(s.basePath, rel), nil
}
