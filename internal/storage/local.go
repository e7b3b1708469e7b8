// Package storage keeps uploaded image payloads on the local filesystem.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"campus-lostfound/internal/utils"

	"go.uber.org/zap"
)

// LocalImageStore stores each image as a file named by its reference under
// a single directory.
type LocalImageStore struct {
	dir    string
	logger *zap.Logger
}

func NewLocalImageStore(dir string, logger *zap.Logger) (*LocalImageStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}
	return &LocalImageStore{dir: dir, logger: logger.Named("images")}, nil
}

// Save writes data under ref. The file is written to a temporary name first
// so readers never observe a partial image.
func (s *LocalImageStore) Save(ctx context.Context, ref string, data []byte) error {
	path, err := s.path(ref)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing image: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("storing image: %w", err)
	}
	s.logger.Debug("image stored", zap.String("ref", ref), zap.Int("bytes", len(data)))
	return nil
}

// Open returns the stored payload for ref.
func (s *LocalImageStore) Open(ctx context.Context, ref string) (io.ReadSeekCloser, error) {
	path, err := s.path(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, utils.NewNotFoundError("image")
		}
		return nil, fmt.Errorf("opening image: %w", err)
	}
	return f, nil
}

// Delete removes the payload for ref. A missing file is not an error.
func (s *LocalImageStore) Delete(ctx context.Context, ref string) error {
	path, err := s.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing image: %w", err)
	}
	return nil
}

// path resolves ref inside the store directory, refusing anything that
// would escape it.
func (s *LocalImageStore) path(ref string) (string, error) {
	if ref == "" || ref != filepath.Base(ref) || strings.HasPrefix(ref, ".") {
		return "", utils.NewValidationError("invalid image reference")
	}
	return filepath.Join(s.dir, ref), nil
}
