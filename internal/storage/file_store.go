// Package storage persists audio blobs under stable locations.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when a location holds nothing.
var ErrNotFound = errors.New("storage: not found")

// Store is the capability the pipeline needs from its storage medium.
type Store interface {
	// Put stores everything read from r under key and returns its location.
	// A failed Put leaves nothing at the location.
	Put(ctx context.Context, key string, r io.Reader) (string, error)
	// Open reads a stored blob back.
	Open(ctx context.Context, location string) (io.ReadSeekCloser, error)
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, location string) error
}

// FileStore keeps blobs as files in one directory.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "audio"
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve storage dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileStore{dir: abs}, nil
}

// Dir returns the absolute storage directory.
func (fs *FileStore) Dir() string {
	return fs.dir
}

// Put writes to a hidden temp file first and renames it into place.
func (fs *FileStore) Put(ctx context.Context, key string, r io.Reader) (string, error) {
	if err := validKey(key); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(fs.dir, ".put-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	_, err = io.Copy(tmp, r)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("write %s: %w", key, err)
	}

	path := filepath.Join(fs.dir, key)
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("move %s into place: %w", key, err)
	}
	return path, nil
}

func (fs *FileStore) Open(_ context.Context, location string) (io.ReadSeekCloser, error) {
	path, err := fs.resolve(location)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
		}
		return nil, err
	}
	return f, nil
}

func (fs *FileStore) Delete(_ context.Context, location string) error {
	path, err := fs.resolve(location)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// resolve refuses locations outside the store directory.
func (fs *FileStore) resolve(location string) (string, error) {
	path := filepath.Clean(location)
	if !filepath.IsAbs(path) {
		path = filepath.Join(fs.dir, path)
	}
	if filepath.Dir(path) != fs.dir {
		return "", fmt.Errorf("location %q is outside %s", location, fs.dir)
	}
	return path, nil
}

func validKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return fmt.Errorf("invalid storage key %q", key)
	}
	return nil
}
