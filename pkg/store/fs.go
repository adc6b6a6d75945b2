package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const backendFS = "fs"

// FSStore writes documents below a base directory.
type FSStore struct {
	baseDir string
}

// NewFSStore creates a filesystem store rooted at baseDir, creating it if
// needed.
func NewFSStore(baseDir string) (*FSStore, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(baseDir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(baseDir, 0o750); err != nil {
			return nil, fmt.Errorf("create base directory: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path %s is not a directory", baseDir)
	}

	return &FSStore{baseDir: filepath.Clean(baseDir)}, nil
}

// BaseDir returns the store root.
func (s *FSStore) BaseDir() string {
	return s.baseDir
}

// EnsureLayout creates the raw/ and clean/ folders of vendor.
func (s *FSStore) EnsureLayout(vendor string) error {
	if err := validateVendor(vendor); err != nil {
		return err
	}
	for _, area := range []string{"raw", "clean"} {
		dir, err := s.resolve(area + "/" + vendor)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// Save writes doc to the key's path. The file is written to a temporary
// name and renamed so readers never see a partial document.
func (s *FSStore) Save(_ context.Context, key Key, doc *Document) error {
	if doc == nil {
		return fmt.Errorf("document cannot be nil")
	}
	if err := key.Validate(); err != nil {
		return err
	}
	if err := s.EnsureLayout(key.Vendor); err != nil {
		storeErrors.WithLabelValues(backendFS, "save").Inc()
		return err
	}

	path, err := s.resolve(key.Path())
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		storeErrors.WithLabelValues(backendFS, "save").Inc()
		return fmt.Errorf("marshal document: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*.json")
	if err != nil {
		storeErrors.WithLabelValues(backendFS, "save").Inc()
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		storeErrors.WithLabelValues(backendFS, "save").Inc()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		storeErrors.WithLabelValues(backendFS, "save").Inc()
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		storeErrors.WithLabelValues(backendFS, "save").Inc()
		return fmt.Errorf("rename to %s: %w", path, err)
	}

	storeWrites.WithLabelValues(backendFS).Inc()
	return nil
}

// Load reads the document at the key's path.
func (s *FSStore) Load(_ context.Context, key Key) (*Document, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	path, err := s.resolve(key.Path())
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		storeErrors.WithLabelValues(backendFS, "load").Inc()
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		storeErrors.WithLabelValues(backendFS, "load").Inc()
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &doc, nil
}

// Delete removes the document file. Missing files are not an error.
func (s *FSStore) Delete(_ context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	path, err := s.resolve(key.Path())
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		storeErrors.WithLabelValues(backendFS, "delete").Inc()
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// resolve maps a relative slash path into the base directory and rejects
// paths that leave it.
func (s *FSStore) resolve(rel string) (string, error) {
	full := filepath.Clean(filepath.Join(s.baseDir, filepath.FromSlash(rel)))
	if !strings.HasPrefix(full, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path traversal in %q", ErrInvalidKey, rel)
	}
	return full, nil
}
