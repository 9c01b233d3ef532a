package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalStore keeps a bucket as a directory tree on disk. Used in development
// and tests; public URLs point at the API's own /storage route.
type LocalStore struct {
	bucket  string
	baseDir string
	baseURL string
}

// NewLocalStore ensures <rootDir>/<bucket> exists and returns a handle.
// publicBaseURL is the URL prefix under which the bucket is served.
func NewLocalStore(rootDir, bucket, publicBaseURL string) (*LocalStore, error) {
	if rootDir == "" {
		rootDir = "./data/storage"
	}
	baseDir := filepath.Join(rootDir, bucket)
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create bucket directory: %w", err)
	}
	return &LocalStore{
		bucket:  bucket,
		baseDir: baseDir,
		baseURL: strings.TrimRight(publicBaseURL, "/") + "/" + bucket,
	}, nil
}

// Bucket returns the bucket name.
func (s *LocalStore) Bucket() string { return s.bucket }

// List returns regular files directly under prefix, sorted by name.
func (s *LocalStore) List(_ context.Context, prefix string) ([]Object, error) {
	dir := strings.TrimSuffix(prefix, "/")
	if dir != "" && !validKey(dir) {
		return nil, ErrInvalidKey
	}
	entries, err := os.ReadDir(filepath.Join(s.baseDir, filepath.FromSlash(dir)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Object{}, nil
		}
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	objects := make([]Object, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", entry.Name(), err)
		}
		key := entry.Name()
		if dir != "" {
			key = dir + "/" + entry.Name()
		}
		objects = append(objects, Object{Key: key, Name: entry.Name(), Size: info.Size(), UpdatedAt: info.ModTime()})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Name < objects[j].Name })
	return objects, nil
}

// Download reads the whole object.
func (s *LocalStore) Download(_ context.Context, key string) ([]byte, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Upload writes data through a temp file and rename so readers never see a partial object.
func (s *LocalStore) Upload(_ context.Context, key string, data []byte, _ string, upsert bool) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if !upsert {
		if _, err := os.Stat(path); err == nil {
			return ErrObjectExists
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("prepare directory for %s: %w", key, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", key, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("commit %s: %w", key, err)
	}
	return nil
}

// Delete removes the keys; missing keys are ignored.
func (s *LocalStore) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		path, err := s.resolve(key)
		if err != nil {
			return err
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}
	return nil
}

// PublicURL returns the API URL serving key.
func (s *LocalStore) PublicURL(key string) string {
	return publicObjectURL(s.baseURL, key)
}

// KeyForURL reverses PublicURL.
func (s *LocalStore) KeyForURL(rawURL string) (string, bool) {
	return keyFromPublicURL(s.baseURL, rawURL)
}

func (s *LocalStore) resolve(key string) (string, error) {
	if !validKey(key) {
		return "", ErrInvalidKey
	}
	return filepath.Join(s.baseDir, filepath.FromSlash(key)), nil
}
