package storage

import (
	"context"
	"errors"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"
)

var (
	// ErrObjectNotFound is returned when a key does not exist in the bucket.
	ErrObjectNotFound = errors.New("object not found")
	// ErrObjectExists is returned by Upload without upsert when the key is taken.
	ErrObjectExists = errors.New("object already exists")
	// ErrInvalidKey is returned for empty keys or keys escaping the bucket.
	ErrInvalidKey = errors.New("invalid object key")
)

// Object describes one stored blob.
type Object struct {
	Key       string
	Name      string
	Size      int64
	UpdatedAt time.Time
}

// ObjectStore is a single bucket of an object storage backend.
type ObjectStore interface {
	Bucket() string
	// List returns the objects directly under prefix. Nested folders are not descended.
	List(ctx context.Context, prefix string) ([]Object, error)
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte, contentType string, upsert bool) error
	Delete(ctx context.Context, keys ...string) error
	PublicURL(key string) string
	// KeyForURL maps a public URL produced by this store back to its key.
	KeyForURL(rawURL string) (string, bool)
}

// ContentTypeFor guesses a MIME type from a file name.
func ContentTypeFor(name string) string {
	if ct := mime.TypeByExtension(strings.ToLower(path.Ext(name))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func validKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") {
		return false
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return false
		}
	}
	return true
}

// publicObjectURL joins base and key, escaping each key segment.
func publicObjectURL(base, key string) string {
	parts := strings.Split(key, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(parts, "/")
}

// keyFromPublicURL is the inverse of publicObjectURL. Query strings are ignored.
func keyFromPublicURL(base, rawURL string) (string, bool) {
	if base == "" || rawURL == "" {
		return "", false
	}
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		rawURL = rawURL[:i]
	}
	prefix := strings.TrimRight(base, "/") + "/"
	if !strings.HasPrefix(rawURL, prefix) {
		return "", false
	}
	key, err := url.PathUnescape(strings.TrimPrefix(rawURL, prefix))
	if err != nil || !validKey(key) {
		return "", false
	}
	return key, true
}

func baseName(key string) string {
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[i+1:]
	}
	return key
}
