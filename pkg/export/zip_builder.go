package export

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/flate"
)

// DefaultZipLevel is a moderate Deflate level.
const DefaultZipLevel = 6

// ZipEntry is one file written into an archive.
type ZipEntry struct {
	Name string
	Data []byte
}

// ZipBuilder assembles in-memory Deflate ZIP archives.
type ZipBuilder struct {
	level int
}

// NewZipBuilder returns a builder using the given Deflate level (1-9).
// Out-of-range levels fall back to DefaultZipLevel.
func NewZipBuilder(level int) *ZipBuilder {
	if level < flate.BestSpeed || level > flate.BestCompression {
		level = DefaultZipLevel
	}
	return &ZipBuilder{level: level}
}

// Build writes entries in order. Entry names must be unique and non-empty.
func (b *ZipBuilder) Build(entries []ZipEntry, modified time.Time) ([]byte, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("zip requires at least one entry")
	}
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	level := b.level
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})

	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if entry.Name == "" {
			return nil, fmt.Errorf("zip entry name required")
		}
		if _, dup := seen[entry.Name]; dup {
			return nil, fmt.Errorf("duplicate zip entry %q", entry.Name)
		}
		seen[entry.Name] = struct{}{}

		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     entry.Name,
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			return nil, fmt.Errorf("create zip entry %s: %w", entry.Name, err)
		}
		if _, err := w.Write(entry.Data); err != nil {
			return nil, fmt.Errorf("write zip entry %s: %w", entry.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize zip: %w", err)
	}
	return buf.Bytes(), nil
}
