// Package zip bundles exported creatives into a single archive.
package zip

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"time"
)

// Entry is one file in the bundle.
type Entry struct {
	Name     string
	Data     []byte
	Modified time.Time
}

// Write streams entries to w in order. Duplicate names are rejected since
// most unzip tools silently keep only one of them.
func Write(w io.Writer, entries []Entry) error {
	zw := zip.NewWriter(w)
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.Name == "" {
			return fmt.Errorf("zip: entry without name")
		}
		if _, dup := seen[e.Name]; dup {
			return fmt.Errorf("zip: duplicate entry %q", e.Name)
		}
		seen[e.Name] = struct{}{}

		hdr := &zip.FileHeader{Name: e.Name, Method: zip.Deflate, Modified: e.Modified}
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("zip: create %s: %w", e.Name, err)
		}
		if _, err := fw.Write(e.Data); err != nil {
			return fmt.Errorf("zip: write %s: %w", e.Name, err)
		}
	}
	return zw.Close()
}

// Bytes is Write into memory.
func Bytes(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, entries); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
