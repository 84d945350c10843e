package carrier

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
)

// registerFlateOnce swaps the archive/zip package's default flate
// implementation for klauspost/compress's faster one.
var registerFlateOnce sync.Once

func registerFlate() {
	registerFlateOnce.Do(func() {
		zip.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(w, flate.DefaultCompression)
		})
		zip.RegisterDecompressor(zip.Deflate, func(r io.Reader) io.ReadCloser {
			return flate.NewReader(r)
		})
	})
}

// archiveEntry is one named file going into a ZIP.
type archiveEntry struct {
	name string
	data []byte
}

// createZip packages entries into a single in-memory ZIP archive, in
// entry order.
func createZip(entries []archiveEntry) ([]byte, error) {
	registerFlate()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: zip.Deflate})
		if err != nil {
			return nil, fmt.Errorf("carrier: create zip entry %s: %w", e.name, err)
		}
		if _, err := w.Write(e.data); err != nil {
			return nil, fmt.Errorf("carrier: write zip entry %s: %w", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("carrier: close zip: %w", err)
	}
	return buf.Bytes(), nil
}

// extractZip reads every entry out of a ZIP archive held entirely in
// memory.
func extractZip(data []byte) ([]archiveEntry, error) {
	registerFlate()

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("carrier: open zip: %w", err)
	}

	entries := make([]archiveEntry, 0, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("carrier: open zip entry %s: %w", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("carrier: read zip entry %s: %w", f.Name, err)
		}
		entries = append(entries, archiveEntry{name: f.Name, data: content})
	}
	return entries, nil
}
