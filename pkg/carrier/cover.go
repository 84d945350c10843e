// Package carrier implements the encode/decode pipeline that turns an
// encrypted payload into a ZIP of tagged PNG tiles, and back.
package carrier

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"io"
	"net/http"
	"time"
)

// DefaultCoverWidth and DefaultCoverHeight are the fixed dimensions of the
// cover image the pipeline obtains before embedding ciphertext.
const (
	DefaultCoverWidth  = 640
	DefaultCoverHeight = 480
)

// CoverSource supplies raw cover-image bytes, in any format, for a given
// size. The HTTP-backed implementation and tests both satisfy this.
type CoverSource interface {
	Fetch(width, height int) ([]byte, error)
}

// NullCoverSource always fails, forcing the solid-colour fallback. Useful
// for tests and for offline operation.
type NullCoverSource struct{}

// Fetch implements CoverSource.
func (NullCoverSource) Fetch(width, height int) ([]byte, error) {
	return nil, fmt.Errorf("carrier: no cover source configured")
}

// HTTPCoverSource fetches a random image from an external endpoint. The
// endpoint is expected to return raw image bytes in any format the
// standard image package can decode; PNG and JPEG are both registered.
type HTTPCoverSource struct {
	Endpoint string // format string with %d,%d for width,height
	APIKey   string
	Client   *http.Client
}

// Fetch implements CoverSource.
func (s *HTTPCoverSource) Fetch(width, height int) ([]byte, error) {
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	url := fmt.Sprintf(s.Endpoint, width, height)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("carrier: build cover request: %w", err)
	}
	if s.APIKey != "" {
		req.Header.Set("X-Api-Key", s.APIKey)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("carrier: fetch cover image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("carrier: cover endpoint returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// AcquireCover obtains a cover image of the given size, preferring src and
// falling back to a solid random colour on any failure, decode failure
// included.
func AcquireCover(src CoverSource, width, height int) (image.Image, error) {
	if src != nil {
		if raw, err := src.Fetch(width, height); err == nil && len(raw) > 0 {
			if img, _, decodeErr := image.Decode(bytes.NewReader(raw)); decodeErr == nil {
				return img, nil
			}
		}
	}
	return solidColorImage(width, height)
}

// solidColorImage synthesizes an RGBA image of a uniformly random color,
// the fallback cover when no external source is available.
func solidColorImage(width, height int) (image.Image, error) {
	c, err := randomColor()
	if err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img, nil
}

func randomColor() (color.RGBA, error) {
	var b [3]byte
	if _, err := rand.Read(b[:]); err != nil {
		return color.RGBA{}, fmt.Errorf("carrier: generate random color: %w", err)
	}
	return color.RGBA{R: b[0], G: b[1], B: b[2], A: 0xff}, nil
}

// encodePNG is a small helper shared by the pipeline to write an
// image.Image as PNG bytes.
func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("carrier: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// pngDecodeBytes decodes a PNG byte slice back into an image.Image.
func pngDecodeBytes(data []byte) (image.Image, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("carrier: decode png: %w", err)
	}
	return img, nil
}
