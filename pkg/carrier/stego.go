package carrier

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/auyer/steganography"
)

// ErrCapacityExceeded is returned when the ciphertext does not fit the
// cover image's LSB capacity.
var ErrCapacityExceeded = fmt.Errorf("carrier: ciphertext exceeds cover image capacity")

// embedLSB hides data inside img's pixel LSBs, one bit per colour
// channel, and returns the resulting PNG bytes. data is embedded as raw
// bytes, one byte per codepoint, rather than being reinterpreted as
// text.
func embedLSB(img image.Image, data []byte) ([]byte, error) {
	capacity := steganography.MaxEncodeSize(img)
	if uint64(len(data))+4 > uint64(capacity) {
		return nil, ErrCapacityExceeded
	}

	var buf bytes.Buffer
	steganography.Encode(&buf, img, data)
	return buf.Bytes(), nil
}

// revealLSB extracts the bytes previously hidden by embedLSB from a PNG.
func revealLSB(pngData []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(pngData))
	if err != nil {
		return nil, fmt.Errorf("carrier: decode stego png: %w", err)
	}
	size := steganography.GetMessageSizeFromImage(img)
	return steganography.Decode(size, img), nil
}
