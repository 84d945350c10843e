package carrier

import (
	"fmt"

	"github.com/pictowire/pictowire/pkg/aescbc"
	"github.com/pictowire/pictowire/pkg/scratch"
)

// Options bundles the parameters an encode/decode cycle needs beyond the
// plaintext and key: grid geometry, content cap, and where cover images
// come from. The encrypted socket (pkg/pictowire) builds one Options per
// Cipher and reuses it across iterations.
type Options struct {
	Rows, Cols       int
	MaxContentLength int
	CoverWidth       int
	CoverHeight      int
	CoverSource      CoverSource
}

// DefaultOptions returns the standard grid size, content cap, and cover
// dimensions used when no overrides are configured.
func DefaultOptions() Options {
	return Options{
		Rows:             DefaultRows,
		Cols:             DefaultCols,
		MaxContentLength: 115167,
		CoverWidth:       DefaultCoverWidth,
		CoverHeight:      DefaultCoverHeight,
		CoverSource:      NullCoverSource{},
	}
}

// Encode runs the full encode pipeline: truncate, encrypt, acquire a
// cover image, embed, split into a tagged tile grid, and archive,
// returning the ZIP bytes ready to transmit as one framed message.
//
// The pipeline never touches disk: every intermediate (cover image,
// stego image, tiles, archive) is held in memory, so no temp directory
// ever needs to outlive one iteration.
func Encode(opts Options, cipher *aescbc.Cipher, plaintext []byte) ([]byte, error) {
	if len(plaintext) > opts.MaxContentLength {
		plaintext = plaintext[:opts.MaxContentLength]
	}

	// Queued bytes are treated as UTF-8 text on the way in and out, so a
	// plaintext truncation above can split a multibyte rune; that's an
	// accepted edge case of the byte-length cap.
	ciphertext, err := cipher.EncryptString(string(plaintext))
	if err != nil {
		return nil, fmt.Errorf("carrier: encrypt: %w", err)
	}

	cover, err := AcquireCover(opts.CoverSource, opts.CoverWidth, opts.CoverHeight)
	if err != nil {
		return nil, fmt.Errorf("carrier: acquire cover image: %w", err)
	}

	stegoPNG, err := embedLSB(cover, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("carrier: embed ciphertext: %w", err)
	}
	stegoImg, err := pngDecodeBytes(stegoPNG)
	if err != nil {
		return nil, fmt.Errorf("carrier: decode stego image: %w", err)
	}

	tiles := splitGrid(stegoImg, opts.Rows, opts.Cols)

	entries := make([]archiveEntry, 0, len(tiles))
	for _, t := range tiles {
		tagged, err := encodeTaggedPNG(t.img, t.row, t.col)
		if err != nil {
			return nil, fmt.Errorf("carrier: tag tile (%d,%d): %w", t.row, t.col, err)
		}
		entries = append(entries, archiveEntry{name: scratch.RandomFilename("png"), data: tagged})
	}

	archive, err := createZip(entries)
	if err != nil {
		return nil, fmt.Errorf("carrier: build archive: %w", err)
	}
	return archive, nil
}

// Decode runs the full decode pipeline: unpack the archive, read tile
// coordinates, reassemble the grid, reveal the hidden ciphertext, and
// decrypt it.
func Decode(opts Options, cipher *aescbc.Cipher, archive []byte) ([]byte, error) {
	entries, err := extractZip(archive)
	if err != nil {
		return nil, fmt.Errorf("carrier: extract archive: %w", err)
	}

	tiles := make([]assembledTile, 0, len(entries))
	for _, e := range entries {
		img, row, col, err := decodeTaggedPNG(e.data)
		if err != nil {
			return nil, fmt.Errorf("carrier: tile %s: %w", e.name, err)
		}
		tiles = append(tiles, assembledTile{row: row, col: col, img: img})
	}

	assembled, err := assembleGrid(tiles)
	if err != nil {
		return nil, fmt.Errorf("carrier: assemble grid: %w", err)
	}

	stegoPNG, err := encodePNG(assembled)
	if err != nil {
		return nil, fmt.Errorf("carrier: re-encode assembled image: %w", err)
	}
	ciphertext, err := revealLSB(stegoPNG)
	if err != nil {
		return nil, fmt.Errorf("carrier: reveal ciphertext: %w", err)
	}

	plaintext, err := cipher.DecryptString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("carrier: decrypt: %w", err)
	}
	return []byte(plaintext), nil
}
