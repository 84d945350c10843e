package carrier

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"sort"
	"strconv"
	"strings"
)

// DefaultRows and DefaultCols are the default grid dimensions a stego
// image is split into before archiving.
const (
	DefaultRows = 6
	DefaultCols = 8
)

// descriptionKeyword is the PNG tEXt keyword the tile coordinate is
// tagged under.
const descriptionKeyword = "Description"

// tile is one grid cell of a split stego image, tagged with its
// position.
type tile struct {
	row, col int
	img      image.Image
}

// splitGrid divides img into rows×cols tiles of size
// floor(W/cols) × floor(H/rows); the rightmost column and bottommost row
// absorb any residual pixels.
func splitGrid(img image.Image, rows, cols int) []tile {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	tileW, tileH := w/cols, h/rows

	tiles := make([]tile, 0, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			x0 := bounds.Min.X + c*tileW
			y0 := bounds.Min.Y + r*tileH
			x1 := x0 + tileW
			y1 := y0 + tileH
			if c == cols-1 {
				x1 = bounds.Max.X
			}
			if r == rows-1 {
				y1 = bounds.Max.Y
			}

			dst := image.NewRGBA(image.Rect(0, 0, x1-x0, y1-y0))
			draw.Draw(dst, dst.Bounds(), img, image.Point{X: x0, Y: y0}, draw.Src)
			tiles = append(tiles, tile{row: r, col: c, img: dst})
		}
	}
	return tiles
}

// tagCoordinate formats a tile's grid position as a "row_column" string.
func tagCoordinate(row, col int) string {
	return fmt.Sprintf("%d_%d", row, col)
}

// parseCoordinate is the inverse of tagCoordinate.
func parseCoordinate(s string) (row, col int, err error) {
	parts := strings.SplitN(s, "_", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("carrier: malformed tile coordinate %q", s)
	}
	row, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("carrier: malformed tile row in %q: %w", s, err)
	}
	col, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("carrier: malformed tile column in %q: %w", s, err)
	}
	return row, col, nil
}

// encodeTaggedPNG encodes img as PNG bytes carrying a Description tEXt
// chunk with its row_column tag.
func encodeTaggedPNG(img image.Image, row, col int) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("carrier: encode tagged png: %w", err)
	}
	return insertTextChunk(buf.Bytes(), descriptionKeyword, tagCoordinate(row, col))
}

// decodeTaggedPNG decodes a PNG and returns its image plus the
// Description tEXt chunk's value. A missing or unparseable Description
// chunk is fatal for that tile.
func decodeTaggedPNG(data []byte) (image.Image, int, int, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("carrier: decode tile png: %w", err)
	}
	desc, ok := findTextChunk(data, descriptionKeyword)
	if !ok {
		return nil, 0, 0, fmt.Errorf("carrier: tile missing %s metadata", descriptionKeyword)
	}
	row, col, err := parseCoordinate(desc)
	if err != nil {
		return nil, 0, 0, err
	}
	return img, row, col, nil
}

// assembledTile pairs a decoded tile with its coordinate, for sorting
// and grid reconstruction.
type assembledTile struct {
	row, col int
	img      image.Image
}

// assembleGrid reconstructs the full stego image from its tagged tiles.
// The canvas size is (tileW*cols, tileH*rows) using the first tile's
// dimensions, with every tile pasted at (col*tileW, row*tileH).
func assembleGrid(tiles []assembledTile) (image.Image, error) {
	if len(tiles) == 0 {
		return nil, fmt.Errorf("carrier: no tiles to assemble")
	}

	sort.Slice(tiles, func(i, j int) bool {
		if tiles[i].row != tiles[j].row {
			return tiles[i].row < tiles[j].row
		}
		return tiles[i].col < tiles[j].col
	})

	maxRow, maxCol := 0, 0
	seen := make(map[[2]int]bool, len(tiles))
	for _, t := range tiles {
		key := [2]int{t.row, t.col}
		if seen[key] {
			return nil, fmt.Errorf("carrier: duplicate tile at row=%d col=%d", t.row, t.col)
		}
		seen[key] = true
		if t.row > maxRow {
			maxRow = t.row
		}
		if t.col > maxCol {
			maxCol = t.col
		}
	}
	rows, cols := maxRow+1, maxCol+1
	if len(tiles) != rows*cols {
		return nil, fmt.Errorf("carrier: tile count %d does not match grid %dx%d", len(tiles), rows, cols)
	}

	tileW := tiles[0].img.Bounds().Dx()
	tileH := tiles[0].img.Bounds().Dy()

	canvas := image.NewRGBA(image.Rect(0, 0, tileW*cols, tileH*rows))
	for _, t := range tiles {
		x0, y0 := t.col*tileW, t.row*tileH
		b := t.img.Bounds()
		dstRect := image.Rect(x0, y0, x0+b.Dx(), y0+b.Dy())
		draw.Draw(canvas, dstRect, t.img, b.Min, draw.Src)
	}
	return canvas, nil
}
