package carrier

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/pictowire/pictowire/pkg/aescbc"
)

func solidTestImage(w, h int, c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestSplitAndAssembleGridRoundTrip(t *testing.T) {
	orig := solidTestImage(640, 480, color.RGBA{10, 20, 30, 255})

	tiles := splitGrid(orig, DefaultRows, DefaultCols)
	if len(tiles) != DefaultRows*DefaultCols {
		t.Fatalf("got %d tiles, want %d", len(tiles), DefaultRows*DefaultCols)
	}

	assembled := make([]assembledTile, len(tiles))
	for i, tl := range tiles {
		assembled[i] = assembledTile{row: tl.row, col: tl.col, img: tl.img}
	}

	restored, err := assembleGrid(assembled)
	if err != nil {
		t.Fatal(err)
	}
	if restored.Bounds().Dx() != 640 || restored.Bounds().Dy() != 480 {
		t.Fatalf("restored size = %v, want 640x480", restored.Bounds())
	}

	for _, p := range [][2]int{{0, 0}, {320, 240}, {639, 479}} {
		got := restored.At(p[0], p[1])
		want := orig.At(p[0], p[1])
		gr, gg, gb, ga := got.RGBA()
		wr, wg, wb, wa := want.RGBA()
		if gr != wr || gg != wg || gb != wb || ga != wa {
			t.Fatalf("pixel mismatch at %v", p)
		}
	}
}

func TestAssembleGridRejectsDuplicateCoordinate(t *testing.T) {
	small := solidTestImage(10, 10, color.RGBA{1, 2, 3, 255})
	tiles := []assembledTile{
		{row: 0, col: 0, img: small},
		{row: 0, col: 0, img: small},
	}
	if _, err := assembleGrid(tiles); err == nil {
		t.Fatal("expected error for duplicate coordinate")
	}
}

func TestAssembleGridRejectsTileCountMismatch(t *testing.T) {
	small := solidTestImage(10, 10, color.RGBA{1, 2, 3, 255})
	tiles := []assembledTile{
		{row: 0, col: 0, img: small},
		{row: 1, col: 1, img: small},
	}
	if _, err := assembleGrid(tiles); err == nil {
		t.Fatal("expected error for tile count not matching grid size")
	}
}

func TestTagCoordinateRoundTrip(t *testing.T) {
	for _, c := range []struct{ row, col int }{{0, 0}, {5, 7}, {12, 0}} {
		s := tagCoordinate(c.row, c.col)
		row, col, err := parseCoordinate(s)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		if row != c.row || col != c.col {
			t.Fatalf("got (%d,%d) want (%d,%d)", row, col, c.row, c.col)
		}
	}
}

func TestParseCoordinateRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "5", "a_b", "5_"} {
		if _, _, err := parseCoordinate(s); err == nil {
			t.Fatalf("expected error for %q", s)
		}
	}
}

func TestTextChunkRoundTrip(t *testing.T) {
	img := solidTestImage(8, 8, color.RGBA{5, 6, 7, 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}

	tagged, err := insertTextChunk(buf.Bytes(), "Description", "3_4")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := png.Decode(bytes.NewReader(tagged)); err != nil {
		t.Fatalf("tagged png does not decode: %v", err)
	}

	got, ok := findTextChunk(tagged, "Description")
	if !ok {
		t.Fatal("Description chunk not found")
	}
	if got != "3_4" {
		t.Fatalf("got %q want %q", got, "3_4")
	}
}

func TestFindTextChunkMissing(t *testing.T) {
	img := solidTestImage(8, 8, color.RGBA{5, 6, 7, 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if _, ok := findTextChunk(buf.Bytes(), "Description"); ok {
		t.Fatal("expected no Description chunk on untagged png")
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	entries := []archiveEntry{
		{name: "a.png", data: []byte("alpha")},
		{name: "b.png", data: []byte("beta")},
	}
	zipBytes, err := createZip(entries)
	if err != nil {
		t.Fatal(err)
	}
	got, err := extractZip(zipBytes)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(entries) {
		t.Fatalf("got %d entries, want %d", len(got), len(entries))
	}
	byName := map[string][]byte{}
	for _, e := range got {
		byName[e.name] = e.data
	}
	for _, e := range entries {
		if !bytes.Equal(byName[e.name], e.data) {
			t.Fatalf("entry %s mismatch", e.name)
		}
	}
}

func TestEncodeDecodePipelineRoundTrip(t *testing.T) {
	opts := DefaultOptions()
	cipher := aescbc.New([]byte("shared secret"))

	for _, msg := range []string{"", "hello", "héllo world 😀"} {
		archive, err := Encode(opts, cipher, []byte(msg))
		if err != nil {
			t.Fatalf("encode %q: %v", msg, err)
		}

		got, err := Decode(opts, cipher, archive)
		if err != nil {
			t.Fatalf("decode %q: %v", msg, err)
		}
		if string(got) != msg {
			t.Fatalf("round trip mismatch: got %q want %q", got, msg)
		}
	}
}

func TestEncodeTruncatesOversizeContent(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxContentLength = 10
	cipher := aescbc.New([]byte("k"))

	archive, err := Encode(opts, cipher, bytes.Repeat([]byte("x"), 100))
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(opts, cipher, archive)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 10 {
		t.Fatalf("got %d bytes, want 10", len(got))
	}
}

func TestDecodeRejectsTamperedArchive(t *testing.T) {
	opts := DefaultOptions()
	cipher := aescbc.New([]byte("k"))

	archive, err := Encode(opts, cipher, []byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	archive[len(archive)-1] ^= 0xFF
	if _, err := Decode(opts, cipher, archive); err == nil {
		t.Fatal("expected error decoding corrupted archive")
	}
}
