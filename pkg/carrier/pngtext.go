package carrier

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// pngSignature is the 8-byte magic every PNG stream starts with.
var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// insertTextChunk inserts a tEXt chunk carrying keyword/value immediately
// after the IHDR chunk of a PNG byte stream. image/png has no
// support for writing ancillary chunks, so metadata tagging is
// implemented here directly against the chunk format.
func insertTextChunk(pngData []byte, keyword, value string) ([]byte, error) {
	if !bytes.HasPrefix(pngData, pngSignature) {
		return nil, fmt.Errorf("carrier: not a png stream")
	}

	body := pngData[len(pngSignature):]
	ihdrLen, ihdrTotal, err := firstChunkExtent(body)
	if err != nil {
		return nil, err
	}
	_ = ihdrLen

	chunk := buildTextChunk(keyword, value)

	out := make([]byte, 0, len(pngData)+len(chunk))
	out = append(out, pngSignature...)
	out = append(out, body[:ihdrTotal]...)
	out = append(out, chunk...)
	out = append(out, body[ihdrTotal:]...)
	return out, nil
}

// findTextChunk scans a PNG byte stream for a tEXt chunk whose keyword
// matches, returning its value.
func findTextChunk(pngData []byte, keyword string) (string, bool) {
	if !bytes.HasPrefix(pngData, pngSignature) {
		return "", false
	}
	body := pngData[len(pngSignature):]

	for len(body) >= 8 {
		length := binary.BigEndian.Uint32(body[0:4])
		typ := string(body[4:8])
		total := 12 + int(length)
		if total > len(body) {
			break
		}
		data := body[8 : 8+length]
		if typ == "tEXt" {
			if nul := bytes.IndexByte(data, 0); nul >= 0 {
				if string(data[:nul]) == keyword {
					return string(data[nul+1:]), true
				}
			}
		}
		body = body[total:]
	}
	return "", false
}

// firstChunkExtent returns the length field of the first chunk (expected
// to be IHDR) and the total byte extent of that chunk (length+type+data+crc),
// so the caller can splice content in right after it.
func firstChunkExtent(body []byte) (length uint32, total int, err error) {
	if len(body) < 8 {
		return 0, 0, fmt.Errorf("carrier: truncated png: no chunks")
	}
	length = binary.BigEndian.Uint32(body[0:4])
	typ := string(body[4:8])
	if typ != "IHDR" {
		return 0, 0, fmt.Errorf("carrier: first png chunk is %q, not IHDR", typ)
	}
	total = 12 + int(length)
	if total > len(body) {
		return 0, 0, fmt.Errorf("carrier: truncated IHDR chunk")
	}
	return length, total, nil
}

// buildTextChunk constructs a complete tEXt chunk (length, type, data,
// CRC) for keyword/value.
func buildTextChunk(keyword, value string) []byte {
	data := make([]byte, 0, len(keyword)+1+len(value))
	data = append(data, []byte(keyword)...)
	data = append(data, 0)
	data = append(data, []byte(value)...)

	chunk := make([]byte, 4+4+len(data)+4)
	binary.BigEndian.PutUint32(chunk[0:4], uint32(len(data)))
	copy(chunk[4:8], "tEXt")
	copy(chunk[8:8+len(data)], data)

	crc := crc32.NewIEEE()
	crc.Write(chunk[4 : 8+len(data)])
	binary.BigEndian.PutUint32(chunk[8+len(data):], crc.Sum32())

	return chunk
}
