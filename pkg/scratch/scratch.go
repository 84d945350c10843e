// Package scratch generates random basenames for one-off files produced
// during a carrier pipeline iteration.
package scratch

import (
	"crypto/rand"
	"fmt"
)

const nameLen = 16

var nameAlphabet = []byte("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789")

// RandomName returns a random alphanumeric name of length n, suitable for a
// temp file or directory basename. It is not a secret; it only needs to
// avoid collisions within one directory.
func RandomName(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Errorf("scratch: read random bytes: %w", err))
	}
	for i, c := range b {
		b[i] = nameAlphabet[int(c)%len(nameAlphabet)]
	}
	return string(b)
}

// RandomFilename returns a random basename with the given extension (without
// the leading dot), or no extension if ext is empty.
func RandomFilename(ext string) string {
	name := RandomName(nameLen)
	if ext != "" {
		name += "." + ext
	}
	return name
}
