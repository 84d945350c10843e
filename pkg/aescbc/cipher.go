// Package aescbc implements the symmetric cipher used to protect each
// message payload: AES-CBC under a SHA-256-derived key, with a random IV
// per message and PKCS7-style byte padding.
//
// Two entry points are provided. Encrypt/Decrypt operate directly on raw
// bytes and round-trip any byte sequence. EncryptString/DecryptString
// additionally UTF-16-encode the plaintext first; this is what the carrier
// pipeline (pkg/carrier) uses.
package aescbc

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"unicode/utf16"
)

// BlockSize is the AES block size in bytes.
const BlockSize = aes.BlockSize // 16

// Cipher encrypts and decrypts message payloads under a single derived key.
// A Cipher is safe for concurrent use; each Encrypt call generates its own
// IV and constructs its own cipher.Block-derived stream, so one Cipher
// instance is meant to be reused across many messages without ever
// repeating an IV.
type Cipher struct {
	key [sha256.Size]byte
}

// New derives a Cipher from arbitrary key material by hashing it with
// SHA-256 to produce a 32-byte AES-256 key.
func New(keyMaterial []byte) *Cipher {
	return &Cipher{key: sha256.Sum256(keyMaterial)}
}

// Encrypt pads plaintext to a multiple of BlockSize, encrypts it under a
// fresh random IV, and returns IV || ciphertext.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		return nil, fmt.Errorf("aescbc: new cipher: %w", err)
	}

	padded := pad(plaintext)

	iv := make([]byte, BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("aescbc: generate iv: %w", err)
	}

	out := make([]byte, len(iv)+len(padded))
	copy(out, iv)

	mode := cipher.NewCBCEncrypter(block, iv)
	mode.CryptBlocks(out[len(iv):], padded)

	return out, nil
}

// Decrypt is the inverse of Encrypt: it splits the leading IV, decrypts the
// remainder, and strips the trailing padding.
func (c *Cipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < BlockSize {
		return nil, fmt.Errorf("aescbc: ciphertext shorter than one block")
	}
	iv, body := ciphertext[:BlockSize], ciphertext[BlockSize:]
	if len(body)%BlockSize != 0 {
		return nil, fmt.Errorf("aescbc: ciphertext not a multiple of the block size")
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("aescbc: ciphertext has no data blocks")
	}

	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		return nil, fmt.Errorf("aescbc: new cipher: %w", err)
	}

	padded := make([]byte, len(body))
	mode := cipher.NewCBCDecrypter(block, iv)
	mode.CryptBlocks(padded, body)

	return unpad(padded)
}

// pad appends n copies of byte n, where n = BlockSize - len(b)%BlockSize,
// so the result is always padded even when len(b) is already a multiple of
// BlockSize (n == BlockSize in that case).
func pad(b []byte) []byte {
	n := BlockSize - len(b)%BlockSize
	return append(bytes.Clone(b), bytes.Repeat([]byte{byte(n)}, n)...)
}

// unpad strips the trailing padding written by pad. It does not validate
// that the stripped bytes all equal n, but it does reject corrupt padding
// lengths.
func unpad(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("aescbc: empty plaintext block")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > BlockSize || n > len(b) {
		return nil, fmt.Errorf("aescbc: corrupt padding length %d", n)
	}
	return b[:len(b)-n], nil
}

// EncryptString is the text-oriented entry point: it UTF-16-encodes s
// before padding/encrypting.
func (c *Cipher) EncryptString(s string) ([]byte, error) {
	return c.Encrypt(stringToUTF16LE(s))
}

// DecryptString is the inverse of EncryptString.
func (c *Cipher) DecryptString(ciphertext []byte) (string, error) {
	b, err := c.Decrypt(ciphertext)
	if err != nil {
		return "", err
	}
	return utf16LEToString(b)
}

func stringToUTF16LE(s string) []byte {
	units := utf16.Encode([]rune(s))
	b := make([]byte, len(units)*2)
	for i, u := range units {
		b[2*i] = byte(u)
		b[2*i+1] = byte(u >> 8)
	}
	return b
}

func utf16LEToString(b []byte) (string, error) {
	if len(b)%2 != 0 {
		return "", fmt.Errorf("aescbc: odd-length utf-16 byte sequence")
	}
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = uint16(b[2*i]) | uint16(b[2*i+1])<<8
	}
	return string(utf16.Decode(units)), nil
}
