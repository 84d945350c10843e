package aescbc

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func TestRoundTripBytes(t *testing.T) {
	c := New([]byte("any key material works, it gets hashed"))

	cases := [][]byte{
		{},
		[]byte("hello"),
		bytes.Repeat([]byte("x"), 115167),
		bytes.Repeat([]byte{0xff, 0x00, 0xab}, 4000),
	}
	for _, pt := range cases {
		ct, err := c.Encrypt(pt)
		if err != nil {
			t.Fatalf("encrypt len=%d: %v", len(pt), err)
		}
		got, err := c.Decrypt(ct)
		if err != nil {
			t.Fatalf("decrypt len=%d: %v", len(pt), err)
		}
		if !bytes.Equal(got, pt) {
			t.Fatalf("round trip mismatch for len=%d", len(pt))
		}
	}
}

func TestRoundTripRandom(t *testing.T) {
	c := New([]byte("k"))
	for _, n := range []int{0, 1, 15, 16, 17, 1000, 70000} {
		pt := make([]byte, n)
		rand.Read(pt)
		ct, err := c.Encrypt(pt)
		if err != nil {
			t.Fatal(err)
		}
		got, err := c.Decrypt(ct)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, pt) {
			t.Fatalf("mismatch at n=%d", n)
		}
	}
}

func TestEncryptIsRandomized(t *testing.T) {
	c := New([]byte("k"))
	pt := []byte("the quick brown fox")

	a, err := c.Encrypt(pt)
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Encrypt(pt)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a, b) {
		t.Fatal("two encryptions of the same plaintext produced identical ciphertext")
	}
}

func TestRoundTripString(t *testing.T) {
	c := New([]byte("k"))
	for _, s := range []string{"", "hello", "héllo 😀", "日本語"} {
		ct, err := c.EncryptString(s)
		if err != nil {
			t.Fatalf("encrypt %q: %v", s, err)
		}
		got, err := c.DecryptString(ct)
		if err != nil {
			t.Fatalf("decrypt %q: %v", s, err)
		}
		if got != s {
			t.Fatalf("round trip mismatch: got %q want %q", got, s)
		}
	}
}

func TestDecryptRejectsCorruptPadding(t *testing.T) {
	c := New([]byte("k"))
	ct, err := c.Encrypt([]byte("hello world"))
	if err != nil {
		t.Fatal(err)
	}
	// "hello world" is padded with n == 5; flipping the matching byte of
	// the preceding block (here the IV) turns the padding length into 0.
	ct[len(ct)-BlockSize-1] ^= 5 // n == 0 is invalid
	if _, err := c.Decrypt(ct); err == nil {
		t.Fatal("expected error for corrupt padding length 0")
	}

	ct2, err := c.Encrypt([]byte("hello world"))
	if err != nil {
		t.Fatal(err)
	}
	ct2[len(ct2)-BlockSize-1] ^= 5 ^ 17 // n == 17 > BlockSize is invalid
	if _, err := c.Decrypt(ct2); err == nil {
		t.Fatal("expected error for corrupt padding length 17")
	}
}

func TestDecryptRejectsShortInput(t *testing.T) {
	c := New([]byte("k"))
	if _, err := c.Decrypt(make([]byte, BlockSize-1)); err == nil {
		t.Fatal("expected error for input shorter than one block")
	}
	if _, err := c.Decrypt(make([]byte, BlockSize)); err == nil {
		t.Fatal("expected error for input with no data blocks")
	}
}
