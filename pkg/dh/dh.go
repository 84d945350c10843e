// Package dh implements the unauthenticated Diffie-Hellman key agreement
// used to derive the shared AES key for one direction of a [pictowire]
// encrypted socket.
//
// This is not a secure key exchange: the prime is deliberately small (see
// [PrimeBits]) and neither side authenticates the other. That limitation
// is preserved deliberately for wire compatibility rather than hardened.
package dh

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// PrimeBits bounds the size of the generated prime p to 3-5 decimal digits.
// The resulting shared secret offers essentially no real security; this is
// a known, preserved limitation.
const PrimeBits = 14 // 2^14 = 16384, i.e. up to 5 decimal digits

// PrivateKeyBits bounds the private scalar x to a 5-decimal-digit range.
const PrivateKeyBits = 16 // 2^16 = 65536, i.e. up to 5 decimal digits

var (
	two = big.NewInt(2)
	one = big.NewInt(1)
)

// RandomPrime returns a random prime in [100, 2^PrimeBits), using
// crypto/rand so distinct endpoints don't collide on the same group.
func RandomPrime() (*big.Int, error) {
	for {
		n, err := rand.Int(rand.Reader, big.NewInt(1<<PrimeBits))
		if err != nil {
			return nil, fmt.Errorf("dh: generate candidate: %w", err)
		}
		if n.Cmp(big.NewInt(100)) < 0 {
			continue
		}
		if n.ProbablyPrime(20) {
			return n, nil
		}
	}
}

// RandomScalar returns a random positive scalar suitable for use as a
// private DH exponent, in [2, 1<<PrivateKeyBits).
func RandomScalar() (*big.Int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<PrivateKeyBits))
	if err != nil {
		return nil, fmt.Errorf("dh: generate scalar: %w", err)
	}
	if n.Cmp(two) < 0 {
		n.Add(n, two)
	}
	return n, nil
}

// PrimitiveRoot finds a primitive root (generator) of the multiplicative
// group mod p, where p is prime. A second independently-drawn random prime
// is not a valid substitute for this; callers must always use an actual
// primitive root of p.
func PrimitiveRoot(p *big.Int) (*big.Int, error) {
	if p.Cmp(big.NewInt(3)) < 0 {
		return nil, fmt.Errorf("dh: prime %s too small to have a useful primitive root", p)
	}

	pm1 := new(big.Int).Sub(p, one)
	factors := primeFactors(new(big.Int).Set(pm1))

	for g := big.NewInt(2); g.Cmp(p) < 0; g.Add(g, one) {
		if isPrimitiveRoot(g, p, pm1, factors) {
			return new(big.Int).Set(g), nil
		}
	}
	return nil, fmt.Errorf("dh: no primitive root found for p=%s", p)
}

// isPrimitiveRoot reports whether g is a primitive root mod p, given p-1 and
// its distinct prime factors: g is a primitive root iff g^((p-1)/q) != 1 mod
// p for every prime factor q of p-1.
func isPrimitiveRoot(g, p, pm1 *big.Int, factors []*big.Int) bool {
	for _, q := range factors {
		e := new(big.Int).Div(pm1, q)
		if new(big.Int).Exp(g, e, p).Cmp(one) == 0 {
			return false
		}
	}
	return true
}

// primeFactors returns the distinct prime factors of n via trial division.
// n is small (bounded by 2^PrimeBits - 1), so trial division is more than
// fast enough.
func primeFactors(n *big.Int) []*big.Int {
	var factors []*big.Int
	d := big.NewInt(2)
	for d.Cmp(n) <= 0 && n.Sign() > 0 {
		if new(big.Int).Mod(n, d).Sign() == 0 {
			factors = append(factors, new(big.Int).Set(d))
			for new(big.Int).Mod(n, d).Sign() == 0 {
				n.Div(n, d)
			}
		}
		d.Add(d, one)
	}
	if n.Cmp(one) > 0 {
		factors = append(factors, new(big.Int).Set(n))
	}
	return factors
}

// Endpoint holds one side's Diffie-Hellman state for one direction of a
// socket: the shared group parameters, this side's private scalar, and,
// once both public keys are known, the derived shared secret.
type Endpoint struct {
	P, G       *big.Int
	PrivateKey *big.Int

	fullKey *big.Int
}

// NewEndpoint constructs an Endpoint from explicit group parameters and a
// private scalar.
func NewEndpoint(p, g, privateKey *big.Int) *Endpoint {
	return &Endpoint{P: p, G: g, PrivateKey: privateKey}
}

// PublicKey returns g^x mod p.
func (e *Endpoint) PublicKey() *big.Int {
	return new(big.Int).Exp(e.G, e.PrivateKey, e.P)
}

// FullKey computes and caches the shared secret peerPublic^x mod p.
func (e *Endpoint) FullKey(peerPublic *big.Int) *big.Int {
	k := new(big.Int).Exp(peerPublic, e.PrivateKey, e.P)
	e.fullKey = k
	return k
}

// IntToBytes serializes n as its minimal-length little-endian byte
// representation, the wire format used for handshake integers. n must be
// non-negative.
func IntToBytes(n *big.Int) []byte {
	if n.Sign() == 0 {
		return []byte{0}
	}
	be := n.Bytes() // big-endian, minimal length, no leading zero byte
	le := make([]byte, len(be))
	for i, b := range be {
		le[len(be)-1-i] = b
	}
	return le
}

// BytesToInt is the inverse of [IntToBytes].
func BytesToInt(b []byte) *big.Int {
	be := make([]byte, len(b))
	for i, c := range b {
		be[len(b)-1-i] = c
	}
	return new(big.Int).SetBytes(be)
}
