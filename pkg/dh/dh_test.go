package dh

import (
	"math/big"
	"testing"
)

func TestIntBytesRoundTrip(t *testing.T) {
	for _, n := range []int64{0, 1, 2, 255, 256, 65535, 65536, 123456789} {
		b := IntToBytes(big.NewInt(n))
		got := BytesToInt(b)
		if got.Int64() != n {
			t.Fatalf("round trip %d: got %s", n, got)
		}
	}
}

func TestIntBytesRoundTripRandom(t *testing.T) {
	for i := 0; i < 50; i++ {
		p, err := RandomPrime()
		if err != nil {
			t.Fatal(err)
		}
		b := IntToBytes(p)
		got := BytesToInt(b)
		if got.Cmp(p) != 0 {
			t.Fatalf("round trip %s: got %s", p, got)
		}
	}
}

func TestRandomPrimeIsPrime(t *testing.T) {
	for i := 0; i < 20; i++ {
		p, err := RandomPrime()
		if err != nil {
			t.Fatal(err)
		}
		if !p.ProbablyPrime(20) {
			t.Fatalf("%s is not prime", p)
		}
		if p.Cmp(big.NewInt(100)) < 0 {
			t.Fatalf("%s is below the minimum digit count", p)
		}
	}
}

func TestPrimitiveRootKnownValues(t *testing.T) {
	// 23's primitive roots are {5, 7, 10, 11, 14, 15, 17, 19, 20, 21}.
	g, err := PrimitiveRoot(big.NewInt(23))
	if err != nil {
		t.Fatal(err)
	}
	roots := map[int64]bool{5: true, 7: true, 10: true, 11: true, 14: true, 15: true, 17: true, 19: true, 20: true, 21: true}
	if !roots[g.Int64()] {
		t.Fatalf("PrimitiveRoot(23) = %s, not a primitive root", g)
	}
}

func TestKeyAgreementSharedSecret(t *testing.T) {
	p, err := RandomPrime()
	if err != nil {
		t.Fatal(err)
	}
	g, err := PrimitiveRoot(p)
	if err != nil {
		t.Fatal(err)
	}

	xa, err := RandomScalar()
	if err != nil {
		t.Fatal(err)
	}
	xb, err := RandomScalar()
	if err != nil {
		t.Fatal(err)
	}

	a := NewEndpoint(p, g, xa)
	b := NewEndpoint(p, g, xb)

	pubA := a.PublicKey()
	pubB := b.PublicKey()

	kA := a.FullKey(pubB)
	kB := b.FullKey(pubA)

	if kA.Cmp(kB) != 0 {
		t.Fatalf("shared secrets differ: a=%s b=%s", kA, kB)
	}
}

func TestPrimitiveRootRejectsTooSmall(t *testing.T) {
	if _, err := PrimitiveRoot(big.NewInt(2)); err == nil {
		t.Fatal("expected error for p=2")
	}
}
