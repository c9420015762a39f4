package cryptoprim_test

import (
	"bytes"
	gorsa "crypto/rsa"
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/cloudmega/megasdk/cryptoprim"
)

func mpiEncode(v *big.Int) []byte {
	bits := v.BitLen()
	out := make([]byte, 2)
	out[0] = byte(bits >> 8)
	out[1] = byte(bits)
	return append(out, v.Bytes()...)
}

func TestRSADecryptRoundTrip(t *testing.T) {
	// Generate a real (small, test-only) RSA key and re-encode it in
	// MEGA's q/p/d/u MPI sequence so ParsePrivateKey exercises the real
	// wire format.
	key, err := gorsa.GenerateKey(rand.Reader, 512)
	if err != nil {
		t.Fatal(err)
	}
	key.Precompute()

	p := key.Primes[0]
	q := key.Primes[1]
	d := key.D
	u := new(big.Int).ModInverse(q, p)
	if u == nil {
		t.Fatal("no modular inverse for test key")
	}

	raw := append(append(append(mpiEncode(q), mpiEncode(p)...), mpiEncode(d)...), mpiEncode(u)...)

	priv, err := cryptoprim.ParsePrivateKey(raw)
	if err != nil {
		t.Fatal(err)
	}
	if priv.N.Cmp(key.N) != 0 {
		t.Fatalf("parsed modulus mismatch: got %x want %x", priv.N, key.N)
	}

	plaintext := []byte("mega session challenge bytes....")
	m := new(big.Int).SetBytes(plaintext)
	c := new(big.Int).Exp(m, big.NewInt(int64(key.E)), key.N)

	size := (priv.N.BitLen() + 7) / 8
	cbuf := make([]byte, size)
	cb := c.Bytes()
	copy(cbuf[size-len(cb):], cb)

	got := priv.Decrypt(cbuf)
	// strip the left padding this decrypt run introduced versus the
	// original unpadded plaintext length.
	got = got[len(got)-len(plaintext):]
	if !bytes.Equal(got, plaintext) {
		t.Errorf("RSA round trip = %x, want %x", got, plaintext)
	}
}

func TestParsePublicKey(t *testing.T) {
	n := big.NewInt(3233)
	e := big.NewInt(17)
	raw := append(mpiEncode(n), mpiEncode(e)...)

	pub, err := cryptoprim.ParsePublicKey(raw)
	if err != nil {
		t.Fatal(err)
	}
	if pub.N.Cmp(n) != 0 || pub.E.Cmp(e) != 0 {
		t.Errorf("ParsePublicKey = (%v, %v), want (%v, %v)", pub.N, pub.E, n, e)
	}
}
