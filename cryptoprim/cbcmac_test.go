package cryptoprim_test

import (
	"bytes"
	"testing"

	"github.com/cloudmega/megasdk/cryptoprim"
)

// TestMetaMACFold reproduces spec.md §8 scenario S3: a 2-chunk file with
// chunk_mac_0 all zero and chunk_mac_1 a fixed pattern, under a known key.
func TestMetaMACFold(t *testing.T) {
	key := make([]byte, 16)
	for i := range key {
		key[i] = byte(i)
	}
	chunkMAC0 := make([]byte, 16)
	chunkMAC1 := []byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x99, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, 0x00}

	got, err := cryptoprim.MetaMACFold(key, [][]byte{chunkMAC0, chunkMAC1})
	if err != nil {
		t.Fatal(err)
	}

	// Reproduce the fold by hand for cross-check.
	zero := make([]byte, 16)
	m, err := cryptoprim.ECBEncryptBlock(key, zero)
	if err != nil {
		t.Fatal(err)
	}
	xored := make([]byte, 16)
	for i := range xored {
		xored[i] = m[i] ^ chunkMAC1[i]
	}
	m2, err := cryptoprim.ECBEncryptBlock(key, xored)
	if err != nil {
		t.Fatal(err)
	}
	want := cryptoprim.FoldHalves(m2)

	if !bytes.Equal(got, want) {
		t.Errorf("MetaMACFold = %x, want %x", got, want)
	}
	if len(got) != 8 {
		t.Errorf("MetaMACFold length = %d, want 8", len(got))
	}
}

func TestCBCMACSeededByNonceNonce(t *testing.T) {
	key := bytes.Repeat([]byte{0x09}, 16)
	nonce := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	iv := append(append([]byte{}, nonce...), nonce...)

	mac, err := cryptoprim.CBCMAC(key, iv, bytes.Repeat([]byte{0x5A}, 40))
	if err != nil {
		t.Fatal(err)
	}
	if len(mac) != 16 {
		t.Errorf("CBCMAC length = %d, want 16", len(mac))
	}
}

func TestFoldHalves(t *testing.T) {
	v := []byte{0, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0, 4}
	got := cryptoprim.FoldHalves(v)
	want := []byte{0, 0, 0, 3, 0, 0, 0, 7}
	if !bytes.Equal(got, want) {
		t.Errorf("FoldHalves = %x, want %x", got, want)
	}
}
