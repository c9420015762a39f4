package keys_test

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/cloudmega/megasdk/cryptoprim"
	"github.com/cloudmega/megasdk/keys"
)

func encryptRawK(t *testing.T, id string, encKey, plainKey []byte) string {
	t.Helper()
	enc, err := cryptoprim.ECBEncryptRun(encKey, plainKey)
	if err != nil {
		t.Fatal(err)
	}
	return fmt.Sprintf("%s:%s", id, cryptoprim.Base64URLEncode(enc))
}

func TestResolveOwnKey(t *testing.T) {
	masterKey := bytes.Repeat([]byte{0x10}, 16)
	folderKey := bytes.Repeat([]byte{0xAB}, 16)

	rawK := encryptRawK(t, "u1", masterKey, folderKey)

	r := keys.NewResolver(masterKey, "u1")
	got, err := r.Resolve(rawK, true)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, folderKey) {
		t.Errorf("Resolve() = %x, want %x", got, folderKey)
	}
}

func TestResolveShareKey(t *testing.T) {
	masterKey := bytes.Repeat([]byte{0x10}, 16)
	shareKey := bytes.Repeat([]byte{0x22}, 16)
	fileKey := bytes.Repeat([]byte{0x33}, 32)

	rawK := encryptRawK(t, "SHAREROOT", shareKey, fileKey)

	r := keys.NewResolver(masterKey, "u1")
	r.AddShareKey("SHAREROOT", shareKey)

	got, err := r.Resolve(rawK, false)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, fileKey) {
		t.Errorf("Resolve() = %x, want %x", got, fileKey)
	}
}

// TestResolvePrefersOwnKeyOverShareKey is spec.md §8 invariant 8: when a
// node carries both an own-user pair and a share pair, and both would
// decrypt successfully, the own-user key wins because it is tried first.
func TestResolvePrefersOwnKeyOverShareKey(t *testing.T) {
	masterKey := bytes.Repeat([]byte{0x10}, 16)
	shareKey := bytes.Repeat([]byte{0x22}, 16)
	ownKey := bytes.Repeat([]byte{0x99}, 16)
	shareViewKey := bytes.Repeat([]byte{0x77}, 16)

	rawK := encryptRawK(t, "u1", masterKey, ownKey) + "/" + encryptRawK(t, "SHAREROOT", shareKey, shareViewKey)

	r := keys.NewResolver(masterKey, "u1")
	r.AddShareKey("SHAREROOT", shareKey)

	got, err := r.Resolve(rawK, true)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, ownKey) {
		t.Errorf("Resolve() = %x, want own key %x", got, ownKey)
	}
}

func TestResolveFailsWithNoKnownKey(t *testing.T) {
	masterKey := bytes.Repeat([]byte{0x10}, 16)
	otherKey := bytes.Repeat([]byte{0x99}, 16)
	rawK := encryptRawK(t, "someoneelse", otherKey, bytes.Repeat([]byte{0x01}, 16))

	r := keys.NewResolver(masterKey, "u1")
	if _, err := r.Resolve(rawK, true); err == nil {
		t.Error("expected an error when no pair is resolvable")
	}
}

func TestFileKeyParts(t *testing.T) {
	compkey := make([]byte, 32)
	for i := range compkey {
		compkey[i] = byte(i)
	}
	aesKey, nonce, metaMAC, err := keys.FileKeyParts(compkey)
	if err != nil {
		t.Fatal(err)
	}
	if len(aesKey) != 16 || len(nonce) != 8 || len(metaMAC) != 8 {
		t.Fatalf("unexpected lengths: aes=%d nonce=%d mac=%d", len(aesKey), len(nonce), len(metaMAC))
	}
	for i := 0; i < 16; i++ {
		want := compkey[i] ^ compkey[i+16]
		if aesKey[i] != want {
			t.Errorf("aesKey[%d] = %x, want %x", i, aesKey[i], want)
		}
	}
	if !bytes.Equal(nonce, compkey[16:24]) {
		t.Errorf("nonce = %x, want %x", nonce, compkey[16:24])
	}
	if !bytes.Equal(metaMAC, compkey[24:32]) {
		t.Errorf("metaMAC = %x, want %x", metaMAC, compkey[24:32])
	}
}
