package upload

import (
	"crypto/rand"
	"fmt"

	"github.com/cloudmega/megasdk/cryptoprim"
)

// keyMaterial is the per-upload AES key and CTR nonce generated fresh for
// every file (spec.md §4.6: "upload_key_material = key[0..16] ||
// nonce[0..8], random").
type keyMaterial struct {
	AESKey []byte // 16 bytes
	Nonce  []byte // 8 bytes
}

func newKeyMaterial() (keyMaterial, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return keyMaterial{}, fmt.Errorf("upload: generate key material: %w", err)
	}
	return keyMaterial{AESKey: buf[:16], Nonce: buf[16:24]}, nil
}

// macIV is the CBC-MAC seed for every chunk of one upload: nonce||nonce
// (spec.md §3 ChunkMAC).
func macIV(nonce []byte) []byte {
	return append(append([]byte{}, nonce...), nonce...)
}

// wrapNodeKey assembles the stored "k" field. The first 16 bytes are not
// the raw AES key: they are AES key XOR (nonce||metaMAC), so that
// keys.FileKeyParts's XOR-fold of the two halves recovers the raw AES key
// on the other end (spec.md §3 FileKey, invariant 3). The full 32-byte
// compkey is then AES-ECB wrapped under the account master key (spec.md
// §4.6 finalization step 2).
func wrapNodeKey(masterKey []byte, km keyMaterial, metaMAC []byte) (string, error) {
	second := make([]byte, 0, 16)
	second = append(second, km.Nonce...)
	second = append(second, metaMAC...)

	first := make([]byte, 16)
	for i := range first {
		first[i] = km.AESKey[i] ^ second[i]
	}

	compkey := make([]byte, 0, 32)
	compkey = append(compkey, first...)
	compkey = append(compkey, second...)

	wrapped, err := cryptoprim.ECBEncryptRun(masterKey, compkey)
	if err != nil {
		return "", fmt.Errorf("upload: wrap node key: %w", err)
	}
	return cryptoprim.Base64URLEncode(wrapped), nil
}
