// Package keys resolves a node's encrypted "k" field into its decrypted
// symmetric key by trying the account's master key, then any known share
// keys, in order (spec.md §4.3).
package keys

import (
	"fmt"
	"strings"

	"github.com/cloudmega/megasdk/cryptoprim"
)

// Resolver holds the keys a session knows about: the account's own
// master key and any share keys intake has produced (see sharekeys.go).
type Resolver struct {
	masterKey []byte
	userID    string
	shareKeys map[string][]byte
}

// NewResolver creates a Resolver for the given master key and user id.
// Share keys are added afterwards via AddShareKey/Intake.
func NewResolver(masterKey []byte, userID string) *Resolver {
	return &Resolver{
		masterKey: masterKey,
		userID:    userID,
		shareKeys: make(map[string][]byte),
	}
}

// AddShareKey registers a decrypted 16-byte share key for a share root
// handle.
func (r *Resolver) AddShareKey(handle string, key []byte) {
	r.shareKeys[handle] = key
}

// ShareKey returns the share key known for handle, if any.
func (r *Resolver) ShareKey(handle string) ([]byte, bool) {
	k, ok := r.shareKeys[handle]
	return k, ok
}

// blockSize is the number of bytes a resolved key occupies before the
// file/folder XOR-fold: 16 for folders, 32 for files.
func blockSize(isFolder bool) int {
	if isFolder {
		return 16
	}
	return 32
}

// Resolve decrypts rawK — MEGA's "id1:enc_k1[/id2:enc_k2...]" encoding —
// trying each pair in order: the account's own pair (matched by user id)
// decrypts under the master key, a share pair (matched against a known
// share handle) decrypts under that share key. The first pair that
// decrypts successfully wins; a node is never attached to the tree under
// an unauthenticated guess (spec.md §4.3, invariant 2).
func (r *Resolver) Resolve(rawK string, isFolder bool) ([]byte, error) {
	if rawK == "" {
		return nil, fmt.Errorf("keys: empty k field")
	}

	want := blockSize(isFolder)
	var lastErr error

	for _, pair := range strings.Split(rawK, "/") {
		id, encB64, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}

		var decryptKey []byte
		switch {
		case id == r.userID:
			decryptKey = r.masterKey
		default:
			if sk, ok := r.shareKeys[id]; ok {
				decryptKey = sk
			} else {
				continue
			}
		}

		enc, err := cryptoprim.Base64URLDecode(encB64)
		if err != nil {
			lastErr = err
			continue
		}
		if len(enc) != want {
			lastErr = fmt.Errorf("keys: decrypted key wrong length: got %d, want %d", len(enc), want)
			continue
		}

		dec, err := cryptoprim.ECBDecryptRun(decryptKey, enc)
		if err != nil {
			lastErr = err
			continue
		}
		return dec, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("keys: no pair in %q decrypted: %w", rawK, lastErr)
	}
	return nil, fmt.Errorf("keys: no known key pair in %q", rawK)
}

// FileKeyParts splits a resolved 32-byte file compkey into the AES key
// (XOR of the two 16-byte halves), the 8-byte CTR nonce, and the 8-byte
// stored meta-MAC (spec.md §3 FileKey, invariant 3).
func FileKeyParts(compkey []byte) (aesKey, nonce, metaMAC []byte, err error) {
	if len(compkey) != 32 {
		return nil, nil, nil, fmt.Errorf("keys: file compkey must be 32 bytes, got %d", len(compkey))
	}
	aesKey = make([]byte, 16)
	for i := 0; i < 16; i++ {
		aesKey[i] = compkey[i] ^ compkey[i+16]
	}
	nonce = append([]byte{}, compkey[16:24]...)
	metaMAC = append([]byte{}, compkey[24:32]...)
	return aesKey, nonce, metaMAC, nil
}
