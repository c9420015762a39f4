package cryptoprim

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
)

// mega uses the URL-safe base64 alphabet with padding stripped.
var b64url = base64.RawURLEncoding

// Base64URLEncode encodes data the way MEGA's wire protocol expects: no
// padding, '-'/'_' in place of '+'/'/'.
func Base64URLEncode(data []byte) string {
	return b64url.EncodeToString(data)
}

// Base64URLDecode decodes a MEGA-style base64url string. It tolerates a
// missing final padding-equivalent length by relying on RawURLEncoding,
// which never expects padding.
func Base64URLDecode(s string) ([]byte, error) {
	return b64url.DecodeString(s)
}

// ConstantTimeEqual reports whether a and b are equal using a
// constant-time comparison, as required when checking share-key auth
// hashes (spec.md §4.3, invariant 6).
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// BytesToA32 reinterprets a byte slice as big-endian uint32 words, the
// representation MEGA's node-key arithmetic (XOR-folding compkey into
// key/nonce/mac) is defined over.
func BytesToA32(b []byte) []uint32 {
	out := make([]uint32, len(b)/4)
	for i := range out {
		out[i] = binary.BigEndian.Uint32(b[i*4 : i*4+4])
	}
	return out
}

// A32ToBytes is the inverse of BytesToA32.
func A32ToBytes(a []uint32) []byte {
	out := make([]byte, len(a)*4)
	for i, w := range a {
		binary.BigEndian.PutUint32(out[i*4:i*4+4], w)
	}
	return out
}
