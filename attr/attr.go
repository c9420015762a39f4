// Package attr packs and unpacks MEGA's encrypted node attribute blobs
// (the generic "MEGA{...}" JSON envelope) and its media attributes 8/9.
package attr

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cloudmega/megasdk/cryptoprim"
)

// marker is the literal 4-byte prefix every decrypted attribute blob must
// begin with (spec.md invariant 5).
const marker = "MEGA"

// Attrs is the decrypted attribute map for a node. It preserves unknown
// fields verbatim so re-encryption (e.g. during folder import) does not
// drop data a caller didn't ask to change (spec.md §9 open question).
type Attrs map[string]any

// Name returns the mandatory "n" field.
func (a Attrs) Name() string {
	if v, ok := a["n"].(string); ok {
		return v
	}
	return ""
}

// SetName sets the mandatory "n" field.
func (a Attrs) SetName(name string) { a["n"] = name }

// MTime returns the "t" field (seconds since epoch) if present.
func (a Attrs) MTime() (uint64, bool) {
	v, ok := numericField(a["t"])
	return uint64(v), ok
}

// SetMTime sets the "t" field.
func (a Attrs) SetMTime(seconds uint64) { a["t"] = seconds }

// Label returns the "lbl" field (0-7) if present.
func (a Attrs) Label() (int, bool) {
	v, ok := numericField(a["lbl"])
	return int(v), ok
}

// Favorite reports the "fav" field (0/1) as a bool.
func (a Attrs) Favorite() bool {
	v, _ := numericField(a["fav"])
	return v != 0
}

// Fingerprint returns the "c" field if present.
func (a Attrs) Fingerprint() (string, bool) {
	v, ok := a["c"].(string)
	return v, ok
}

// SetFingerprint sets the "c" field.
func (a Attrs) SetFingerprint(fp string) { a["c"] = fp }

// Extra returns the nested "e" custom sub-map, if present.
func (a Attrs) Extra() map[string]any {
	if v, ok := a["e"].(map[string]any); ok {
		return v
	}
	return nil
}

func numericField(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Clone returns a shallow copy of a, used so re-encryption never mutates
// the caller's map of unknown fields in place.
func (a Attrs) Clone() Attrs {
	out := make(Attrs, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// New returns an Attrs with only the mandatory name field set.
func New(name string) Attrs {
	return Attrs{"n": name}
}

// Encode serializes attrs to compact JSON, prefixes the MEGA marker,
// zero-pads to a 16-byte boundary, AES-CBC-encrypts under key (the
// node's AES key — the first 16 bytes of a file's 32-byte key, or the
// full 16-byte folder key) with an all-zero IV, and base64url-encodes
// the result (spec.md §4.2).
func Encode(key []byte, attrs Attrs) (string, error) {
	body, err := json.Marshal(attrs)
	if err != nil {
		return "", fmt.Errorf("attr: marshal: %w", err)
	}

	plaintext := append([]byte(marker), body...)
	padded := cryptoprim.PadZero(plaintext, 16)

	ciphertext, err := cryptoprim.CBCEncryptZeroIV(key, padded)
	if err != nil {
		return "", fmt.Errorf("attr: encrypt: %w", err)
	}
	return cryptoprim.Base64URLEncode(ciphertext), nil
}

// Decode reverses Encode: base64url-decode, AES-CBC-decrypt, strip
// trailing zero padding, require the MEGA marker, and parse the
// remaining JSON object. The "n" field is mandatory; its absence is a
// protocol error rather than a crypto error, since the blob did decrypt
// successfully.
func Decode(key []byte, blob string) (Attrs, error) {
	ciphertext, err := cryptoprim.Base64URLDecode(blob)
	if err != nil {
		return nil, fmt.Errorf("attr: base64url decode: %w", err)
	}
	if len(ciphertext)%16 != 0 {
		return nil, fmt.Errorf("attr: ciphertext not block aligned (%d bytes)", len(ciphertext))
	}

	plaintext, err := cryptoprim.CBCDecryptZeroIV(key, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("attr: decrypt: %w", err)
	}

	trimmed := bytes.TrimRight(plaintext, "\x00")
	if !bytes.HasPrefix(trimmed, []byte(marker)) {
		return nil, fmt.Errorf("attr: missing %q marker", marker)
	}
	body := trimmed[len(marker):]

	var attrs Attrs
	if err := json.Unmarshal(body, &attrs); err != nil {
		return nil, fmt.Errorf("attr: unmarshal: %w", err)
	}
	if _, ok := attrs["n"]; !ok {
		return nil, fmt.Errorf("attr: missing mandatory %q field", "n")
	}
	return attrs, nil
}
