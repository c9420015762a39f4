package keys

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudmega/megasdk/cryptoprim"
)

// ShareKeyEntry is one row of MEGA's share-key list, in either the
// legacy "ok" or streaming "ok0" encoding.
type ShareKeyEntry struct {
	Handle string `json:"h"`
	Auth   string `json:"ha"`
	Key    string `json:"k"`
}

// isPlaceholder reports whether s is a run of the letter 'A' of the
// given length — MEGA's marker for "no key material here" (spec.md
// §4.3).
func isPlaceholder(s string, length int) bool {
	if len(s) != length {
		return false
	}
	for _, c := range s {
		if c != 'A' {
			return false
		}
	}
	return true
}

// parseOk0 accepts either encoding MEGA has used for ok0: a JSON array
// of ShareKeyEntry, or a JSON object keyed by handle.
func parseOk0(raw json.RawMessage) ([]ShareKeyEntry, error) {
	var list []ShareKeyEntry
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var byHandle map[string]ShareKeyEntry
	if err := json.Unmarshal(raw, &byHandle); err != nil {
		return nil, fmt.Errorf("keys: ok0 is neither a list nor an object: %w", err)
	}
	list = make([]ShareKeyEntry, 0, len(byHandle))
	for h, entry := range byHandle {
		if entry.Handle == "" {
			entry.Handle = h
		}
		list = append(list, entry)
	}
	return list, nil
}

// Intake authenticates and registers the share keys carried by an
// account-tree response's "ok"/"ok0" fields onto r. If ok0 is present
// (non-empty, non-null), it wins outright and ok is ignored entirely —
// spec.md §4.3's rule, exercised by S4. Either field may be omitted
// (pass nil).
func (r *Resolver) Intake(ok []ShareKeyEntry, ok0 json.RawMessage) error {
	entries := ok
	if len(ok0) > 0 && string(ok0) != "null" {
		parsed, err := parseOk0(ok0)
		if err != nil {
			return err
		}
		entries = parsed
	}

	for _, e := range entries {
		if e.Handle == "" || isPlaceholder(e.Auth, 22) || isPlaceholder(e.Key, 16) {
			continue
		}

		ha, err := cryptoprim.Base64URLDecode(e.Auth)
		if err != nil {
			continue
		}
		k, err := cryptoprim.Base64URLDecode(e.Key)
		if err != nil {
			continue
		}
		if len(k) != 16 {
			continue
		}

		h := padHandle(e.Handle)
		wantAuth, err := cryptoprim.ECBEncryptBlock(r.masterKey, append([]byte(h), []byte(h)...))
		if err != nil {
			continue
		}
		if !cryptoprim.ConstantTimeEqual(wantAuth, ha) {
			continue
		}

		shareKey, err := cryptoprim.ECBDecryptBlock(r.masterKey, k)
		if err != nil {
			continue
		}
		r.AddShareKey(e.Handle, shareKey)
	}
	return nil
}

// padHandle truncates/pads a handle to exactly 8 bytes so h||h forms a
// 16-byte ECB block, as spec.md invariant 6 requires.
func padHandle(h string) string {
	if len(h) >= 8 {
		return h[:8]
	}
	return h + strings.Repeat("\x00", 8-len(h))
}
