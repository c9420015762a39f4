package transport

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudmega/megasdk/cryptoprim"
)

// tokenCopies and tokenLen are fixed by MEGA's hashcash scheme (spec.md
// §4.4, §8 S5): the proof-of-work buffer is a 4-byte counter prefix
// followed by this many copies of the 48-byte decoded challenge token.
const (
	tokenCopies = 262144
	tokenLen    = 48
)

// ParseChallenge splits a hashcash challenge of the form
// "version:easiness:?:token" into its fields. The third field is an
// unused placeholder MEGA currently sends as "?"; it is ignored.
func ParseChallenge(challenge string) (version, easiness int, token []byte, err error) {
	parts := strings.SplitN(challenge, ":", 4)
	if len(parts) != 4 {
		return 0, 0, nil, fmt.Errorf("transport: malformed hashcash challenge %q", challenge)
	}
	version, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, nil, fmt.Errorf("transport: bad hashcash version %q: %w", parts[0], err)
	}
	e64, err := strconv.ParseInt(parts[1], 0, 64)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("transport: bad hashcash easiness %q: %w", parts[1], err)
	}
	easiness = int(e64)
	token, err = cryptoprim.Base64URLDecode(parts[3])
	if err != nil {
		return 0, 0, nil, fmt.Errorf("transport: bad hashcash token: %w", err)
	}
	if len(token) != tokenLen {
		return 0, 0, nil, fmt.Errorf("transport: hashcash token is %d bytes, want %d", len(token), tokenLen)
	}
	return version, easiness, token, nil
}

// hashcashThreshold implements spec.md §8 S5's formula:
// threshold = ((easiness & 63) << 1 | 1) << ((easiness >> 6) * 7 + 3).
func hashcashThreshold(easiness int) uint32 {
	base := uint32((easiness&63)<<1 | 1)
	shift := uint((easiness>>6)*7 + 3)
	return base << shift
}

// SolveHashcash mines a 4-byte prefix such that the big-endian uint32 of
// the first 4 bytes of SHA-256(prefix || token repeated tokenCopies times)
// is at most the challenge's threshold, incrementing the prefix as a
// little-endian counter (spec.md §4.4, §8 S5). It returns the winning
// prefix, not yet base64url-encoded.
func SolveHashcash(challenge string) ([]byte, error) {
	_, easiness, token, err := ParseChallenge(challenge)
	if err != nil {
		return nil, err
	}
	threshold := hashcashThreshold(easiness)

	buf := make([]byte, 4+tokenCopies*tokenLen)
	for i := 0; i < tokenCopies; i++ {
		copy(buf[4+i*tokenLen:], token)
	}

	prefix := make([]byte, 4)
	for {
		copy(buf[:4], prefix)
		sum := sha256.Sum256(buf)
		if binary.BigEndian.Uint32(sum[:4]) <= threshold {
			return append([]byte{}, prefix...), nil
		}
		incrementLE(prefix)
	}
}

// incrementLE increments a byte slice treated as a little-endian counter.
func incrementLE(b []byte) {
	for i := range b {
		b[i]++
		if b[i] != 0 {
			return
		}
	}
}

// BuildSolutionToken formats the resubmission value spec.md §4.4
// describes: "1:token:base64url(prefix)", reusing the original
// challenge's encoded token verbatim.
func BuildSolutionToken(challenge string, prefix []byte) string {
	parts := strings.SplitN(challenge, ":", 4)
	token := ""
	if len(parts) == 4 {
		token = parts[3]
	}
	return fmt.Sprintf("1:%s:%s", token, cryptoprim.Base64URLEncode(prefix))
}
