package cryptoprim

import (
	"crypto/sha512"

	"golang.org/x/crypto/pbkdf2"
)

// V1PasswordKey derives the legacy (account-version 1) password key by
// chaining AES-ECB over the UTF-8 password bytes for 0x10000 rounds,
// seeded from MEGA's fixed IV. spec.md §4.9 leaves the v1 path
// unspecified beyond "AES-based derivation over password bytes"; this is
// the algorithm every long-lived open MEGA client (go-mega included)
// implements — see DESIGN.md for the decision record.
func V1PasswordKey(password string) []byte {
	pkey := []byte{0x93, 0xC4, 0x67, 0xE3, 0x7D, 0xB0, 0xC7, 0xA4, 0xD1, 0xBE, 0x3F, 0x81, 0x01, 0x52, 0xCB, 0x56}
	pw := PadZero([]byte(password), 4)

	for round := 0; round < 0x10000; round++ {
		for i := 0; i < len(pw); i += 16 {
			end := i + 16
			if end > len(pw) {
				end = len(pw)
			}
			block := make([]byte, 16)
			copy(block, pw[i:end])
			next, err := ECBEncryptBlock(block, pkey)
			if err != nil {
				// block (used as the AES key here) and pkey (the block being
				// encrypted) are both always 16 bytes, so this cannot fail.
				panic(err)
			}
			pkey = next
		}
	}
	return pkey
}

// V1LoginHash derives the "user handle" MEGA expects alongside the email
// on a v1 "us" login request: the email is folded into four 32-bit words,
// then run through 0x4000 rounds of AES-ECB under the password key, and
// the first and third resulting words form the 8-byte hash.
func V1LoginHash(email string, passKey []byte) ([]byte, error) {
	s32 := BytesToA32(PadZero([]byte(email), 4))
	h32 := make([]uint32, 4)
	for i, w := range s32 {
		h32[i%4] ^= w
	}

	state := A32ToBytes(h32)
	for round := 0; round < 0x4000; round++ {
		next, err := ECBEncryptBlock(passKey, state)
		if err != nil {
			return nil, err
		}
		state = next
	}

	words := BytesToA32(state)
	return A32ToBytes([]uint32{words[0], words[2]}), nil
}

// V2Derive runs PBKDF2-HMAC-SHA512 over the password using the salt
// "us0" returns for a version-2 account, producing a 32-byte key split
// into a 16-byte master key and a 16-byte authentication key (the latter
// is base64url-encoded and sent as the login hash).
func V2Derive(password string, salt []byte) (masterKey, authKey []byte) {
	derived := pbkdf2.Key([]byte(password), salt, 100000, 32, sha512.New)
	return derived[:16], derived[16:]
}
