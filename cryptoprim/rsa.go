package cryptoprim

import (
	"fmt"
	"math/big"
)

// MEGA encodes RSA integers as MPIs: a 2-byte big-endian bit-length
// prefix followed by ceil(bits/8) bytes of big-endian magnitude. This is
// the format both the private-key blob (q, p, d, u) and the public key
// (n, e) use on the wire.

// ReadMPI reads one MPI off the front of data, returning its value and the
// remaining bytes.
func ReadMPI(data []byte) (*big.Int, []byte, error) {
	if len(data) < 2 {
		return nil, nil, fmt.Errorf("cryptoprim: MPI header truncated")
	}
	bits := int(data[0])<<8 | int(data[1])
	nbytes := (bits + 7) / 8
	data = data[2:]
	if len(data) < nbytes {
		return nil, nil, fmt.Errorf("cryptoprim: MPI body truncated (want %d bytes, have %d)", nbytes, len(data))
	}
	v := new(big.Int).SetBytes(data[:nbytes])
	return v, data[nbytes:], nil
}

// PrivateKey holds the CRT components MEGA stores for a user's RSA-2048
// keypair, decrypted from the account's privk blob (spec.md §4.9).
type PrivateKey struct {
	Q *big.Int // first prime
	P *big.Int // second prime
	D *big.Int // private exponent
	U *big.Int // q^-1 mod p, unused by plain modexp but kept for completeness
	N *big.Int // modulus, derived as P*Q
}

// ParsePrivateKey parses the q, p, d, u MPI sequence MEGA's privk blob
// contains, in that order.
func ParsePrivateKey(raw []byte) (*PrivateKey, error) {
	q, rest, err := ReadMPI(raw)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: privk q: %w", err)
	}
	p, rest, err := ReadMPI(rest)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: privk p: %w", err)
	}
	d, rest, err := ReadMPI(rest)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: privk d: %w", err)
	}
	u, _, err := ReadMPI(rest)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: privk u: %w", err)
	}
	n := new(big.Int).Mul(p, q)
	return &PrivateKey{Q: q, P: p, D: d, U: u, N: n}, nil
}

// PublicKey holds the modulus/exponent pair other nodes use to wrap
// share invitations (not otherwise exercised by this client, which only
// ever decrypts).
type PublicKey struct {
	N *big.Int
	E *big.Int
}

// ParsePublicKey parses the n, e MPI pair MEGA's pubk blob contains.
func ParsePublicKey(raw []byte) (*PublicKey, error) {
	n, rest, err := ReadMPI(raw)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: pubk n: %w", err)
	}
	e, _, err := ReadMPI(rest)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: pubk e: %w", err)
	}
	return &PublicKey{N: n, E: e}, nil
}

// Decrypt performs raw RSA modular exponentiation: m = c^d mod n. MEGA's
// session-challenge ciphertext is not OAEP/PKCS1-padded, so crypto/rsa's
// padding-aware Decrypt does not apply; we go straight to math/big.
func (k *PrivateKey) Decrypt(ciphertext []byte) []byte {
	c := new(big.Int).SetBytes(ciphertext)
	m := new(big.Int).Exp(c, k.D, k.N)
	out := m.Bytes()

	// left-pad to the modulus byte length so callers can slice fixed
	// offsets out of the plaintext (MEGA's session-id extraction does).
	size := (k.N.BitLen() + 7) / 8
	if len(out) == size {
		return out
	}
	padded := make([]byte, size)
	copy(padded[size-len(out):], out)
	return padded
}
