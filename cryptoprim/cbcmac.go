package cryptoprim

import "crypto/aes"

// CBCMAC computes MEGA's chunk MAC: state = AES_ECB(state XOR block) for
// every 16-byte block of plaintext (zero-padded to a block boundary),
// seeded by the given 16-byte IV. For a file chunk the IV is
// nonce||nonce (spec.md §4.1).
func CBCMAC(key, iv, plaintext []byte) ([]byte, error) {
	state := make([]byte, aes.BlockSize)
	copy(state, iv)

	padded := PadZero(plaintext, aes.BlockSize)
	block := make([]byte, aes.BlockSize)
	for i := 0; i < len(padded); i += aes.BlockSize {
		xorInto(block, state, padded[i:i+aes.BlockSize])
		next, err := ECBEncryptBlock(key, block)
		if err != nil {
			return nil, err
		}
		state = next
	}
	return state, nil
}

// MetaMACFold iteratively folds a sequence of 16-byte chunk MACs into the
// 16-byte intermediate MAC (state = AES_ECB(key, state XOR chunk_mac_i)),
// then folds halves into the 8-byte meta-MAC (spec.md §3 MetaMAC, S3).
func MetaMACFold(key []byte, chunkMACs [][]byte) ([]byte, error) {
	state := make([]byte, aes.BlockSize)
	for _, mac := range chunkMACs {
		block := make([]byte, aes.BlockSize)
		xorInto(block, state, mac)
		next, err := ECBEncryptBlock(key, block)
		if err != nil {
			return nil, err
		}
		state = next
	}
	return FoldHalves(state), nil
}

// FoldHalves XORs a 16-byte value's four 4-byte words pairwise down to 8
// bytes: out[0:4] = v[0:4]^v[4:8], out[4:8] = v[8:12]^v[12:16].
func FoldHalves(v []byte) []byte {
	out := make([]byte, 8)
	for i := 0; i < 4; i++ {
		out[i] = v[i] ^ v[i+4]
		out[i+4] = v[i+8] ^ v[i+12]
	}
	return out
}

func xorInto(dst, a, b []byte) {
	for i := range dst {
		dst[i] = a[i] ^ b[i]
	}
}
