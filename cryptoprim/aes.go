package cryptoprim

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
)

// ECBEncryptBlock encrypts exactly one 16-byte block under key using raw
// AES-ECB. MEGA uses ECB only for fixed-size, single- or double-block
// payloads (node keys, share-key checks) — never for bulk data.
func ECBEncryptBlock(key, block []byte) ([]byte, error) {
	if len(block) != aes.BlockSize {
		return nil, fmt.Errorf("cryptoprim: ECB block must be %d bytes, got %d", aes.BlockSize, len(block))
	}
	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: ECB cipher: %w", err)
	}
	out := make([]byte, aes.BlockSize)
	c.Encrypt(out, block)
	return out, nil
}

// ECBDecryptBlock is the inverse of ECBEncryptBlock.
func ECBDecryptBlock(key, block []byte) ([]byte, error) {
	if len(block) != aes.BlockSize {
		return nil, fmt.Errorf("cryptoprim: ECB block must be %d bytes, got %d", aes.BlockSize, len(block))
	}
	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: ECB cipher: %w", err)
	}
	out := make([]byte, aes.BlockSize)
	c.Decrypt(out, block)
	return out, nil
}

// ECBEncryptRun encrypts data in place, block by block, under ECB. data
// must be a multiple of the AES block size.
func ECBEncryptRun(key, data []byte) ([]byte, error) {
	if len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("cryptoprim: ECB data not block aligned (%d bytes)", len(data))
	}
	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: ECB cipher: %w", err)
	}
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += aes.BlockSize {
		c.Encrypt(out[i:i+aes.BlockSize], data[i:i+aes.BlockSize])
	}
	return out, nil
}

// ECBDecryptRun is the inverse of ECBEncryptRun.
func ECBDecryptRun(key, data []byte) ([]byte, error) {
	if len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("cryptoprim: ECB data not block aligned (%d bytes)", len(data))
	}
	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: ECB cipher: %w", err)
	}
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += aes.BlockSize {
		c.Decrypt(out[i:i+aes.BlockSize], data[i:i+aes.BlockSize])
	}
	return out, nil
}

// CBCEncryptZeroIV encrypts zero-padded data under AES-CBC with an
// all-zero IV, as MEGA does for attribute blobs (spec.md §4.2).
func CBCEncryptZeroIV(key, data []byte) ([]byte, error) {
	return CBCEncrypt(key, make([]byte, aes.BlockSize), data)
}

// CBCDecryptZeroIV is the inverse of CBCEncryptZeroIV.
func CBCDecryptZeroIV(key, data []byte) ([]byte, error) {
	return CBCDecrypt(key, make([]byte, aes.BlockSize), data)
}

// CBCEncrypt encrypts data (which must already be block aligned) under
// AES-CBC with the given 16-byte IV.
func CBCEncrypt(key, iv, data []byte) ([]byte, error) {
	if len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("cryptoprim: CBC data not block aligned (%d bytes)", len(data))
	}
	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: CBC cipher: %w", err)
	}
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(c, iv).CryptBlocks(out, data)
	return out, nil
}

// CBCDecrypt is the inverse of CBCEncrypt.
func CBCDecrypt(key, iv, data []byte) ([]byte, error) {
	if len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("cryptoprim: CBC data not block aligned (%d bytes)", len(data))
	}
	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: CBC cipher: %w", err)
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(c, iv).CryptBlocks(out, data)
	return out, nil
}

// CTRCounterIV builds the 16-byte CTR IV for a chunk starting at byteOffset
// under the given 8-byte nonce: the high 8 bytes are the nonce, the low 8
// bytes are the big-endian block counter (byteOffset / 16), matching
// MEGA's convention of folding the chunk start into IV words 2 and 3.
func CTRCounterIV(nonce []byte, byteOffset int64) []byte {
	iv := make([]byte, 16)
	copy(iv[:8], nonce)
	binary.BigEndian.PutUint64(iv[8:], uint64(byteOffset)/16)
	return iv
}

// CTRXCrypt XORs data against the AES-CTR keystream starting at the given
// chunk offset. Encryption and decryption are the same operation.
func CTRXCrypt(key, nonce []byte, byteOffset int64, data []byte) ([]byte, error) {
	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: CTR cipher: %w", err)
	}
	iv := CTRCounterIV(nonce, byteOffset)
	stream := cipher.NewCTR(c, iv)
	out := make([]byte, len(data))
	stream.XORKeyStream(out, data)
	return out, nil
}

// PadZero pads data to a multiple of blockSize with zero bytes, returning
// a new slice (input is never mutated).
func PadZero(data []byte, blockSize int) []byte {
	rem := len(data) % blockSize
	if rem == 0 {
		out := make([]byte, len(data))
		copy(out, data)
		return out
	}
	out := make([]byte, len(data)+blockSize-rem)
	copy(out, data)
	return out
}
