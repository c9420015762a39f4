// Package cryptoprim implements the block-oriented cryptographic
// primitives MEGA's protocol requires: AES in ECB/CBC/CTR mode, CBC-MAC
// accumulation, raw RSA-2048 decryption, XXTEA (Corrected Block TEA), and
// the base64url encoding MEGA uses on the wire. It performs no I/O.
package cryptoprim
