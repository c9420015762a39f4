package attr

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/cloudmega/megasdk/cryptoprim"
)

// fingerprintSegments is the number of CRC32 windows folded into a
// fingerprint, spread evenly across the file.
const fingerprintSegments = 4

// fingerprintSegmentSize is the number of bytes read per window.
const fingerprintSegmentSize = 4096

// ComputeFingerprint builds the "c" attribute (spec.md glossary:
// "CRC32 segments of file content concatenated with serialized mtime").
// It samples fingerprintSegments windows spread evenly across the file
// (a single window covering the whole file if the file fits in one
// window), CRC32s each,
// and appends the modification time as a 4-byte little-endian unix
// timestamp, base64url-encoding the result. This is not a byte-for-byte
// reproduction of MEGA's own fingerprint algorithm — see DESIGN.md.
func ComputeFingerprint(r io.ReaderAt, size int64, mtimeUnix int64) (string, error) {
	out := make([]byte, 0, fingerprintSegments*4+4)
	buf := make([]byte, fingerprintSegmentSize)

	for i := 0; i < fingerprintSegments; i++ {
		var offset int64
		if size > fingerprintSegmentSize {
			offset = int64(i) * (size - fingerprintSegmentSize) / int64(fingerprintSegments-1)
		}
		n, err := r.ReadAt(buf, offset)
		if n == 0 && err != nil && err != io.EOF {
			return "", err
		}
		checksum := crc32.ChecksumIEEE(buf[:n])
		var word [4]byte
		binary.BigEndian.PutUint32(word[:], checksum)
		out = append(out, word[:]...)
		if size <= fingerprintSegmentSize {
			break
		}
	}

	var mtimeBytes [4]byte
	binary.LittleEndian.PutUint32(mtimeBytes[:], uint32(mtimeUnix))
	out = append(out, mtimeBytes[:]...)

	return cryptoprim.Base64URLEncode(out), nil
}
