package attr

import (
	"fmt"
	"strings"

	"github.com/cloudmega/megasdk"
	"github.com/cloudmega/megasdk/cryptoprim"
)

// Media attributes 8 (dimensions/fps/playtime/shortformat) and 9
// (container/codec ids, only meaningful when shortformat==0) are each an
// 8-byte payload, XXTEA-encrypted under a key derived from the file key,
// and stored prefixed by "8*"/"9*" (spec.md §4.2).
const (
	attr8Prefix = "8*"
	attr9Prefix = "9*"
)

// xxteaKeyFromFileKey implements spec.md §4.2's "critical endianness
// rule": the 32-byte file key is read as eight big-endian uint32 words,
// and the XXTEA key is the last four of them.
func xxteaKeyFromFileKey(fileKey []byte) ([4]uint32, error) {
	if len(fileKey) != 32 {
		return [4]uint32{}, fmt.Errorf("attr: media attr key needs a 32-byte file key, got %d", len(fileKey))
	}
	words := cryptoprim.BytesToA32(fileKey)
	return [4]uint32{words[4], words[5], words[6], words[7]}, nil
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// encodeField implements the width/height/fps/playtime escape encoding:
// shift the value left by one bit if it fits in bits-1 bits; otherwise
// subtract the field's limit, reduce (halve, or divide by 60 for
// playtime), clamp, and set the escape bit.
func encodeField(v uint64, bits uint, divBy60 bool) uint64 {
	limit := uint64(1) << (bits - 1)
	if v < limit {
		return v << 1
	}
	reduced := v - limit
	if divBy60 {
		reduced /= 60
	} else {
		reduced >>= 1
	}
	if reduced >= limit {
		reduced = limit - 1
	}
	return (reduced << 1) | 1
}

// decodeField is the inverse of encodeField. The escaped path is lossy
// by construction (MEGA trades precision for range above the field's
// native limit), so round-tripping a value that required escaping on
// encode does not reproduce the exact original.
func decodeField(encoded uint64, bits uint, divBy60 bool) uint64 {
	limit := uint64(1) << (bits - 1)
	v := encoded >> 1
	if encoded&1 == 0 {
		return v
	}
	if divBy60 {
		return v*60 + limit
	}
	return (v << 1) + limit
}

// EncodeMediaAttr8 packs width/height/fps/playtime/shortformat into the
// 8-byte attr-8 payload and returns it XXTEA-encrypted and prefixed,
// ready to be joined into a node's "fa" string.
func EncodeMediaAttr8(fileKey []byte, info mega.MediaInfo) (string, error) {
	key, err := xxteaKeyFromFileKey(fileKey)
	if err != nil {
		return "", err
	}

	wf := encodeField(uint64(info.Width), 15, false)
	hf := encodeField(uint64(info.Height), 15, false)
	ff := encodeField(uint64(info.FPS), 8, false)
	pf := encodeField(uint64(info.PlaytimeSec), 18, true)
	sf := uint64(info.ShortFormat) & 0xFF

	val := wf | hf<<15 | ff<<30 | pf<<38 | sf<<56

	payload := make([]byte, 8)
	putLE32(payload[:4], uint32(val))
	putLE32(payload[4:], uint32(val>>32))

	words := []uint32{le32(payload[:4]), le32(payload[4:])}
	cryptoprim.XXTEAEncrypt(words, key)

	enc := make([]byte, 8)
	putLE32(enc[:4], words[0])
	putLE32(enc[4:], words[1])

	return attr8Prefix + cryptoprim.Base64URLEncode(enc), nil
}

// DecodeMediaAttr8 reverses EncodeMediaAttr8.
func DecodeMediaAttr8(fileKey []byte, s string) (mega.MediaInfo, error) {
	body, ok := strings.CutPrefix(s, attr8Prefix)
	if !ok {
		return mega.MediaInfo{}, fmt.Errorf("attr: media attr 8 missing %q prefix", attr8Prefix)
	}
	key, err := xxteaKeyFromFileKey(fileKey)
	if err != nil {
		return mega.MediaInfo{}, err
	}

	enc, err := cryptoprim.Base64URLDecode(body)
	if err != nil {
		return mega.MediaInfo{}, fmt.Errorf("attr: media attr 8 base64url: %w", err)
	}
	if len(enc) != 8 {
		return mega.MediaInfo{}, fmt.Errorf("attr: media attr 8 payload must be 8 bytes, got %d", len(enc))
	}

	words := []uint32{le32(enc[:4]), le32(enc[4:])}
	cryptoprim.XXTEADecrypt(words, key)

	payload := make([]byte, 8)
	putLE32(payload[:4], words[0])
	putLE32(payload[4:], words[1])
	val := uint64(le32(payload[:4])) | uint64(le32(payload[4:]))<<32

	info := mega.MediaInfo{
		Width:       int(decodeField(val&0x7FFF, 15, false)),
		Height:      int(decodeField((val>>15)&0x7FFF, 15, false)),
		FPS:         int(decodeField((val>>30)&0xFF, 8, false)),
		PlaytimeSec: int(decodeField((val>>38)&0x3FFFF, 18, true)),
		ShortFormat: int((val >> 56) & 0xFF),
	}
	return info, nil
}

// EncodeMediaAttr9 packs a container/video-codec/audio-codec id triple
// into the 8-byte attr-9 payload. Per spec.md §4.2, attr 9 is only
// meaningful when attr 8's shortformat is 0.
func EncodeMediaAttr9(fileKey []byte, containerID, videoCodecID, audioCodecID int) (string, error) {
	key, err := xxteaKeyFromFileKey(fileKey)
	if err != nil {
		return "", err
	}

	val := uint32(containerID&0xFF) | uint32(videoCodecID&0xFFF)<<8 | uint32(audioCodecID&0xFFF)<<20

	words := []uint32{val, 0}
	cryptoprim.XXTEAEncrypt(words, key)

	enc := make([]byte, 8)
	putLE32(enc[:4], words[0])
	putLE32(enc[4:], words[1])

	return attr9Prefix + cryptoprim.Base64URLEncode(enc), nil
}

// DecodeMediaAttr9 reverses EncodeMediaAttr9 and resolves the ids to the
// container/codec name tables in the root package.
func DecodeMediaAttr9(fileKey []byte, s string) (container, videoCodec, audioCodec string, err error) {
	body, ok := strings.CutPrefix(s, attr9Prefix)
	if !ok {
		return "", "", "", fmt.Errorf("attr: media attr 9 missing %q prefix", attr9Prefix)
	}
	key, kerr := xxteaKeyFromFileKey(fileKey)
	if kerr != nil {
		return "", "", "", kerr
	}

	enc, derr := cryptoprim.Base64URLDecode(body)
	if derr != nil {
		return "", "", "", fmt.Errorf("attr: media attr 9 base64url: %w", derr)
	}
	if len(enc) != 8 {
		return "", "", "", fmt.Errorf("attr: media attr 9 payload must be 8 bytes, got %d", len(enc))
	}

	words := []uint32{le32(enc[:4]), le32(enc[4:])}
	cryptoprim.XXTEADecrypt(words, key)

	val := words[0]
	containerID := int(val & 0xFF)
	videoCodecID := int((val >> 8) & 0xFFF)
	audioCodecID := int((val >> 20) & 0xFFF)

	return mega.ContainerName(containerID), mega.VideoCodecName(videoCodecID), mega.AudioCodecName(audioCodecID), nil
}
