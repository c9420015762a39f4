package attr_test

import (
	"bytes"
	"testing"

	"github.com/cloudmega/megasdk/attr"
	"github.com/cloudmega/megasdk/cryptoprim"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x5C}, 16)

	a := attr.New("holiday.jpg")
	a.SetMTime(1700000000)

	blob, err := attr.Encode(key, a)
	if err != nil {
		t.Fatal(err)
	}

	got, err := attr.Decode(key, blob)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name() != "holiday.jpg" {
		t.Errorf("Name() = %q, want %q", got.Name(), "holiday.jpg")
	}
	mtime, ok := got.MTime()
	if !ok || mtime != 1700000000 {
		t.Errorf("MTime() = (%d, %v), want (1700000000, true)", mtime, ok)
	}
}

func TestDecodePreservesUnknownFields(t *testing.T) {
	key := bytes.Repeat([]byte{0x11}, 16)
	a := attr.New("file.bin")
	a["zz"] = "some-future-field"

	blob, err := attr.Encode(key, a)
	if err != nil {
		t.Fatal(err)
	}
	got, err := attr.Decode(key, blob)
	if err != nil {
		t.Fatal(err)
	}
	if got["zz"] != "some-future-field" {
		t.Errorf("unknown field %q not preserved: got %v", "zz", got["zz"])
	}
}

func TestCloneIsIndependent(t *testing.T) {
	a := attr.New("a.txt")
	b := a.Clone()
	b.SetName("b.txt")
	if a.Name() != "a.txt" {
		t.Errorf("Clone shared state with the original: %q", a.Name())
	}
}

func TestDecodeRejectsMissingMarker(t *testing.T) {
	key := bytes.Repeat([]byte{0x01}, 16)
	garbage, err := cryptoprim.CBCEncryptZeroIV(key, cryptoprim.PadZero([]byte(`{"n":"x"}`), 16))
	if err != nil {
		t.Fatal(err)
	}
	blob := cryptoprim.Base64URLEncode(garbage)

	if _, err := attr.Decode(key, blob); err == nil {
		t.Error("expected an error for a blob missing the MEGA marker")
	}
}

func TestDecodeRejectsMissingName(t *testing.T) {
	key := bytes.Repeat([]byte{0x02}, 16)
	plaintext := cryptoprim.PadZero(append([]byte("MEGA"), []byte(`{"lbl":1}`)...), 16)
	ciphertext, err := cryptoprim.CBCEncryptZeroIV(key, plaintext)
	if err != nil {
		t.Fatal(err)
	}
	blob := cryptoprim.Base64URLEncode(ciphertext)

	if _, err := attr.Decode(key, blob); err == nil {
		t.Error("expected an error for a blob missing the mandatory n field")
	}
}
