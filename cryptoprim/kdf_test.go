package cryptoprim_test

import (
	"testing"

	"github.com/cloudmega/megasdk/cryptoprim"
)

func TestV1PasswordKeyIsDeterministic(t *testing.T) {
	a := cryptoprim.V1PasswordKey("hunter2")
	b := cryptoprim.V1PasswordKey("hunter2")
	if string(a) != string(b) {
		t.Errorf("V1PasswordKey is not deterministic")
	}
	if len(a) != 16 {
		t.Errorf("V1PasswordKey length = %d, want 16", len(a))
	}

	c := cryptoprim.V1PasswordKey("different")
	if string(a) == string(c) {
		t.Errorf("different passwords produced the same key")
	}
}

func TestV1LoginHashLength(t *testing.T) {
	key := cryptoprim.V1PasswordKey("hunter2")
	hash, err := cryptoprim.V1LoginHash("user@example.com", key)
	if err != nil {
		t.Fatal(err)
	}
	if len(hash) != 8 {
		t.Errorf("V1LoginHash length = %d, want 8", len(hash))
	}
}

func TestV2DeriveSplitsKeyAndAuth(t *testing.T) {
	salt := []byte("0123456789abcdef")
	master, auth := cryptoprim.V2Derive("hunter2", salt)
	if len(master) != 16 || len(auth) != 16 {
		t.Fatalf("V2Derive lengths = %d/%d, want 16/16", len(master), len(auth))
	}
	master2, auth2 := cryptoprim.V2Derive("hunter2", salt)
	if string(master) != string(master2) || string(auth) != string(auth2) {
		t.Errorf("V2Derive is not deterministic for a fixed salt")
	}
}
