package identity

import (
	"bytes"
	"path/filepath"
	"testing"

	"tms-go/internal/model"
)

func testKey(t *testing.T) *Key {
	t.Helper()
	seed := bytes.Repeat([]byte{0x42}, 32)
	key, err := FromSeed(seed)
	if err != nil {
		t.Fatalf("FromSeed() error = %v", err)
	}
	return key
}

func TestKey_SignVerify(t *testing.T) {
	key := testKey(t)
	msg := []byte("some canonical record bytes")

	sig := key.Sign(msg)
	if len(sig) != SignatureLen {
		t.Fatalf("len(sig) = %d, want %d", len(sig), SignatureLen)
	}

	if !Verify(key.PublicKey(), msg, sig) {
		t.Error("Verify() = false for a valid signature")
	}
}

func TestVerify_rejectsMalformedInput(t *testing.T) {
	key := testKey(t)
	msg := []byte("payload")
	sig := key.Sign(msg)

	other, err := Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	tests := []struct {
		name        string
		fingerprint []byte
		msg         []byte
		sig         []byte
	}{
		{name: "tampered message", fingerprint: key.PublicKey(), msg: []byte("other payload"), sig: sig},
		{name: "wrong fingerprint", fingerprint: other.PublicKey(), msg: msg, sig: sig},
		{name: "short fingerprint", fingerprint: key.PublicKey()[:10], msg: msg, sig: sig},
		{name: "nil fingerprint", fingerprint: nil, msg: msg, sig: sig},
		{name: "truncated signature", fingerprint: key.PublicKey(), msg: msg, sig: sig[:40]},
		{name: "empty signature", fingerprint: key.PublicKey(), msg: msg, sig: nil},
		{name: "garbage signature", fingerprint: key.PublicKey(), msg: msg, sig: bytes.Repeat([]byte{0xff}, SignatureLen)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Must return false, never panic.
			if Verify(tt.fingerprint, tt.msg, tt.sig) {
				t.Error("Verify() = true, want false")
			}
		})
	}
}

func TestFingerprint_width(t *testing.T) {
	key := testKey(t)
	if got := len(key.PublicKey()); got != model.KeyLen {
		t.Errorf("len(PublicKey()) = %d, want %d", got, model.KeyLen)
	}
}

func TestFromSeed_deterministic(t *testing.T) {
	a := testKey(t)
	b := testKey(t)
	if !bytes.Equal(a.PublicKey(), b.PublicKey()) {
		t.Error("same seed produced different public keys")
	}
}

func TestFromSeed_rejectsBadSeed(t *testing.T) {
	if _, err := FromSeed([]byte{1, 2, 3}); err == nil {
		t.Error("FromSeed() with short seed: expected error")
	}
}

func TestKey_SaveLoad(t *testing.T) {
	dir := t.TempDir()
	pubPath := filepath.Join(dir, "tms.pub")
	privPath := filepath.Join(dir, "tms.key")

	key := testKey(t)
	if err := key.Save(pubPath, privPath, "correct horse"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	t.Run("round trip", func(t *testing.T) {
		loaded, err := Load(privPath, "correct horse")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if !bytes.Equal(loaded.PublicKey(), key.PublicKey()) {
			t.Error("loaded key has a different public key")
		}
		if !bytes.Equal(loaded.Seed(), key.Seed()) {
			t.Error("loaded key has a different seed")
		}
	})

	t.Run("wrong passphrase", func(t *testing.T) {
		if _, err := Load(privPath, "wrong"); err == nil {
			t.Error("Load() with wrong passphrase: expected error")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(dir, "absent.key"), "x"); err == nil {
			t.Error("Load() with missing file: expected error")
		}
	})
}
