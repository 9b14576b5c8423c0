package encryption

import (
	"bytes"
	"strings"
	"testing"

	"tms-go/internal/config"
)

func TestAgeEncryptor_RoundTrip(t *testing.T) {
	e := NewAgeEncryptor()
	plaintext := "the snapshot contents"

	var ciphertext bytes.Buffer
	if err := e.Encrypt("correct horse", strings.NewReader(plaintext), &ciphertext); err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if strings.Contains(ciphertext.String(), plaintext) {
		t.Error("ciphertext contains the plaintext")
	}

	var decrypted bytes.Buffer
	if err := e.Decrypt("correct horse", bytes.NewReader(ciphertext.Bytes()), &decrypted); err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if decrypted.String() != plaintext {
		t.Errorf("Decrypt() = %q, want %q", decrypted.String(), plaintext)
	}
}

func TestAgeEncryptor_WrongPassphrase(t *testing.T) {
	e := NewAgeEncryptor()

	var ciphertext bytes.Buffer
	if err := e.Encrypt("right", strings.NewReader("secret"), &ciphertext); err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	var decrypted bytes.Buffer
	if err := e.Decrypt("wrong", bytes.NewReader(ciphertext.Bytes()), &decrypted); err == nil {
		t.Fatal("Decrypt() expected error with the wrong passphrase")
	}
}

func TestAgeEncryptor_GarbageInput(t *testing.T) {
	e := NewAgeEncryptor()

	var decrypted bytes.Buffer
	if err := e.Decrypt("any", strings.NewReader("not an age stream"), &decrypted); err == nil {
		t.Fatal("Decrypt() expected error for non-age input")
	}
}

func TestTestEncryptor_RoundTrip(t *testing.T) {
	e := NewTestEncryptor()
	plaintext := "plain snapshot"

	var ciphertext bytes.Buffer
	if err := e.Encrypt("ignored", strings.NewReader(plaintext), &ciphertext); err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if ciphertext.String() == plaintext {
		t.Error("encrypted output identical to plaintext")
	}

	var decrypted bytes.Buffer
	if err := e.Decrypt("ignored", bytes.NewReader(ciphertext.Bytes()), &decrypted); err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if decrypted.String() != plaintext {
		t.Errorf("Decrypt() = %q, want %q", decrypted.String(), plaintext)
	}
}

func TestTestEncryptor_BadHeader(t *testing.T) {
	e := NewTestEncryptor()

	var decrypted bytes.Buffer
	if err := e.Decrypt("ignored", strings.NewReader("WRONGHDRdata"), &decrypted); err == nil {
		t.Fatal("Decrypt() expected error for a bad header")
	}
}

func TestNewEncryptorFromConfig(t *testing.T) {
	tests := []struct {
		name     string
		typ      string
		wantType string
		wantErr  bool
	}{
		{name: "age", typ: "age", wantType: "*encryption.AgeEncryptor"},
		{name: "default is age", typ: "", wantType: "*encryption.AgeEncryptor"},
		{name: "test", typ: "test", wantType: "*encryption.TestEncryptor"},
		{name: "unknown", typ: "rot13", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewEncryptorFromConfig(config.EncryptionConfig{Type: tt.typ})
			if tt.wantErr {
				if err == nil {
					t.Fatal("NewEncryptorFromConfig() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewEncryptorFromConfig() error = %v", err)
			}
			switch tt.wantType {
			case "*encryption.AgeEncryptor":
				if _, ok := e.(*AgeEncryptor); !ok {
					t.Errorf("NewEncryptorFromConfig() = %T, want AgeEncryptor", e)
				}
			case "*encryption.TestEncryptor":
				if _, ok := e.(*TestEncryptor); !ok {
					t.Errorf("NewEncryptorFromConfig() = %T, want TestEncryptor", e)
				}
			}
		})
	}
}
