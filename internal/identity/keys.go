package identity

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"
)

// Save writes the identity to disk: the fingerprint in plaintext at pubPath,
// and the ed25519 seed at privPath encrypted with the passphrase using age's
// scrypt-based passphrase encryption.
func (k *Key) Save(pubPath, privPath, passphrase string) error {
	if err := os.MkdirAll(filepath.Dir(pubPath), 0700); err != nil {
		return fmt.Errorf("creating public key directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(privPath), 0700); err != nil {
		return fmt.Errorf("creating private key directory: %w", err)
	}

	pub := hex.EncodeToString(k.PublicKey()) + "\n"
	if err := os.WriteFile(pubPath, []byte(pub), 0644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}

	privFile, err := os.OpenFile(privPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating private key file: %w", err)
	}
	defer privFile.Close()

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}

	w, err := age.Encrypt(privFile, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := w.Write(k.Seed()); err != nil {
		return fmt.Errorf("writing encrypted seed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing encrypted seed: %w", err)
	}
	return nil
}

// Load reads an identity saved by Save, decrypting the seed with the
// passphrase.
func Load(privPath, passphrase string) (*Key, error) {
	f, err := os.Open(privPath)
	if err != nil {
		return nil, fmt.Errorf("opening private key file: %w", err)
	}
	defer f.Close()

	id, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}

	r, err := age.Decrypt(f, id)
	if err != nil {
		return nil, fmt.Errorf("decrypting private key: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}

	key, err := FromSeed(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("loading private key: %w", err)
	}
	return key, nil
}
