// Package encryption protects database snapshots before they leave the
// node. Snapshots are sealed to the operator's passphrase, so a restore
// needs nothing but the vault and the passphrase.
package encryption

import (
	"fmt"
	"io"

	"filippo.io/age"
)

// Encryptor seals and opens snapshot streams.
type Encryptor interface {
	Encrypt(passphrase string, r io.Reader, w io.Writer) error
	Decrypt(passphrase string, r io.Reader, w io.Writer) error
}

// AgeEncryptor implements Encryptor using age's scrypt-based passphrase
// encryption.
type AgeEncryptor struct{}

var _ Encryptor = (*AgeEncryptor)(nil)

// NewAgeEncryptor creates a new AgeEncryptor.
func NewAgeEncryptor() *AgeEncryptor {
	return &AgeEncryptor{}
}

// Encrypt reads plaintext from r and writes age-encrypted ciphertext to w,
// sealed to the passphrase.
func (e *AgeEncryptor) Encrypt(passphrase string, r io.Reader, w io.Writer) error {
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}

	encWriter, err := age.Encrypt(w, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}

	if _, err := io.Copy(encWriter, r); err != nil {
		return fmt.Errorf("encrypting data: %w", err)
	}

	if err := encWriter.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}

	return nil
}

// Decrypt reads age-encrypted ciphertext from r and writes plaintext to w.
func (e *AgeEncryptor) Decrypt(passphrase string, r io.Reader, w io.Writer) error {
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt identity: %w", err)
	}

	decReader, err := age.Decrypt(r, identity)
	if err != nil {
		return fmt.Errorf("creating decrypted reader: %w", err)
	}

	if _, err := io.Copy(w, decReader); err != nil {
		return fmt.Errorf("decrypting data: %w", err)
	}

	return nil
}
