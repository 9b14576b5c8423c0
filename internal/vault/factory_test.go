package vault

import (
	"context"
	"testing"

	"tms-go/internal/config"
)

func TestNewVaultFromConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("memory vault", func(t *testing.T) {
		v, err := NewVaultFromConfig(ctx, config.VaultConfig{Type: "memory", Name: "m"})
		if err != nil {
			t.Fatalf("NewVaultFromConfig() error = %v", err)
		}
		if _, ok := v.(*MemoryVault); !ok {
			t.Errorf("NewVaultFromConfig() = %T, want *MemoryVault", v)
		}
	})

	t.Run("filesystem vault", func(t *testing.T) {
		v, err := NewVaultFromConfig(ctx, config.VaultConfig{
			Type: "filesystem", Name: "fs", FSVaultRoot: t.TempDir(),
		})
		if err != nil {
			t.Fatalf("NewVaultFromConfig() error = %v", err)
		}
		if _, ok := v.(*FileSystemVault); !ok {
			t.Errorf("NewVaultFromConfig() = %T, want *FileSystemVault", v)
		}
	})

	t.Run("filesystem vault requires root", func(t *testing.T) {
		_, err := NewVaultFromConfig(ctx, config.VaultConfig{Type: "filesystem", Name: "fs"})
		if err == nil {
			t.Fatal("NewVaultFromConfig() expected error without fs_vault_root")
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := NewVaultFromConfig(ctx, config.VaultConfig{Type: "carrier-pigeon"})
		if err == nil {
			t.Fatal("NewVaultFromConfig() expected error for unknown type")
		}
	})
}
