package vault

import (
	"bytes"
	"strings"
	"testing"
)

func TestMemoryVault_PutAndGetSnapshot(t *testing.T) {
	vault := NewMemoryVault("test-vault")

	tests := []struct {
		name    string
		nodeID  string
		content string
		version int64
	}{
		{
			name:    "store and retrieve snapshot",
			nodeID:  "node-1",
			content: "snapshot bytes",
			version: 42,
		},
		{
			name:    "store empty snapshot",
			nodeID:  "node-empty",
			content: "",
			version: 1,
		},
		{
			name:    "store large snapshot",
			nodeID:  "node-large",
			content: strings.Repeat("x", 10000),
			version: 7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := strings.NewReader(tt.content)
			if err := vault.PutSnapshot(tt.nodeID, r, int64(len(tt.content)), tt.version); err != nil {
				t.Fatalf("PutSnapshot() error = %v", err)
			}

			var buf bytes.Buffer
			if err := vault.GetSnapshot(tt.nodeID, &buf); err != nil {
				t.Fatalf("GetSnapshot() error = %v", err)
			}
			if got := buf.String(); got != tt.content {
				t.Errorf("GetSnapshot() = %q, want %q", got, tt.content)
			}

			version, err := vault.GetSnapshotVersion(tt.nodeID)
			if err != nil {
				t.Fatalf("GetSnapshotVersion() error = %v", err)
			}
			if version != tt.version {
				t.Errorf("GetSnapshotVersion() = %d, want %d", version, tt.version)
			}
		})
	}
}

func TestMemoryVault_PutSnapshotReplaces(t *testing.T) {
	vault := NewMemoryVault("test-vault")

	if err := vault.PutSnapshot("n1", strings.NewReader("old"), 3, 1); err != nil {
		t.Fatalf("PutSnapshot(old) error = %v", err)
	}
	if err := vault.PutSnapshot("n1", strings.NewReader("newer"), 5, 2); err != nil {
		t.Fatalf("PutSnapshot(new) error = %v", err)
	}

	var buf bytes.Buffer
	if err := vault.GetSnapshot("n1", &buf); err != nil {
		t.Fatalf("GetSnapshot() error = %v", err)
	}
	if buf.String() != "newer" {
		t.Errorf("GetSnapshot() = %q, want %q", buf.String(), "newer")
	}

	version, err := vault.GetSnapshotVersion("n1")
	if err != nil {
		t.Fatalf("GetSnapshotVersion() error = %v", err)
	}
	if version != 2 {
		t.Errorf("GetSnapshotVersion() = %d, want 2", version)
	}
}

func TestMemoryVault_SizeMismatch(t *testing.T) {
	vault := NewMemoryVault("test-vault")

	err := vault.PutSnapshot("n1", strings.NewReader("abc"), 99, 1)
	if err == nil {
		t.Fatal("PutSnapshot() expected size mismatch error")
	}
}

func TestMemoryVault_MissingSnapshot(t *testing.T) {
	vault := NewMemoryVault("test-vault")

	var buf bytes.Buffer
	if err := vault.GetSnapshot("nobody", &buf); err == nil {
		t.Fatal("GetSnapshot() expected error for unknown node")
	}

	version, err := vault.GetSnapshotVersion("nobody")
	if err != nil {
		t.Fatalf("GetSnapshotVersion() error = %v", err)
	}
	if version != 0 {
		t.Errorf("GetSnapshotVersion() = %d, want 0 for unknown node", version)
	}
}

func TestMemoryVault_ValidateSetup(t *testing.T) {
	vault := NewMemoryVault("test-vault")
	if err := vault.ValidateSetup(); err != nil {
		t.Errorf("ValidateSetup() error = %v", err)
	}
}
