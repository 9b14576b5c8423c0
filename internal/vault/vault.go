// Package vault stores encrypted database snapshots off-node. A vault
// holds one snapshot per node id plus a version marker, so a restore can
// check staleness before pulling the payload.
package vault

import "io"

// Vault is the snapshot storage backend.
type Vault interface {
	// PutSnapshot stores the snapshot for a node, replacing any previous
	// one, and records its version.
	PutSnapshot(nodeID string, r io.Reader, size int64, version int64) error
	// GetSnapshot writes the stored snapshot for a node to w.
	GetSnapshot(nodeID string, w io.Writer) error
	// GetSnapshotVersion returns the stored version, 0 when no snapshot
	// exists.
	GetSnapshotVersion(nodeID string) (int64, error)
	// ValidateSetup verifies the backend is reachable and writable.
	ValidateSetup() error
}
