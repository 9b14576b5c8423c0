package testutil

import (
	"crypto/sha1"
	"testing"
	"time"

	"tms-go/internal/identity"
	"tms-go/internal/model"
	"tms-go/internal/wire"
)

// TestKey returns a deterministic signing identity derived from seed byte b.
func TestKey(t *testing.T, b byte) *identity.Key {
	t.Helper()

	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = b
	}
	key, err := identity.FromSeed(seed)
	if err != nil {
		t.Fatalf("failed to derive key from seed: %v", err)
	}
	return key
}

// InfoHash returns a deterministic 20-byte infohash derived from s.
func InfoHash(s string) []byte {
	sum := sha1.Sum([]byte(s))
	return sum[:]
}

// Record builds an unsigned torrent record with sensible defaults.
// The infohash is derived from the title.
func Record(id uint64, title string) *model.TorrentMetadata {
	now := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC).Unix()
	return &model.TorrentMetadata{
		MetadataType: model.TypeRegularTorrent,
		PublicKey:    append([]byte(nil), model.NullKey...),
		ID:           id,
		Timestamp:    now,
		TorrentDate:  now,
		InfoHash:     InfoHash(title),
		Size:         1 << 20,
		Title:        title,
	}
}

// SignedRecord builds a torrent record signed by key.
func SignedRecord(key *identity.Key, id uint64, title string) *model.TorrentMetadata {
	m := Record(id, title)
	m.PublicKey = key.PublicKey()
	wire.Sign(m, key)
	return m
}

// Batch compresses records and health triples into a gossip batch.
// triples may be nil for a batch without a health tail.
func Batch(t *testing.T, records []*model.TorrentMetadata, triples []wire.HealthTriple) []byte {
	t.Helper()

	var payload []byte
	for _, m := range records {
		payload = append(payload, wire.Encode(m)...)
	}
	batch, err := wire.CompressBatch(payload, wire.EncodeHealthTail(triples))
	if err != nil {
		t.Fatalf("failed to compress batch: %v", err)
	}
	return batch
}
