package model

import "bytes"

// MetadataType is the wire discriminator carried in the first byte of every
// serialized record. Earlier generations of the format carried channel and
// collection records; those discriminators are deprecated and dropped on
// ingest.
type MetadataType uint8

const (
	TypeDeprecatedChannel    MetadataType = 1
	TypeDeprecatedCollection MetadataType = 2
	TypeRegularTorrent       MetadataType = 3
)

// Recognized reports whether t is in the live discriminator allowlist.
// Unknown and deprecated discriminators are dropped silently on ingest.
func (t MetadataType) Recognized() bool {
	return t == TypeRegularTorrent
}

// Status is the local lifecycle of a record. Remote traffic never mutates a
// committed record in place.
type Status int

const (
	StatusNew       Status = 0 // locally authored, eligible for signing
	StatusUpdated   Status = 1 // locally edited, pending re-signature
	StatusCommitted Status = 2 // validated and persisted
	StatusToDelete  Status = 3 // tombstone, drained by compaction
	StatusLegacy    Status = 4 // imported from an older schema
)

const (
	// KeyLen is the width of a public key fingerprint on the wire.
	KeyLen = 20
	// InfoHashLen is the width of a torrent infohash.
	InfoHashLen = 20
	// MaxTitleLen bounds titles in code points, by convention.
	MaxTitleLen = 300
)

// NullKey is the distinguished all-zero public key marking an unsigned
// ("free-for-all") record.
var NullKey = make([]byte, KeyLen)

// TorrentMetadata is a torrent descriptor record. (PublicKey, ID) is the
// originator-chosen logical identity; RowID is the monotone local identifier
// assigned by the backing store. A record is immutable after first commit.
type TorrentMetadata struct {
	RowID        int64
	PublicKey    []byte // 20 bytes; NullKey for unsigned records
	ID           uint64
	MetadataType MetadataType
	OriginID     uint64 // grouping key, 0 = root
	Timestamp    int64  // originator wall-clock at creation
	TorrentDate  int64  // content creation wall-clock
	InfoHash     []byte // 20 bytes
	Size         uint64
	Title        string
	Tags         string // single category string, not a set
	TrackerInfo  string
	XXX          bool
	Signature    []byte // absent for NullKey records
	Status       Status
}

// Signed reports whether the record carries a non-null public key.
func (m *TorrentMetadata) Signed() bool {
	return len(m.PublicKey) == KeyLen && !bytes.Equal(m.PublicKey, NullKey)
}

// HealthInfo is a liveness observation for one infohash. SelfChecked is set
// only by direct local measurements; remote-sourced triples land false.
type HealthInfo struct {
	InfoHash    []byte // 20 bytes
	Seeders     uint32
	Leechers    uint32
	LastCheck   uint32 // unix seconds
	SelfChecked bool
}

// Valid reports whether the observation satisfies its invariants: a proper
// infohash that is not all zero.
func (h *HealthInfo) Valid() bool {
	if len(h.InfoHash) != InfoHashLen {
		return false
	}
	for _, b := range h.InfoHash {
		if b != 0 {
			return true
		}
	}
	return false
}

// ShouldReplace decides whether h supersedes a stored observation for the
// same infohash: a fresher last_check always wins; on a tie a self-checked
// observation beats a remote one; otherwise the stored row is kept.
func (h *HealthInfo) ShouldReplace(old *HealthInfo) bool {
	if old == nil {
		return true
	}
	if h.LastCheck != old.LastCheck {
		return h.LastCheck > old.LastCheck
	}
	return h.SelfChecked && !old.SelfChecked
}

// TrackerState is the per-tracker liveness row. URL is canonicalised before
// insert.
type TrackerState struct {
	URL       string
	LastCheck int64
	Alive     bool
	Failures  int64
}

// ObjectState classifies the outcome of ingesting one record.
type ObjectState int

const (
	StateNone      ObjectState = 0 // dropped: bad payload, bad signature, unknown type
	StateNew       ObjectState = 1 // inserted as a new record
	StateDuplicate ObjectState = 2 // (public_key, id) already present; kept first-seen
)

// ProcessingResult pairs an ingested record with its outcome.
type ProcessingResult struct {
	State    ObjectState
	InfoHash []byte // infohash of the decoded record
	RowID    int64  // set when State == StateNew
}
