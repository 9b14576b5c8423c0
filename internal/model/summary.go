package model

// TorrentSummary is the value snapshot handed to external callers: plain
// primitives only, JSON-serialisable for the UI, never a live reference
// into the store.
type TorrentSummary struct {
	RowID       int64          `json:"rowid"`
	PublicKey   string         `json:"public_key"` // hex; "" for free-for-all records
	ID          uint64         `json:"id"`
	Type        MetadataType   `json:"type"`
	OriginID    uint64         `json:"origin_id"`
	Timestamp   int64          `json:"timestamp"`
	TorrentDate int64          `json:"torrent_date"`
	InfoHash    string         `json:"infohash"` // hex
	Size        uint64         `json:"size"`
	Title       string         `json:"title"`
	Tags        string         `json:"tags,omitempty"`
	TrackerInfo string         `json:"tracker_info,omitempty"`
	XXX         bool           `json:"xxx,omitempty"`
	Status      Status         `json:"status"`
	Health      *HealthSummary `json:"health,omitempty"`
}

// HealthSummary is the health slice of a TorrentSummary, present only when
// the store holds an observation for the infohash.
type HealthSummary struct {
	Seeders     uint32 `json:"seeders"`
	Leechers    uint32 `json:"leechers"`
	LastCheck   uint32 `json:"last_check"`
	SelfChecked bool   `json:"self_checked"`
}
