package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tms-go/internal/database"
	"tms-go/internal/model"
	"tms-go/internal/wire"
)

// ErrNoIdentity is returned by operations that need the node's signing key
// when none was configured.
var ErrNoIdentity = errors.New("no local signing identity")

// GenerateCompressedBatch re-encodes the records a query spec selects into
// a compressed gossip batch with a health tail, for sending to a peer.
// Records whose stored health row is missing get a zero triple.
func (s *Service) GenerateCompressedBatch(ctx context.Context, q database.QueryFilter) ([]byte, error) {
	recs, err := s.db.SelectWireRecords(ctx, q, s.clock.Now())
	if err != nil {
		return nil, err
	}

	var payload []byte
	triples := make([]wire.HealthTriple, 0, len(recs))
	for _, rh := range recs {
		payload = append(payload, wire.Encode(rh.Record)...)
		var t wire.HealthTriple
		if rh.Health != nil {
			t = wire.HealthTriple{
				Seeders:   rh.Health.Seeders,
				Leechers:  rh.Health.Leechers,
				LastCheck: rh.Health.LastCheck,
			}
		}
		triples = append(triples, t)
	}

	batch, err := wire.CompressBatch(payload, wire.EncodeHealthTail(triples))
	if err != nil {
		return nil, fmt.Errorf("compressing batch: %w", err)
	}
	s.logger.Debug("generated gossip batch", "records", len(recs), "bytes", len(batch))
	return batch, nil
}

// NewTorrent describes a locally authored record before signing.
type NewTorrent struct {
	InfoHash    []byte
	Size        uint64
	Title       string
	Tags        string
	TrackerInfo string
	TorrentDate time.Time
	XXX         bool
}

// AddLocalTorrent authors, signs and stores a torrent record under the
// node's own identity, and returns its stored row id.
func (s *Service) AddLocalTorrent(ctx context.Context, nt NewTorrent) (int64, error) {
	if s.key == nil {
		return 0, ErrNoIdentity
	}
	if len(nt.InfoHash) != model.InfoHashLen {
		return 0, fmt.Errorf("infohash must be %d bytes, got %d", model.InfoHashLen, len(nt.InfoHash))
	}

	now := s.clock.Now()
	torrentDate := nt.TorrentDate
	if torrentDate.IsZero() {
		torrentDate = now
	}
	m := &model.TorrentMetadata{
		MetadataType: model.TypeRegularTorrent,
		PublicKey:    s.key.PublicKey(),
		ID:           s.idgen.New(),
		Timestamp:    now.Unix(),
		TorrentDate:  torrentDate.Unix(),
		InfoHash:     nt.InfoHash,
		Size:         nt.Size,
		Title:        nt.Title,
		Tags:         nt.Tags,
		TrackerInfo:  nt.TrackerInfo,
		XXX:          nt.XXX,
		Status:       model.StatusNew,
	}
	wire.Sign(m, s.key)
	m.Status = model.StatusCommitted

	results, err := s.db.IngestBatch(ctx, []database.IngestItem{{Record: m}})
	if err != nil {
		return 0, fmt.Errorf("storing local torrent: %w", err)
	}
	if len(results) != 1 || results[0].State != model.StateNew {
		return 0, fmt.Errorf("local torrent id collision for id %d", m.ID)
	}
	s.logger.Info("authored local torrent", "id", m.ID, "title", m.Title)
	return results[0].RowID, nil
}
