package store

import (
	"bytes"
	"context"
	"time"

	"tms-go/internal/database"
	"tms-go/internal/model"
	"tms-go/internal/wire"
)

// ProcessOptions controls one ingest call.
type ProcessOptions struct {
	// SkipPersonal drops records signed by this node's own key. Set when
	// the batch came back from a peer that could echo our own gossip.
	SkipPersonal bool
	// ExternalThread makes the pipeline yield between sub-batches so a
	// caller sharing its thread with other work is not starved.
	ExternalThread bool
}

// batchController sizes ingest sub-batches from observed transaction
// timings: fast sub-batches double the size, slow ones shrink it
// proportionally, and the result is clamped to [min, max].
type batchController struct {
	size    int
	target  time.Duration
	minimum int
	maximum int
}

func newBatchController(o Options) *batchController {
	return &batchController{
		size:    o.MinBatch,
		target:  o.BatchTarget,
		minimum: o.MinBatch,
		maximum: o.MaxBatch,
	}
}

func (c *batchController) observe(elapsed time.Duration) {
	ratio := float64(elapsed) / float64(c.target)
	switch {
	case ratio < 0.8:
		c.size *= 2
	case ratio > 1.0:
		c.size = int(float64(c.size) / ratio)
	}
	if c.size < c.minimum {
		c.size = c.minimum
	}
	if c.size > c.maximum {
		c.size = c.maximum
	}
}

// ProcessCompressedBatch ingests one compressed gossip batch: decompress,
// split into records, pair health triples from the tail, validate, then
// commit in adaptively sized sub-batch transactions.
//
// The returned slice has one entry per decoded record, in batch order;
// dropped records keep StateNone. A corrupt frame or payload yields an
// empty result, not an error. A storage failure aborts the current
// sub-batch only and returns what earlier sub-batches committed.
func (s *Service) ProcessCompressedBatch(ctx context.Context, raw []byte, opts ProcessOptions) ([]model.ProcessingResult, error) {
	payload, tail, err := wire.DecompressBatch(raw)
	if err != nil {
		s.logger.Warn("discarding undecompressable batch", "size", len(raw), "error", err)
		return []model.ProcessingResult{}, nil
	}

	records := s.splitPayload(payload)
	triples := wire.ParseHealthTail(tail, len(records))
	if len(tail) > 0 && triples == nil {
		s.logger.Warn("ignoring health tail with mismatched length",
			"tail_bytes", len(tail), "records", len(records))
	}

	results := make([]model.ProcessingResult, len(records))
	type pending struct {
		item      database.IngestItem
		resultIdx int
	}
	var accepted []pending
	for i, m := range records {
		results[i].InfoHash = m.InfoHash
		if !s.admit(m, opts) {
			continue
		}
		m.Status = model.StatusCommitted
		item := database.IngestItem{Record: m}
		if triples != nil {
			t := triples[i]
			item.Health = &model.HealthInfo{
				InfoHash:  m.InfoHash,
				Seeders:   t.Seeders,
				Leechers:  t.Leechers,
				LastCheck: t.LastCheck,
			}
		}
		accepted = append(accepted, pending{item: item, resultIdx: i})
	}

	ctrl := newBatchController(s.opts)
	for start := 0; start < len(accepted); {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if s.shuttingDown() {
			s.logger.Info("ingest stopped by shutdown",
				"processed", start, "remaining", len(accepted)-start)
			return results, nil
		}

		end := start + ctrl.size
		if end > len(accepted) {
			end = len(accepted)
		}
		chunk := accepted[start:end]
		items := make([]database.IngestItem, len(chunk))
		for i, p := range chunk {
			items[i] = p.item
		}

		began := s.clock.Now()
		chunkResults, err := s.db.IngestBatch(ctx, items)
		elapsed := s.clock.Now().Sub(began)
		if err != nil {
			s.logger.Error("sub-batch ingest failed",
				"offset", start, "size", len(items), "error", err)
			return results, nil
		}
		for i, r := range chunkResults {
			results[chunk[i].resultIdx] = r
		}
		s.observeSubBatch(len(items), elapsed, chunkResults)
		ctrl.observe(elapsed)
		start = end

		if opts.ExternalThread && start < len(accepted) {
			select {
			case <-time.After(s.opts.ExternalSleep):
			case <-ctx.Done():
				return results, ctx.Err()
			case <-s.shutdown:
				return results, nil
			}
		}
	}
	return results, nil
}

// splitPayload decodes back-to-back records. Decoding is abandoned at the
// first malformed record, since record boundaries cannot be recovered.
func (s *Service) splitPayload(payload []byte) []*model.TorrentMetadata {
	var records []*model.TorrentMetadata
	off := 0
	for off < len(payload) {
		m, next, err := wire.DecodeOne(payload, off)
		if err != nil {
			s.logger.Warn("abandoning malformed batch payload",
				"offset", off, "decoded", len(records), "error", err)
			break
		}
		records = append(records, m)
		off = next
	}
	return records
}

// admit decides whether a decoded record may enter storage.
func (s *Service) admit(m *model.TorrentMetadata, opts ProcessOptions) bool {
	if opts.SkipPersonal && s.key != nil && bytes.Equal(m.PublicKey, s.key.PublicKey()) {
		s.dropRecord(m, "personal")
		return false
	}
	if !m.MetadataType.Recognized() {
		s.dropRecord(m, "unrecognized_type")
		return false
	}
	if !wire.VerifyRecord(m) {
		s.logger.Warn("dropping record with bad signature", "id", m.ID)
		s.dropRecord(m, "bad_signature")
		return false
	}
	return true
}

func (s *Service) dropRecord(m *model.TorrentMetadata, reason string) {
	s.logger.Debug("dropping record", "id", m.ID, "reason", reason)
	if s.metrics != nil {
		s.metrics.RecordsDroppedTotal.WithLabelValues(reason).Inc()
	}
}

func (s *Service) observeSubBatch(size int, elapsed time.Duration, results []model.ProcessingResult) {
	if s.metrics == nil {
		return
	}
	s.metrics.SubBatchSize.Observe(float64(size))
	s.metrics.SubBatchDuration.Observe(elapsed.Seconds())
	var fresh, dup int
	for _, r := range results {
		switch r.State {
		case model.StateNew:
			fresh++
		case model.StateDuplicate:
			dup++
		}
	}
	if fresh > 0 {
		s.metrics.RecordsIngestedTotal.WithLabelValues("new").Add(float64(fresh))
	}
	if dup > 0 {
		s.metrics.RecordsIngestedTotal.WithLabelValues("duplicate").Add(float64(dup))
	}
}
