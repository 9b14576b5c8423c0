package database

import (
	"context"
	"fmt"

	"tms-go/internal/model"
)

// IngestItem is one validated record headed for the store, optionally
// paired with a positional health triple from the batch tail.
type IngestItem struct {
	Record *model.TorrentMetadata
	Health *model.HealthInfo
}

// IngestBatch commits one sub-batch in a single transaction: for each item,
// first-writer-wins on (public_key, id), paired health merged through the
// same policy as direct observations, tracker URLs registered as a side
// effect. A storage error rolls the whole sub-batch back.
func (d *MetadataDB) IngestBatch(ctx context.Context, items []IngestItem) ([]model.ProcessingResult, error) {
	results := make([]model.ProcessingResult, 0, len(items))
	if len(items) == 0 {
		return results, nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting ingest transaction: %w", err)
	}
	defer tx.Rollback()

	for _, item := range items {
		m := item.Record

		exists, err := recordExists(ctx, tx, m.PublicKey, m.ID)
		if err != nil {
			return nil, err
		}
		if exists {
			// Duplicates never overwrite: the first-seen record wins.
			results = append(results, model.ProcessingResult{
				State:    model.StateDuplicate,
				InfoHash: m.InfoHash,
			})
			continue
		}

		rowID, err := insertRecord(ctx, tx, m)
		if err != nil {
			return nil, err
		}
		results = append(results, model.ProcessingResult{
			State:    model.StateNew,
			InfoHash: m.InfoHash,
			RowID:    rowID,
		})

		if item.Health != nil && item.Health.Valid() {
			if _, err := mergeHealth(ctx, tx, item.Health); err != nil {
				return nil, err
			}
		}
		if m.TrackerInfo != "" {
			if err := registerTracker(ctx, tx, m.TrackerInfo); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing ingest transaction: %w", err)
	}
	return results, nil
}
