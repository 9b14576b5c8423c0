package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tms-go/internal/model"
)

// ErrBadHealth marks a health observation that failed its invariants
// (wrong-length or all-zero infohash).
var ErrBadHealth = errors.New("bad health observation")

// ProcessTorrentHealth merges a single observation into the store. It
// returns true when the stored row changed (new row or replacement) and
// false when the existing observation was kept.
func (d *MetadataDB) ProcessTorrentHealth(ctx context.Context, h *model.HealthInfo) (bool, error) {
	if !h.Valid() {
		return false, fmt.Errorf("%w: infohash %x", ErrBadHealth, h.InfoHash)
	}
	return mergeHealth(ctx, d.db, h)
}

// mergeHealth applies the conflict-resolution policy: insert when absent,
// replace iff the new observation should supersede the stored one. has_data
// is never written here; the schema triggers maintain it.
func mergeHealth(ctx context.Context, tx querier, h *model.HealthInfo) (bool, error) {
	old, err := getHealth(ctx, tx, h.InfoHash)
	if err != nil {
		return false, err
	}
	if !h.ShouldReplace(old) {
		return false, nil
	}

	if old == nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO torrent_health (infohash, seeders, leechers, last_check, self_checked)
			VALUES (?, ?, ?, ?, ?)`,
			h.InfoHash, int64(h.Seeders), int64(h.Leechers), int64(h.LastCheck), boolToInt(h.SelfChecked))
		if err != nil {
			return false, fmt.Errorf("inserting health row: %w", err)
		}
		return true, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE torrent_health
		SET seeders = ?, leechers = ?, last_check = ?, self_checked = ?
		WHERE infohash = ?`,
		int64(h.Seeders), int64(h.Leechers), int64(h.LastCheck), boolToInt(h.SelfChecked), h.InfoHash)
	if err != nil {
		return false, fmt.Errorf("updating health row: %w", err)
	}
	return true, nil
}

func getHealth(ctx context.Context, tx querier, infohash []byte) (*model.HealthInfo, error) {
	var (
		h           model.HealthInfo
		seeders     int64
		leechers    int64
		lastCheck   int64
		selfChecked int64
	)
	err := tx.QueryRowContext(ctx, `
		SELECT seeders, leechers, last_check, self_checked
		FROM torrent_health WHERE infohash = ?`, infohash).
		Scan(&seeders, &leechers, &lastCheck, &selfChecked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading health row: %w", err)
	}
	h.InfoHash = infohash
	h.Seeders = uint32(seeders)
	h.Leechers = uint32(leechers)
	h.LastCheck = uint32(lastCheck)
	h.SelfChecked = selfChecked != 0
	return &h, nil
}

// GetHealth returns the stored observation for an infohash, or nil.
func (d *MetadataDB) GetHealth(ctx context.Context, infohash []byte) (*model.HealthInfo, error) {
	return getHealth(ctx, d.db, infohash)
}
