package database

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"tms-go/internal/model"
)

// SelectRecords runs a query spec and returns value snapshots. now anchors
// the ranker's age term and the popular window.
func (d *MetadataDB) SelectRecords(ctx context.Context, q QueryFilter, now time.Time) ([]model.TorrentSummary, error) {
	if q.TxtFilter != "" && EmptyFTSQuery(q.TxtFilter) {
		return []model.TorrentSummary{}, nil
	}

	query, args, err := q.buildSelect(now, true)
	if err != nil {
		return nil, err
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("selecting records: %w", err)
	}
	defer rows.Close()

	summaries := []model.TorrentSummary{}
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return summaries, nil
}

// RecordWithHealth is a full stored record plus its health row, if any.
// Used to rebuild gossip payloads.
type RecordWithHealth struct {
	Record *model.TorrentMetadata
	Health *model.HealthInfo
}

// SelectWireRecords runs a query spec and returns full records including
// signatures, suitable for re-encoding on the wire.
func (d *MetadataDB) SelectWireRecords(ctx context.Context, q QueryFilter, now time.Time) ([]RecordWithHealth, error) {
	if q.TxtFilter != "" && EmptyFTSQuery(q.TxtFilter) {
		return []RecordWithHealth{}, nil
	}

	query, args, err := q.buildSelectCols(wireCols, now, true)
	if err != nil {
		return nil, err
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("selecting wire records: %w", err)
	}
	defer rows.Close()

	out := []RecordWithHealth{}
	for rows.Next() {
		rh, err := scanWireRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning wire record: %w", err)
		}
		out = append(out, rh)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating wire records: %w", err)
	}
	return out, nil
}

// CountRecords returns the row count a spec would produce: the total count
// when paged is false, the count inside the first/last window when true.
func (d *MetadataDB) CountRecords(ctx context.Context, q QueryFilter, now time.Time, paged bool) (int64, error) {
	if q.TxtFilter != "" && EmptyFTSQuery(q.TxtFilter) {
		return 0, nil
	}

	query, args, err := q.buildCount(now, paged)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := d.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	return count, nil
}

// GetMaxRowID returns the highest assigned row id, 0 for an empty store.
// Callers snapshot it once at the start of a paginated scan.
func (d *MetadataDB) GetMaxRowID(ctx context.Context) (int64, error) {
	var max int64
	err := d.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(row_id), 0) FROM metadata").Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("reading max row id: %w", err)
	}
	return max, nil
}

// AutoCompleteTerms returns completion terms for a prefix, best-seeded
// first, de-duplicated by the completed token.
func (d *MetadataDB) AutoCompleteTerms(ctx context.Context, prefix string, maxTerms int) ([]string, error) {
	tokens := matchTokens(prefix)
	if len(tokens) == 0 || maxTerms <= 0 {
		return []string{}, nil
	}
	want := strings.ToLower(tokens[len(tokens)-1])

	rows, err := d.db.QueryContext(ctx, `
		SELECT m.title FROM fts_title f
		JOIN metadata m ON m.row_id = f.rowid
		LEFT JOIN torrent_health h ON h.infohash = m.infohash
		WHERE fts_title MATCH ?
		ORDER BY COALESCE(h.seeders, 0) DESC, m.row_id DESC
		LIMIT ?`,
		matchExpr(prefix), maxTerms*20)
	if err != nil {
		return nil, fmt.Errorf("querying autocomplete terms: %w", err)
	}
	defer rows.Close()

	terms := []string{}
	seen := map[string]bool{}
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("scanning title: %w", err)
		}
		for _, tok := range strings.Fields(strings.ToLower(title)) {
			tok = strings.Trim(tok, `"'()[]{}.,;:!?`)
			if !strings.HasPrefix(tok, want) || seen[tok] {
				continue
			}
			seen[tok] = true
			terms = append(terms, tok)
			break
		}
		if len(terms) >= maxTerms {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating titles: %w", err)
	}
	return terms, nil
}

// PurgeDeleted drains tombstoned records. The FTS rows follow through the
// delete trigger.
func (d *MetadataDB) PurgeDeleted(ctx context.Context) (int64, error) {
	res, err := d.db.ExecContext(ctx, "DELETE FROM metadata WHERE status = ?", int64(model.StatusToDelete))
	if err != nil {
		return 0, fmt.Errorf("purging tombstones: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting purged rows: %w", err)
	}
	return n, nil
}

// querier is the subset of sql.DB / sql.Tx both record and health writes
// run against.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertRecord(ctx context.Context, tx querier, m *model.TorrentMetadata) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO metadata (metadata_type, public_key, id, origin_id,
			timestamp, torrent_date, infohash, size, title, tags,
			tracker_info, xxx, signature, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(m.MetadataType), m.PublicKey, int64(m.ID), int64(m.OriginID),
		m.Timestamp, m.TorrentDate, m.InfoHash, int64(m.Size), m.Title, m.Tags,
		m.TrackerInfo, boolToInt(m.XXX), m.Signature, int64(m.Status))
	if err != nil {
		return 0, fmt.Errorf("inserting record: %w", err)
	}
	rowID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading inserted row id: %w", err)
	}
	return rowID, nil
}

func recordExists(ctx context.Context, tx querier, publicKey []byte, id uint64) (bool, error) {
	var one int64
	err := tx.QueryRowContext(ctx,
		"SELECT 1 FROM metadata WHERE public_key = ? AND id = ?",
		publicKey, int64(id)).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking for existing record: %w", err)
	}
	return true, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(row scanner) (model.TorrentSummary, error) {
	var (
		s           model.TorrentSummary
		publicKey   []byte
		infohash    []byte
		id          int64
		mdType      int64
		originID    int64
		size        int64
		xxx         int64
		status      int64
		seeders     sql.NullInt64
		leechers    sql.NullInt64
		lastCheck   sql.NullInt64
		selfChecked sql.NullInt64
	)
	err := row.Scan(&s.RowID, &publicKey, &id, &mdType, &originID,
		&s.Timestamp, &s.TorrentDate, &infohash, &size, &s.Title, &s.Tags,
		&s.TrackerInfo, &xxx, &status,
		&seeders, &leechers, &lastCheck, &selfChecked)
	if err != nil {
		return s, err
	}

	s.ID = uint64(id)
	s.Type = model.MetadataType(mdType)
	s.OriginID = uint64(originID)
	s.Size = uint64(size)
	s.XXX = xxx != 0
	s.Status = model.Status(status)
	s.InfoHash = hex.EncodeToString(infohash)
	if !isNullKey(publicKey) {
		s.PublicKey = hex.EncodeToString(publicKey)
	}
	if seeders.Valid {
		s.Health = &model.HealthSummary{
			Seeders:     uint32(seeders.Int64),
			Leechers:    uint32(leechers.Int64),
			LastCheck:   uint32(lastCheck.Int64),
			SelfChecked: selfChecked.Int64 != 0,
		}
	}
	return s, nil
}

func scanWireRecord(row scanner) (RecordWithHealth, error) {
	var (
		m           model.TorrentMetadata
		id          int64
		mdType      int64
		originID    int64
		size        int64
		xxx         int64
		status      int64
		seeders     sql.NullInt64
		leechers    sql.NullInt64
		lastCheck   sql.NullInt64
		selfChecked sql.NullInt64
	)
	err := row.Scan(&m.RowID, &m.PublicKey, &id, &mdType, &originID,
		&m.Timestamp, &m.TorrentDate, &m.InfoHash, &size, &m.Title, &m.Tags,
		&m.TrackerInfo, &xxx, &m.Signature, &status,
		&seeders, &leechers, &lastCheck, &selfChecked)
	if err != nil {
		return RecordWithHealth{}, err
	}

	m.ID = uint64(id)
	m.MetadataType = model.MetadataType(mdType)
	m.OriginID = uint64(originID)
	m.Size = uint64(size)
	m.XXX = xxx != 0
	m.Status = model.Status(status)

	rh := RecordWithHealth{Record: &m}
	if seeders.Valid {
		rh.Health = &model.HealthInfo{
			InfoHash:    m.InfoHash,
			Seeders:     uint32(seeders.Int64),
			Leechers:    uint32(leechers.Int64),
			LastCheck:   uint32(lastCheck.Int64),
			SelfChecked: selfChecked.Int64 != 0,
		}
	}
	return rh, nil
}

func isNullKey(pk []byte) bool {
	for _, b := range pk {
		if b != 0 {
			return false
		}
	}
	return true
}
