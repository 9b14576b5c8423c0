package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"tms-go/internal/model"
)

// CanonicalizeTrackerURL normalises a tracker announce URL: trimmed,
// scheme and host lower-cased, default path stripped of trailing slashes.
// It returns an error for unparseable URLs or unsupported schemes.
func CanonicalizeTrackerURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parsing tracker url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "udp":
	default:
		return "", fmt.Errorf("unsupported tracker scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("tracker url %q has no host", raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimRight(u.Path, "/")
	u.Fragment = ""
	return u.String(), nil
}

// registerTracker upserts a tracker row for a URL observed in an ingested
// record. Unparseable URLs are ignored: they are record payload, not local
// state worth failing a batch over.
func registerTracker(ctx context.Context, tx querier, raw string) error {
	canonical, err := CanonicalizeTrackerURL(raw)
	if err != nil {
		return nil
	}
	_, err = tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO tracker_state (url) VALUES (?)", canonical)
	if err != nil {
		return fmt.Errorf("registering tracker: %w", err)
	}
	return nil
}

// RecordTrackerResult stores the outcome of a tracker check: alive resets
// the failure count, a failure increments it.
func (d *MetadataDB) RecordTrackerResult(ctx context.Context, raw string, alive bool, when time.Time) error {
	canonical, err := CanonicalizeTrackerURL(raw)
	if err != nil {
		return err
	}
	_, err = d.db.ExecContext(ctx, `
		INSERT INTO tracker_state (url, last_check, alive, failures)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			last_check = excluded.last_check,
			alive = excluded.alive,
			failures = CASE WHEN excluded.alive = 1 THEN 0 ELSE failures + 1 END`,
		canonical, when.Unix(), boolToInt(alive), boolToInt(!alive))
	if err != nil {
		return fmt.Errorf("recording tracker result: %w", err)
	}
	return nil
}

// GetTrackerState reads one tracker row by canonicalised URL, or nil.
func (d *MetadataDB) GetTrackerState(ctx context.Context, raw string) (*model.TrackerState, error) {
	canonical, err := CanonicalizeTrackerURL(raw)
	if err != nil {
		return nil, err
	}
	var (
		t     model.TrackerState
		alive int64
	)
	err = d.db.QueryRowContext(ctx,
		"SELECT url, last_check, alive, failures FROM tracker_state WHERE url = ?",
		canonical).Scan(&t.URL, &t.LastCheck, &alive, &t.Failures)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading tracker row: %w", err)
	}
	t.Alive = alive != 0
	return &t, nil
}
