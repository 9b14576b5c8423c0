// Package store is the orchestration layer of the metadata store: the
// public query and ingest API over the database, the adaptive batch
// pipeline for remote traffic, and the async entry points background
// callers must use.
package store

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/google/uuid"

	"tms-go/internal/database"
	"tms-go/internal/model"
)

// Database is the persistence surface the service runs against. The SQLite
// implementation lives in internal/database.
type Database interface {
	SelectRecords(ctx context.Context, q database.QueryFilter, now time.Time) ([]model.TorrentSummary, error)
	SelectWireRecords(ctx context.Context, q database.QueryFilter, now time.Time) ([]database.RecordWithHealth, error)
	CountRecords(ctx context.Context, q database.QueryFilter, now time.Time, paged bool) (int64, error)
	GetMaxRowID(ctx context.Context) (int64, error)
	AutoCompleteTerms(ctx context.Context, prefix string, maxTerms int) ([]string, error)
	IngestBatch(ctx context.Context, items []database.IngestItem) ([]model.ProcessingResult, error)
	ProcessTorrentHealth(ctx context.Context, h *model.HealthInfo) (bool, error)
	GetHealth(ctx context.Context, infohash []byte) (*model.HealthInfo, error)
	PurgeDeleted(ctx context.Context) (int64, error)
	Close() error
}

// Logger provides structured logging for the service layer.
// The args follow slog conventions: alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NopLogger is a Logger that discards all output. Use in tests.
type NopLogger struct{}

func NewNopLogger() *NopLogger { return &NopLogger{} }

func (*NopLogger) Debug(string, ...any) {}
func (*NopLogger) Info(string, ...any)  {}
func (*NopLogger) Warn(string, ...any)  {}
func (*NopLogger) Error(string, ...any) {}

// Clock abstracts time retrieval so business logic is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator assigns originator ids to locally authored records.
type IDGenerator interface {
	New() uint64
}

// UUIDGenerator derives random 64-bit ids from random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() uint64 {
	u := uuid.New()
	return binary.LittleEndian.Uint64(u[:8])
}
