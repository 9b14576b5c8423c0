package store

import (
	"context"

	"golang.org/x/sync/semaphore"

	"tms-go/internal/database"
	"tms-go/internal/model"
)

// pool bounds how many service calls run concurrently. Background callers
// go through the async entry points so a burst of gossip cannot exhaust
// database connections.
type pool struct {
	sem *semaphore.Weighted
}

func newPool(workers int) *pool {
	return &pool{sem: semaphore.NewWeighted(int64(workers))}
}

// EntriesReply is the future result of GetEntriesAsync.
type EntriesReply struct {
	Response *QueryResponse
	Err      error
}

// GetEntriesAsync schedules GetEntries on the worker pool. The returned
// channel delivers exactly one reply.
func (s *Service) GetEntriesAsync(ctx context.Context, q database.QueryFilter) <-chan EntriesReply {
	ch := make(chan EntriesReply, 1)
	go func() {
		if err := s.pool.sem.Acquire(ctx, 1); err != nil {
			ch <- EntriesReply{Err: err}
			return
		}
		defer s.pool.sem.Release(1)
		resp, err := s.GetEntries(ctx, q)
		ch <- EntriesReply{Response: resp, Err: err}
	}()
	return ch
}

// BatchReply is the future result of ProcessCompressedBatchAsync.
type BatchReply struct {
	Results []model.ProcessingResult
	Err     error
}

// ProcessCompressedBatchAsync schedules batch ingest on the worker pool.
// The background path always runs with ExternalThread yielding enabled.
func (s *Service) ProcessCompressedBatchAsync(ctx context.Context, raw []byte, opts ProcessOptions) <-chan BatchReply {
	opts.ExternalThread = true
	ch := make(chan BatchReply, 1)
	go func() {
		if err := s.pool.sem.Acquire(ctx, 1); err != nil {
			ch <- BatchReply{Err: err}
			return
		}
		defer s.pool.sem.Release(1)
		results, err := s.ProcessCompressedBatch(ctx, raw, opts)
		ch <- BatchReply{Results: results, Err: err}
	}()
	return ch
}

// HealthReply is the future result of ProcessTorrentHealthAsync.
type HealthReply struct {
	Updated bool
	Err     error
}

// ProcessTorrentHealthAsync schedules one health merge on the worker pool.
func (s *Service) ProcessTorrentHealthAsync(ctx context.Context, h *model.HealthInfo) <-chan HealthReply {
	ch := make(chan HealthReply, 1)
	go func() {
		if err := s.pool.sem.Acquire(ctx, 1); err != nil {
			ch <- HealthReply{Err: err}
			return
		}
		defer s.pool.sem.Release(1)
		updated, err := s.ProcessTorrentHealth(ctx, h)
		ch <- HealthReply{Updated: updated, Err: err}
	}()
	return ch
}
