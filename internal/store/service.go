package store

import (
	"context"
	"errors"
	"time"

	"tms-go/internal/database"
	"tms-go/internal/identity"
	"tms-go/internal/metrics"
	"tms-go/internal/model"
)

// Options tunes the ingest pipeline. Zero values fall back to defaults.
type Options struct {
	BatchTarget   time.Duration // target wall time per sub-batch
	MinBatch      int
	MaxBatch      int
	ExternalSleep time.Duration // yield between sub-batches for external callers
	Workers       int           // async pool size
}

const (
	defaultBatchTarget   = 100 * time.Millisecond
	defaultMinBatch      = 10
	defaultMaxBatch      = 1000
	defaultExternalSleep = 50 * time.Millisecond
	defaultWorkers       = 4
)

func (o *Options) withDefaults() Options {
	out := *o
	if out.BatchTarget <= 0 {
		out.BatchTarget = defaultBatchTarget
	}
	if out.MinBatch <= 0 {
		out.MinBatch = defaultMinBatch
	}
	if out.MaxBatch <= 0 {
		out.MaxBatch = defaultMaxBatch
	}
	if out.ExternalSleep <= 0 {
		out.ExternalSleep = defaultExternalSleep
	}
	if out.Workers <= 0 {
		out.Workers = defaultWorkers
	}
	return out
}

// Service is the metadata store: queries, health processing, batch ingest
// and batch generation, all against one Database.
type Service struct {
	db      Database
	key     *identity.Key // nil when the node has no local identity
	logger  Logger
	clock   Clock
	idgen   IDGenerator
	metrics *metrics.Metrics
	opts    Options
	pool    *pool

	shutdown chan struct{}
}

// NewService wires a Service. key may be nil for a read/relay node.
func NewService(db Database, key *identity.Key, m *metrics.Metrics, logger Logger, clock Clock, opts Options) *Service {
	if logger == nil {
		logger = NewNopLogger()
	}
	if clock == nil {
		clock = RealClock{}
	}
	o := opts.withDefaults()
	return &Service{
		db:       db,
		key:      key,
		logger:   logger,
		clock:    clock,
		idgen:    UUIDGenerator{},
		metrics:  m,
		opts:     o,
		pool:     newPool(o.Workers),
		shutdown: make(chan struct{}),
	}
}

// Shutdown stops accepting further sub-batches. In-flight sub-batch
// transactions finish; subsequent ones are skipped.
func (s *Service) Shutdown() {
	select {
	case <-s.shutdown:
	default:
		close(s.shutdown)
	}
}

func (s *Service) shuttingDown() bool {
	select {
	case <-s.shutdown:
		return true
	default:
		return false
	}
}

// Close shuts the pipeline down and closes the database.
func (s *Service) Close() error {
	s.Shutdown()
	return s.db.Close()
}

// PublicKey returns the node's own 20-byte key fingerprint, nil without a
// local identity.
func (s *Service) PublicKey() []byte {
	if s.key == nil {
		return nil
	}
	return s.key.PublicKey()
}

// QueryResponse is the paginated envelope around query results.
type QueryResponse struct {
	Results []model.TorrentSummary `json:"results"`
	First   int                    `json:"first"`
	Last    int                    `json:"last"`
	Total   int64                  `json:"total"`
}

// GetEntries runs a query spec and wraps the page in its envelope: the
// window bounds actually served plus the total matching count.
func (s *Service) GetEntries(ctx context.Context, q database.QueryFilter) (*QueryResponse, error) {
	started := s.clock.Now()

	results, err := s.db.SelectRecords(ctx, q, started)
	if err != nil {
		return nil, err
	}
	total, err := s.db.CountRecords(ctx, q, started, false)
	if err != nil {
		return nil, err
	}
	s.observeQuery("entries", started)

	first := q.First
	if first < 1 {
		first = 1
	}
	last := first - 1 + len(results)
	return &QueryResponse{Results: results, First: first, Last: last, Total: total}, nil
}

// GetTotalCount returns the number of records matching a spec, ignoring
// pagination.
func (s *Service) GetTotalCount(ctx context.Context, q database.QueryFilter) (int64, error) {
	started := s.clock.Now()
	n, err := s.db.CountRecords(ctx, q, started, false)
	if err != nil {
		return 0, err
	}
	s.observeQuery("total_count", started)
	return n, nil
}

// GetEntriesCount returns the number of records inside the query spec's
// first/last window.
func (s *Service) GetEntriesCount(ctx context.Context, q database.QueryFilter) (int64, error) {
	started := s.clock.Now()
	n, err := s.db.CountRecords(ctx, q, started, true)
	if err != nil {
		return 0, err
	}
	s.observeQuery("entries_count", started)
	return n, nil
}

// GetMaxRowID returns the pagination snapshot bound.
func (s *Service) GetMaxRowID(ctx context.Context) (int64, error) {
	return s.db.GetMaxRowID(ctx)
}

// GetAutoCompleteTerms suggests completions for a search prefix.
func (s *Service) GetAutoCompleteTerms(ctx context.Context, prefix string, maxTerms int) ([]string, error) {
	started := s.clock.Now()
	terms, err := s.db.AutoCompleteTerms(ctx, prefix, maxTerms)
	if err != nil {
		return nil, err
	}
	s.observeQuery("autocomplete", started)
	return terms, nil
}

// ProcessTorrentHealth applies one health observation. Malformed health is
// logged and reported as not-updated; only storage failures return an error.
func (s *Service) ProcessTorrentHealth(ctx context.Context, h *model.HealthInfo) (bool, error) {
	updated, err := s.db.ProcessTorrentHealth(ctx, h)
	if err != nil {
		if errors.Is(err, database.ErrBadHealth) {
			s.logger.Warn("discarding malformed health info")
			return false, nil
		}
		return false, err
	}
	if s.metrics != nil {
		outcome := "kept_existing"
		if updated {
			outcome = "replaced"
		}
		s.metrics.HealthMergesTotal.WithLabelValues(outcome).Inc()
	}
	return updated, nil
}

// GetHealth returns the stored health row for an infohash, nil when absent.
func (s *Service) GetHealth(ctx context.Context, infohash []byte) (*model.HealthInfo, error) {
	return s.db.GetHealth(ctx, infohash)
}

// PurgeDeleted drains tombstoned records and returns how many went away.
func (s *Service) PurgeDeleted(ctx context.Context) (int64, error) {
	n, err := s.db.PurgeDeleted(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("purged tombstoned records", "count", n)
	}
	return n, nil
}

func (s *Service) observeQuery(kind string, started time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.QueryDuration.WithLabelValues(kind).Observe(s.clock.Now().Sub(started).Seconds())
}
