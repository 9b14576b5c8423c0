package store

import (
	"context"
	"testing"
	"time"

	"tms-go/internal/database"
	"tms-go/internal/identity"
	"tms-go/internal/model"
	"tms-go/internal/testutil"
	"tms-go/internal/wire"
)

func newTestService(t *testing.T, key *identity.Key) (*Service, *database.MetadataDB) {
	t.Helper()

	db := testutil.NewTestDatabase(t)
	svc := NewService(db, key, nil, nil, testutil.FixedClock(), Options{})
	t.Cleanup(svc.Shutdown)
	return svc, db
}

func TestBatchController(t *testing.T) {
	opts := Options{BatchTarget: 100 * time.Millisecond, MinBatch: 10, MaxBatch: 1000}

	t.Run("starts at the minimum", func(t *testing.T) {
		c := newBatchController(opts)
		if c.size != 10 {
			t.Errorf("initial size = %d, want 10", c.size)
		}
	})

	t.Run("fast sub-batches double", func(t *testing.T) {
		c := newBatchController(opts)
		for _, want := range []int{20, 40, 80} {
			c.observe(50 * time.Millisecond)
			if c.size != want {
				t.Fatalf("size = %d, want %d", c.size, want)
			}
		}
	})

	t.Run("slow sub-batches shrink proportionally", func(t *testing.T) {
		c := newBatchController(opts)
		c.size = 1000
		c.observe(400 * time.Millisecond) // ratio 4
		if c.size != 250 {
			t.Errorf("size = %d, want 250", c.size)
		}
	})

	t.Run("near-target timings hold steady", func(t *testing.T) {
		c := newBatchController(opts)
		c.size = 100
		c.observe(90 * time.Millisecond)
		if c.size != 100 {
			t.Errorf("size = %d, want unchanged 100", c.size)
		}
	})

	t.Run("clamped after adjustment", func(t *testing.T) {
		c := newBatchController(opts)
		c.size = 600
		c.observe(10 * time.Millisecond)
		if c.size != 1000 {
			t.Errorf("size = %d, want clamped to 1000", c.size)
		}

		c.size = 12
		c.observe(10 * time.Second) // ratio 100: would collapse to 0
		if c.size != 10 {
			t.Errorf("size = %d, want clamped to 10", c.size)
		}
	})
}

func TestProcessCompressedBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("mixed batch of new and duplicate records", func(t *testing.T) {
		svc, _ := newTestService(t, nil)

		first := testutil.Batch(t, []*model.TorrentMetadata{
			testutil.Record(1, "batch one"),
		}, nil)
		if _, err := svc.ProcessCompressedBatch(ctx, first, ProcessOptions{}); err != nil {
			t.Fatalf("ProcessCompressedBatch(first) error = %v", err)
		}

		second := testutil.Batch(t, []*model.TorrentMetadata{
			testutil.Record(1, "batch one"),
			testutil.Record(2, "batch two"),
		}, nil)
		results, err := svc.ProcessCompressedBatch(ctx, second, ProcessOptions{})
		if err != nil {
			t.Fatalf("ProcessCompressedBatch(second) error = %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("len(results) = %d, want 2", len(results))
		}
		if results[0].State != model.StateDuplicate {
			t.Errorf("results[0].State = %d, want StateDuplicate", results[0].State)
		}
		if results[1].State != model.StateNew {
			t.Errorf("results[1].State = %d, want StateNew", results[1].State)
		}
	})

	t.Run("health tail lands in storage", func(t *testing.T) {
		svc, db := newTestService(t, nil)

		records := []*model.TorrentMetadata{
			testutil.Record(1, "healthy"),
			testutil.Record(2, "unchecked"),
		}
		triples := []wire.HealthTriple{
			{Seeders: 42, Leechers: 7, LastCheck: 1700000000},
			{},
		}
		results, err := svc.ProcessCompressedBatch(ctx, testutil.Batch(t, records, triples), ProcessOptions{})
		if err != nil {
			t.Fatalf("ProcessCompressedBatch() error = %v", err)
		}
		for i, r := range results {
			if r.State != model.StateNew {
				t.Errorf("results[%d].State = %d, want StateNew", i, r.State)
			}
		}

		h, err := db.GetHealth(ctx, records[0].InfoHash)
		if err != nil {
			t.Fatalf("GetHealth() error = %v", err)
		}
		if h == nil || h.Seeders != 42 || h.Leechers != 7 {
			t.Errorf("health = %+v, want seeders=42 leechers=7", h)
		}
		if h != nil && h.SelfChecked {
			t.Error("gossiped health stored as self-checked")
		}
	})

	t.Run("corrupt frame yields empty results and no error", func(t *testing.T) {
		svc, _ := newTestService(t, nil)

		results, err := svc.ProcessCompressedBatch(ctx, []byte("definitely not lz4"), ProcessOptions{})
		if err != nil {
			t.Fatalf("ProcessCompressedBatch() error = %v", err)
		}
		if len(results) != 0 {
			t.Errorf("len(results) = %d, want 0", len(results))
		}
	})

	t.Run("mismatched health tail ingests records without health", func(t *testing.T) {
		svc, db := newTestService(t, nil)

		records := []*model.TorrentMetadata{
			testutil.Record(1, "tail short one"),
			testutil.Record(2, "tail short two"),
		}
		// One triple for two records: the whole tail is discarded.
		batch := testutil.Batch(t, records, []wire.HealthTriple{{Seeders: 9, LastCheck: 1700000000}})
		results, err := svc.ProcessCompressedBatch(ctx, batch, ProcessOptions{})
		if err != nil {
			t.Fatalf("ProcessCompressedBatch() error = %v", err)
		}
		for i, r := range results {
			if r.State != model.StateNew {
				t.Errorf("results[%d].State = %d, want StateNew", i, r.State)
			}
		}
		h, err := db.GetHealth(ctx, records[0].InfoHash)
		if err != nil {
			t.Fatalf("GetHealth() error = %v", err)
		}
		if h != nil {
			t.Errorf("health = %+v, want none stored", h)
		}
	})

	t.Run("truncated payload keeps the records before the cut", func(t *testing.T) {
		svc, _ := newTestService(t, nil)

		whole := wire.Encode(testutil.Record(1, "kept"))
		cut := wire.Encode(testutil.Record(2, "lost"))
		payload := append(append([]byte{}, whole...), cut[:len(cut)/2]...)
		batch, err := wire.CompressBatch(payload, nil)
		if err != nil {
			t.Fatalf("CompressBatch() error = %v", err)
		}

		results, err := svc.ProcessCompressedBatch(ctx, batch, ProcessOptions{})
		if err != nil {
			t.Fatalf("ProcessCompressedBatch() error = %v", err)
		}
		if len(results) != 1 {
			t.Fatalf("len(results) = %d, want 1", len(results))
		}
		if results[0].State != model.StateNew {
			t.Errorf("State = %d, want StateNew", results[0].State)
		}
	})

	t.Run("skip personal drops own records", func(t *testing.T) {
		key := testutil.TestKey(t, 0x01)
		other := testutil.TestKey(t, 0x02)
		svc, _ := newTestService(t, key)

		batch := testutil.Batch(t, []*model.TorrentMetadata{
			testutil.SignedRecord(key, 1, "mine"),
			testutil.SignedRecord(other, 2, "theirs"),
		}, nil)
		results, err := svc.ProcessCompressedBatch(ctx, batch, ProcessOptions{SkipPersonal: true})
		if err != nil {
			t.Fatalf("ProcessCompressedBatch() error = %v", err)
		}
		if results[0].State != model.StateNone {
			t.Errorf("own record State = %d, want StateNone", results[0].State)
		}
		if results[1].State != model.StateNew {
			t.Errorf("peer record State = %d, want StateNew", results[1].State)
		}
	})

	t.Run("tampered record is dropped", func(t *testing.T) {
		key := testutil.TestKey(t, 0x03)
		svc, _ := newTestService(t, nil)

		m := testutil.SignedRecord(key, 1, "original title")
		m.Title = "forged title"
		results, err := svc.ProcessCompressedBatch(ctx,
			testutil.Batch(t, []*model.TorrentMetadata{m}, nil), ProcessOptions{})
		if err != nil {
			t.Fatalf("ProcessCompressedBatch() error = %v", err)
		}
		if results[0].State != model.StateNone {
			t.Errorf("State = %d, want StateNone for a bad signature", results[0].State)
		}
	})

	t.Run("deprecated discriminators are dropped", func(t *testing.T) {
		svc, _ := newTestService(t, nil)

		m := testutil.Record(1, "old channel record")
		m.MetadataType = model.TypeDeprecatedChannel
		results, err := svc.ProcessCompressedBatch(ctx,
			testutil.Batch(t, []*model.TorrentMetadata{m}, nil), ProcessOptions{})
		if err != nil {
			t.Fatalf("ProcessCompressedBatch() error = %v", err)
		}
		if results[0].State != model.StateNone {
			t.Errorf("State = %d, want StateNone for a deprecated type", results[0].State)
		}
	})

	t.Run("shutdown stops before the first sub-batch", func(t *testing.T) {
		svc, _ := newTestService(t, nil)
		svc.Shutdown()

		results, err := svc.ProcessCompressedBatch(ctx,
			testutil.Batch(t, []*model.TorrentMetadata{testutil.Record(1, "late")}, nil),
			ProcessOptions{})
		if err != nil {
			t.Fatalf("ProcessCompressedBatch() error = %v", err)
		}
		if len(results) != 1 || results[0].State != model.StateNone {
			t.Errorf("results = %+v, want one untouched entry", results)
		}
	})

	t.Run("cancelled context is surfaced", func(t *testing.T) {
		svc, _ := newTestService(t, nil)
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := svc.ProcessCompressedBatch(cancelled,
			testutil.Batch(t, []*model.TorrentMetadata{testutil.Record(1, "never")}, nil),
			ProcessOptions{})
		if err == nil {
			t.Error("ProcessCompressedBatch() error = nil, want context error")
		}
	})
}
