package rates

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/ratefeed/internal/poller"
	"github.com/adred-codev/ratefeed/internal/symbols"
	"github.com/adred-codev/ratefeed/internal/workerpool"
)

// syncSubmitter runs tasks inline, recovering panics the way a pool worker
// would, and records a label per submission for ordering assertions.
type syncSubmitter struct {
	label string
	log   *[]string
}

func (s *syncSubmitter) Submit(task workerpool.Task) {
	if s.log != nil {
		*s.log = append(*s.log, s.label)
	}
	defer func() { recover() }()
	task(context.Background())
}

type fakeRepo struct {
	inserted [][]Point
	history  []Point
}

func (f *fakeRepo) History(ctx context.Context, assetID int, period time.Duration) ([]Point, error) {
	return f.history, nil
}

func (f *fakeRepo) InsertMany(ctx context.Context, points []Point) error {
	f.inserted = append(f.inserted, points)
	return nil
}

func testTable(t *testing.T) *symbols.Table {
	t.Helper()
	tbl, err := symbols.Parse("1:EURUSD,2:USDJPY")
	if err != nil {
		t.Fatalf("parse symbols: %v", err)
	}
	return tbl
}

func newTestService(t *testing.T, repo *fakeRepo, order *[]string) *Service {
	t.Helper()
	return NewService(
		repo,
		nil,
		&syncSubmitter{label: "notify", log: order},
		&syncSubmitter{label: "insert", log: order},
		nil,
		testTable(t),
		30*time.Minute,
		zerolog.Nop(),
	)
}

func TestMidPrice(t *testing.T) {
	tests := []struct {
		bid, ask, want float64
	}{
		{1.10, 1.20, 1.15},
		{0, 0, 0},
		{107.5, 108.5, 108},
		{1.0, 1.0, 1.0},
	}
	for _, tt := range tests {
		if got := MidPrice(tt.bid, tt.ask); got != tt.want {
			t.Fatalf("MidPrice(%v, %v) = %v, want %v", tt.bid, tt.ask, got, tt.want)
		}
	}
}

func TestProcessBatch_AdmitsKnownSymbolsOnly(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(t, repo, nil)

	svc.processBatch(poller.Batch{
		{Symbol: "EURUSD", Bid: 1.10, Ask: 1.20},
		{Symbol: "XAUUSD", Bid: 1900, Ask: 1902}, // not in the table
		{Symbol: "USDJPY", Bid: 107.5, Ask: 108.5},
	})

	if len(repo.inserted) != 1 {
		t.Fatalf("InsertMany called %d times, want 1", len(repo.inserted))
	}
	points := repo.inserted[0]
	if len(points) != 2 {
		t.Fatalf("persisted %d points, want 2", len(points))
	}
	if points[0].AssetID != 1 || points[0].AssetName != "EURUSD" || points[0].Value != 1.15 {
		t.Fatalf("unexpected point %+v", points[0])
	}
	if points[1].AssetID != 2 || points[1].Value != 108 {
		t.Fatalf("unexpected point %+v", points[1])
	}
}

func TestProcessBatch_SharedTimestamp(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(t, repo, nil)

	before := time.Now().Unix()
	svc.processBatch(poller.Batch{
		{Symbol: "EURUSD", Bid: 1.10, Ask: 1.20},
		{Symbol: "USDJPY", Bid: 107.5, Ask: 108.5},
	})
	after := time.Now().Unix()

	points := repo.inserted[0]
	if points[0].Time != points[1].Time {
		t.Fatalf("points in one batch have different timestamps: %d vs %d", points[0].Time, points[1].Time)
	}
	if points[0].Time < before || points[0].Time > after {
		t.Fatalf("timestamp %d outside [%d, %d]", points[0].Time, before, after)
	}
}

func TestProcessBatch_EmptyBatchPersistsNothing(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(t, repo, nil)

	svc.processBatch(poller.Batch{})
	svc.processBatch(poller.Batch{{Symbol: "XAUUSD", Bid: 1, Ask: 2}})

	if len(repo.inserted) != 0 {
		t.Fatalf("InsertMany called %d times, want 0", len(repo.inserted))
	}
}

func TestProcessBatch_NotifyPrecedesInsert(t *testing.T) {
	var order []string
	repo := &fakeRepo{}
	svc := newTestService(t, repo, &order)

	svc.Subscribe("peer-1", func(ctx context.Context, p Point) {}, 1)

	svc.processBatch(poller.Batch{{Symbol: "EURUSD", Bid: 1.10, Ask: 1.20}})

	if len(order) != 2 || order[0] != "notify" || order[1] != "insert" {
		t.Fatalf("dispatch order = %v, want [notify insert]", order)
	}
}

func TestProcessBatch_DeliversToMatchingSubscribers(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(t, repo, nil)

	var eur, jpy []Point
	svc.Subscribe("peer-eur", func(ctx context.Context, p Point) { eur = append(eur, p) }, 1)
	svc.Subscribe("peer-jpy", func(ctx context.Context, p Point) { jpy = append(jpy, p) }, 2)

	svc.processBatch(poller.Batch{
		{Symbol: "EURUSD", Bid: 1.10, Ask: 1.20},
		{Symbol: "USDJPY", Bid: 107.5, Ask: 108.5},
	})

	if len(eur) != 1 || eur[0].AssetID != 1 || eur[0].Value != 1.15 {
		t.Fatalf("eur subscriber got %+v", eur)
	}
	if len(jpy) != 1 || jpy[0].AssetID != 2 {
		t.Fatalf("jpy subscriber got %+v", jpy)
	}
}

func TestProcessBatch_SubscriberPanicIsolated(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(t, repo, nil)

	delivered := 0
	svc.Subscribe("peer-bad", func(ctx context.Context, p Point) { panic("boom") }, 1)
	svc.Subscribe("peer-good", func(ctx context.Context, p Point) { delivered++ }, 1)

	svc.processBatch(poller.Batch{{Symbol: "EURUSD", Bid: 1.10, Ask: 1.20}})

	if delivered != 1 {
		t.Fatalf("healthy subscriber received %d points, want 1", delivered)
	}
	if len(repo.inserted) != 1 {
		t.Fatalf("insert skipped after subscriber panic")
	}
}

func TestSubscribe_ReplacesPriorEntry(t *testing.T) {
	svc := newTestService(t, &fakeRepo{}, nil)

	svc.Subscribe("peer-1", func(ctx context.Context, p Point) {}, 1)
	svc.Subscribe("peer-1", func(ctx context.Context, p Point) {}, 2)

	if got := svc.SubscriberCount(); got != 1 {
		t.Fatalf("registry holds %d entries, want 1", got)
	}

	svc.mu.RLock()
	sub := svc.subscribers["peer-1"]
	svc.mu.RUnlock()
	if sub.AssetID != 2 {
		t.Fatalf("surviving subscription assetID = %d, want 2", sub.AssetID)
	}
}

func TestSubscribe_UnknownAssetIsNoOp(t *testing.T) {
	svc := newTestService(t, &fakeRepo{}, nil)

	svc.Subscribe("peer-1", func(ctx context.Context, p Point) {}, 99)

	if got := svc.SubscriberCount(); got != 0 {
		t.Fatalf("registry holds %d entries, want 0", got)
	}
}

func TestSubscribe_UnknownAssetDropsPriorEntry(t *testing.T) {
	svc := newTestService(t, &fakeRepo{}, nil)

	svc.Subscribe("peer-1", func(ctx context.Context, p Point) {}, 1)
	// Re-subscribing to an unknown asset removes the old entry and installs
	// nothing.
	svc.Subscribe("peer-1", func(ctx context.Context, p Point) {}, 99)

	if got := svc.SubscriberCount(); got != 0 {
		t.Fatalf("registry holds %d entries, want 0", got)
	}
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	svc := newTestService(t, &fakeRepo{}, nil)

	svc.Unsubscribe("nobody")

	svc.Subscribe("peer-1", func(ctx context.Context, p Point) {}, 1)
	svc.Unsubscribe("peer-1")
	svc.Unsubscribe("peer-1")

	if got := svc.SubscriberCount(); got != 0 {
		t.Fatalf("registry holds %d entries, want 0", got)
	}
}

func TestHistory_DelegatesWithConfiguredPeriod(t *testing.T) {
	repo := &fakeRepo{history: []Point{{AssetID: 1, AssetName: "EURUSD", Time: 1000, Value: 1.15}}}
	svc := newTestService(t, repo, nil)

	got, err := svc.History(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if len(got) != 1 || got[0].Value != 1.15 {
		t.Fatalf("History = %+v", got)
	}
}

func TestSymbols(t *testing.T) {
	svc := newTestService(t, &fakeRepo{}, nil)

	syms := svc.Symbols()
	if len(syms) != 2 || syms[0].Name != "EURUSD" || syms[1].Name != "USDJPY" {
		t.Fatalf("Symbols() = %+v", syms)
	}
	if !svc.Available(1) || svc.Available(42) {
		t.Fatalf("Available mismatch")
	}
}
