package rates

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/ratefeed/internal/monitoring"
	"github.com/adred-codev/ratefeed/internal/poller"
	"github.com/adred-codev/ratefeed/internal/symbols"
	"github.com/adred-codev/ratefeed/internal/workerpool"
)

// Repository is the slice of the storage capability set the service needs.
type Repository interface {
	History(ctx context.Context, assetID int, period time.Duration) ([]Point, error)
	InsertMany(ctx context.Context, points []Point) error
}

// Submitter enqueues fire-and-forget tasks. Satisfied by *workerpool.Pool.
type Submitter interface {
	Submit(task workerpool.Task)
}

// Publisher pushes derived point batches to an external bus. Optional.
type Publisher interface {
	Publish(ctx context.Context, points []Point) error
}

// DeliverFunc sends one live point to a subscriber. Runs on a notifier
// worker under the pool's per-task deadline.
type DeliverFunc func(ctx context.Context, point Point)

// Subscriber is one peer's registration for live points of one asset.
type Subscriber struct {
	AssetID int
	Deliver DeliverFunc
}

// Service owns the subscription registry, filters and transforms upstream
// batches into rate points, and dispatches them to the notifier pool, the
// DB pool and the optional bus publisher.
type Service struct {
	repository Repository
	poller     *poller.Poller
	notifier   Submitter
	dbPool     Submitter
	publisher  Publisher
	table      *symbols.Table
	period     time.Duration
	logger     zerolog.Logger

	mu          sync.RWMutex
	subscribers map[string]Subscriber
}

func NewService(
	repository Repository,
	p *poller.Poller,
	notifier, dbPool Submitter,
	publisher Publisher,
	table *symbols.Table,
	period time.Duration,
	logger zerolog.Logger,
) *Service {
	return &Service{
		repository:  repository,
		poller:      p,
		notifier:    notifier,
		dbPool:      dbPool,
		publisher:   publisher,
		table:       table,
		period:      period,
		logger:      logger,
		subscribers: make(map[string]Subscriber),
	}
}

// Run consumes the poll stream until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	defer monitoring.RecoverPanic(s.logger, "rateService", nil)

	for batch := range s.poller.Stream(ctx) {
		s.processBatch(batch)
	}
	s.logger.Info().Msg("Rate service stopped")
}

// processBatch derives points from one upstream batch and dispatches them.
// All points of a batch share a single timestamp. Notifier submissions for
// a point strictly precede the batch's insert submission.
func (s *Service) processBatch(batch poller.Batch) {
	timestamp := time.Now().Unix()

	points := make([]Point, 0, len(batch))
	for _, quote := range batch {
		assetID, ok := s.table.ID(quote.Symbol)
		if !ok {
			continue
		}
		point := Point{
			AssetID:   assetID,
			AssetName: quote.Symbol,
			Time:      timestamp,
			Value:     MidPrice(quote.Bid, quote.Ask),
		}
		points = append(points, point)
		s.notifySubscribers(point)
	}

	if len(points) == 0 {
		return
	}
	monitoring.AddPointsProduced(len(points))
	s.logger.Debug().Int("count", len(points)).Int64("time", timestamp).Msg("Derived points")

	s.dbPool.Submit(func(ctx context.Context) {
		if err := s.repository.InsertMany(ctx, points); err != nil {
			monitoring.IncrementStorageErrors()
			s.logger.Error().Err(err).Int("count", len(points)).Msg("Failed to persist points")
		}
	})

	if s.publisher != nil {
		s.notifier.Submit(func(ctx context.Context) {
			if err := s.publisher.Publish(ctx, points); err != nil {
				s.logger.Error().Err(err).Msg("Failed to publish points")
			}
		})
	}
}

// notifySubscribers enqueues one deliver task per matching subscriber. The
// registry is snapshotted under the read lock so dispatch never holds the
// lock across a submit, and the point is captured by value.
func (s *Service) notifySubscribers(point Point) {
	s.mu.RLock()
	matched := make([]Subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		if sub.AssetID == point.AssetID {
			matched = append(matched, sub)
		}
	}
	s.mu.RUnlock()

	for _, sub := range matched {
		deliver := sub.Deliver
		p := point
		s.notifier.Submit(func(ctx context.Context) {
			deliver(ctx, p)
		})
	}
}

// Subscribe replaces any prior registration for subscriberID and, if the
// asset is known, installs the new entry. An unknown assetID is a silent
// no-op; the caller is expected to log.
func (s *Service) Subscribe(subscriberID string, deliver DeliverFunc, assetID int) {
	s.Unsubscribe(subscriberID)
	if !s.table.Contains(assetID) {
		return
	}

	s.mu.Lock()
	s.subscribers[subscriberID] = Subscriber{AssetID: assetID, Deliver: deliver}
	count := len(s.subscribers)
	s.mu.Unlock()

	monitoring.SetSubscribers(count)
	s.logger.Info().Str("subscriber_id", subscriberID).Int("asset_id", assetID).Msg("New subscriber")
}

// Unsubscribe removes the entry if present.
func (s *Service) Unsubscribe(subscriberID string) {
	s.mu.Lock()
	_, existed := s.subscribers[subscriberID]
	if existed {
		delete(s.subscribers, subscriberID)
	}
	count := len(s.subscribers)
	s.mu.Unlock()

	if existed {
		monitoring.SetSubscribers(count)
		s.logger.Info().Str("subscriber_id", subscriberID).Msg("Unsubscribed")
	}
}

// History returns the asset's retained points.
func (s *Service) History(ctx context.Context, assetID int) ([]Point, error) {
	return s.repository.History(ctx, assetID, s.period)
}

// Symbols returns the static symbol table.
func (s *Service) Symbols() []symbols.Symbol {
	return s.table.All()
}

// Available reports whether the assetID is a known symbol.
func (s *Service) Available(assetID int) bool {
	return s.table.Contains(assetID)
}

// SubscriberCount returns the registry size.
func (s *Service) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}
