// Package storage persists derived rate points with a bounded retention
// window. Two interchangeable backends are provided: a Mongo collection and
// a Redis list-per-key layout; both serve history reads over a time window.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/ratefeed/internal/config"
	"github.com/adred-codev/ratefeed/internal/rates"
)

// Repository is the capability set shared by the storage backends.
//
// History never returns future-dated points; an empty result is not an
// error. InsertMany with an empty batch is a no-op. InsertMany failures are
// transient storage errors: the caller logs and drops, there is no retry.
type Repository interface {
	Initialize(ctx context.Context) error
	History(ctx context.Context, assetID int, period time.Duration) ([]rates.Point, error)
	InsertMany(ctx context.Context, points []rates.Point) error
	Close(ctx context.Context) error
}

// Build selects a repository backend from configuration.
func Build(cfg *config.Config, logger zerolog.Logger) (Repository, error) {
	switch cfg.DB {
	case "mongo":
		return NewMongoRepository(cfg.MongoURI, logger), nil
	case "redis":
		return NewRedisRepository(cfg.RedisAddr(), cfg.HistoryPeriod, logger), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.DB)
	}
}

// filterByPeriod keeps only points inside the retention window ending at
// now, preserving input order.
func filterByPeriod(points []rates.Point, now time.Time, period time.Duration) []rates.Point {
	cutoff := now.Unix() - int64(period.Seconds())
	out := make([]rates.Point, 0, len(points))
	for _, p := range points {
		if p.Time >= cutoff && p.Time <= now.Unix() {
			out = append(out, p)
		}
	}
	return out
}
