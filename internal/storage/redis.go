package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/adred-codev/ratefeed/internal/rates"
)

// RedisRepository stores rate points as JSON-encoded list entries under
// rate:{assetId}, trimmed on every insert so a key never holds more than
// maxEntries points. Retention is therefore bounded both by the time window
// at read time and by entry count at write time.
type RedisRepository struct {
	addr       string
	maxEntries int
	client     *redis.Client
	logger     zerolog.Logger
}

func NewRedisRepository(addr string, maxEntries int, logger zerolog.Logger) *RedisRepository {
	return &RedisRepository{
		addr:       addr,
		maxEntries: maxEntries,
		logger:     logger.With().Str("storage", "redis").Logger(),
	}
}

// rateKey returns the list key for one asset.
func rateKey(assetID int) string {
	return fmt.Sprintf("rate:%d", assetID)
}

func (r *RedisRepository) Initialize(ctx context.Context) error {
	client := redis.NewClient(&redis.Options{Addr: r.addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	r.client = client
	r.logger.Info().Str("addr", r.addr).Msg("Redis repository initialized")
	return nil
}

// History reads the full list for the asset, decodes each entry and filters
// client-side to the retention window. Entries are stored in insertion
// order, so per-asset output stays time-ordered.
func (r *RedisRepository) History(ctx context.Context, assetID int, period time.Duration) ([]rates.Point, error) {
	raw, err := r.client.LRange(ctx, rateKey(assetID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange %s: %w", rateKey(assetID), err)
	}

	points := make([]rates.Point, 0, len(raw))
	for _, item := range raw {
		var p rates.Point
		if err := json.Unmarshal([]byte(item), &p); err != nil {
			return nil, fmt.Errorf("decode point in %s: %w", rateKey(assetID), err)
		}
		points = append(points, p)
	}
	return filterByPeriod(points, time.Now(), period), nil
}

// InsertMany appends each point to its asset's list and trims the list to
// the last maxEntries entries, all in one atomic pipeline per batch.
func (r *RedisRepository) InsertMany(ctx context.Context, points []rates.Point) error {
	if len(points) == 0 {
		return nil
	}

	pipe := r.client.TxPipeline()
	for _, p := range points {
		encoded, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode point: %w", err)
		}
		key := rateKey(p.AssetID)
		pipe.RPush(ctx, key, encoded)
		pipe.LTrim(ctx, key, int64(-r.maxEntries), -1)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("insert points: %w", err)
	}
	return nil
}

func (r *RedisRepository) Close(ctx context.Context) error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}
