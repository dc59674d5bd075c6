package storage

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/ratefeed/internal/config"
	"github.com/adred-codev/ratefeed/internal/rates"
)

func TestFilterByPeriod(t *testing.T) {
	now := time.Unix(10_000, 0)
	period := 30 * time.Minute

	points := []rates.Point{
		{AssetID: 1, AssetName: "EURUSD", Time: 10_000 - 1801, Value: 1.0}, // outside window
		{AssetID: 1, AssetName: "EURUSD", Time: 10_000 - 1800, Value: 1.1}, // boundary, kept
		{AssetID: 1, AssetName: "EURUSD", Time: 10_000 - 60, Value: 1.2},
		{AssetID: 1, AssetName: "EURUSD", Time: 10_000, Value: 1.3},
		{AssetID: 1, AssetName: "EURUSD", Time: 10_000 + 60, Value: 1.4}, // future-dated, dropped
	}

	got := filterByPeriod(points, now, period)
	if len(got) != 3 {
		t.Fatalf("filtered %d points, want 3", len(got))
	}
	if got[0].Value != 1.1 || got[1].Value != 1.2 || got[2].Value != 1.3 {
		t.Fatalf("unexpected points %+v", got)
	}
}

func TestFilterByPeriod_Empty(t *testing.T) {
	got := filterByPeriod(nil, time.Now(), time.Hour)
	if len(got) != 0 {
		t.Fatalf("filtered %d points, want 0", len(got))
	}
}

func TestRateKey(t *testing.T) {
	if got := rateKey(7); got != "rate:7" {
		t.Fatalf("rateKey(7) = %q", got)
	}
}

func TestBuild(t *testing.T) {
	logger := zerolog.Nop()

	cfg := &config.Config{DB: "redis", RedisHost: "localhost", RedisPort: 6379, HistoryPeriod: 1800}
	repo, err := Build(cfg, logger)
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if _, ok := repo.(*RedisRepository); !ok {
		t.Fatalf("Build(redis) = %T", repo)
	}

	cfg = &config.Config{DB: "mongo", MongoURI: "mongodb://localhost:27017"}
	repo, err = Build(cfg, logger)
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if _, ok := repo.(*MongoRepository); !ok {
		t.Fatalf("Build(mongo) = %T", repo)
	}

	cfg = &config.Config{DB: "cassandra"}
	if _, err := Build(cfg, logger); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}
