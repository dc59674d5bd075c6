package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/adred-codev/ratefeed/internal/rates"
)

const (
	mongoDatabase   = "rate_db"
	mongoCollection = "rates"
)

// MongoRepository stores rate points as documents in a single collection
// with a compound index serving range-on-time queries per asset.
type MongoRepository struct {
	uri        string
	client     *mongo.Client
	collection *mongo.Collection
	logger     zerolog.Logger
}

func NewMongoRepository(uri string, logger zerolog.Logger) *MongoRepository {
	return &MongoRepository{
		uri:    uri,
		logger: logger.With().Str("storage", "mongo").Logger(),
	}
}

// Initialize connects, pings and ensures the compound index.
func (r *MongoRepository) Initialize(ctx context.Context) error {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(r.uri))
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}

	r.client = client
	r.collection = client.Database(mongoDatabase).Collection(mongoCollection)

	_, err = r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "assetId", Value: 1},
			{Key: "time", Value: 1},
			{Key: "assetName", Value: 1},
			{Key: "value", Value: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}

	r.logger.Info().Str("uri", r.uri).Msg("Mongo repository initialized")
	return nil
}

// History returns the asset's points inside the retention window, oldest
// first. The internal _id is projected away.
func (r *MongoRepository) History(ctx context.Context, assetID int, period time.Duration) ([]rates.Point, error) {
	now := time.Now().Unix()
	cutoff := now - int64(period.Seconds())

	filter := bson.M{
		"assetId": assetID,
		"time":    bson.M{"$gte": cutoff, "$lte": now},
	}
	opts := options.Find().
		SetProjection(bson.M{"_id": 0}).
		SetSort(bson.D{{Key: "time", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer cursor.Close(ctx)

	points := []rates.Point{}
	if err := cursor.All(ctx, &points); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return points, nil
}

// InsertMany performs one bulk insert. Duplicates by (assetId, time) are
// permitted; there is no deduplication.
func (r *MongoRepository) InsertMany(ctx context.Context, points []rates.Point) error {
	if len(points) == 0 {
		return nil
	}

	docs := make([]interface{}, len(points))
	for i, p := range points {
		docs[i] = p
	}

	if _, err := r.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("insert points: %w", err)
	}
	return nil
}

func (r *MongoRepository) Close(ctx context.Context) error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect mongo: %w", err)
	}
	return nil
}
