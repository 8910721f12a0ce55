// Package mongostore persists monitoring signals in MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/entitlements/pkg/signal"
)

// DefaultCollection holds signals unless another name is given.
const DefaultCollection = "signals"

// SignalStore implements signal.Storage, signal.BatchWriter and signal.Reader.
type SignalStore struct {
	coll *mongo.Collection
}

var (
	_ signal.Storage     = (*SignalStore)(nil)
	_ signal.BatchWriter = (*SignalStore)(nil)
	_ signal.Reader      = (*SignalStore)(nil)
)

// NewSignalStore uses collection name in db. An empty name selects DefaultCollection.
func NewSignalStore(db *mongo.Database, name string) *SignalStore {
	if db == nil {
		panic("mongostore: nil database")
	}
	if name == "" {
		name = DefaultCollection
	}
	return &SignalStore{coll: db.Collection(name)}
}

// EnsureIndexes creates the query indexes and a TTL index that drops
// signals older than retention. A zero retention keeps signals forever.
func (s *SignalStore) EnsureIndexes(ctx context.Context, retention time.Duration) error {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "at", Value: -1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "at", Value: -1}}},
	}
	if retention > 0 {
		models = append(models, mongo.IndexModel{
			Keys:    bson.D{{Key: "at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(retention / time.Second)),
		})
	}
	if _, err := s.coll.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("create signal indexes: %w", err)
	}
	return nil
}

func (s *SignalStore) Store(ctx context.Context, sig signal.Signal) error {
	if _, err := s.coll.InsertOne(ctx, sig); err != nil {
		return errors.Join(signal.ErrStorageNotAvailable, err)
	}
	return nil
}

// StoreBatch inserts unordered so one bad document does not block the rest.
func (s *SignalStore) StoreBatch(ctx context.Context, batch []signal.Signal) error {
	if len(batch) == 0 {
		return nil
	}
	docs := make([]any, 0, len(batch))
	for _, sig := range batch {
		docs = append(docs, sig)
	}
	if _, err := s.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false)); err != nil {
		return errors.Join(signal.ErrStorageNotAvailable, err)
	}
	return nil
}

// Query returns matching signals, newest first.
func (s *SignalStore) Query(ctx context.Context, c signal.Criteria) ([]signal.Signal, error) {
	opts := options.Find().SetSort(bson.D{{Key: "at", Value: -1}})
	if c.Limit > 0 {
		opts.SetLimit(int64(c.Limit))
	}

	cur, err := s.coll.Find(ctx, filterFor(c), opts)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	out := make([]signal.Signal, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode signals: %w", err)
	}
	return out, nil
}

func filterFor(c signal.Criteria) bson.D {
	filter := bson.D{}
	if c.Kind != "" {
		filter = append(filter, bson.E{Key: "kind", Value: string(c.Kind)})
	}
	if c.UserID != "" {
		filter = append(filter, bson.E{Key: "user_id", Value: c.UserID})
	}
	if !c.Since.IsZero() {
		filter = append(filter, bson.E{Key: "at", Value: bson.D{{Key: "$gte", Value: c.Since.UTC()}}})
	}
	return filter
}
