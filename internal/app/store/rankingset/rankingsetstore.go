// internal/app/store/rankingset/rankingsetstore.go
package rankingsetstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/stratabox/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store provides access to the ranking_datasets collection.
// The dataset is a singleton document.
type Store struct {
	c *mongo.Collection
}

// New creates a new ranking dataset store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("ranking_datasets")}
}

// Load returns the stored dataset, or an empty one if none was saved yet.
func (s *Store) Load(ctx context.Context) (models.RankingDataset, error) {
	var ds models.RankingDataset
	err := s.c.FindOne(ctx, bson.M{"singleton": true}).Decode(&ds)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.RankingDataset{}, nil
	}
	if err != nil {
		return models.RankingDataset{}, err
	}
	return ds, nil
}

// Snapshot returns only the current snapshot, skipping the history.
func (s *Store) Snapshot(ctx context.Context) (models.RankingSnapshot, error) {
	var ds models.RankingDataset
	opts := options.FindOne().SetProjection(bson.M{"snapshot": 1, "updated_at": 1})
	err := s.c.FindOne(ctx, bson.M{"singleton": true}, opts).Decode(&ds)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.RankingSnapshot{}, nil
	}
	if err != nil {
		return models.RankingSnapshot{}, err
	}
	return ds.Snapshot, nil
}

// Save replaces the stored dataset.
func (s *Store) Save(ctx context.Context, ds models.RankingDataset) error {
	now := time.Now().UTC()
	if ds.History == nil {
		ds.History = []models.SnapshotSeries{}
	}
	if ds.Snapshot.Rows == nil {
		ds.Snapshot.Rows = []models.RankingRecord{}
	}

	filter := bson.M{"singleton": true}
	update := bson.M{
		"$set": bson.M{
			"singleton":  true,
			"snapshot":   ds.Snapshot,
			"history":    ds.History,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{
			"_id": primitive.NewObjectID(),
		},
	}

	opts := options.Update().SetUpsert(true)
	_, err := s.c.UpdateOne(ctx, filter, update, opts)
	return err
}
