// internal/app/store/dailyset/dailysetstore.go
package dailysetstore

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

// Store provides access to the daily_datasets collection, a singleton
// holding the latest daily list with its trends and cached details.
type Store struct {
	c *mongo.Collection
}

// New creates a new daily dataset store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("daily_datasets")}
}

// Load returns the stored dataset, or an empty one if none was saved yet.
func (s *Store) Load(ctx context.Context) (models.DailyDataset, error) {
	var ds models.DailyDataset
	err := s.c.FindOne(ctx, bson.M{"singleton": true}).Decode(&ds)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.DailyDataset{}, nil
	}
	if err != nil {
		return models.DailyDataset{}, err
	}
	return ds, nil
}

// Save replaces the stored dataset.
func (s *Store) Save(ctx context.Context, ds models.DailyDataset) error {
	now := time.Now().UTC()
	if ds.Records == nil {
		ds.Records = []models.DailyStatRecord{}
	}
	if ds.Trends == nil {
		ds.Trends = []models.TrendSeries{}
	}
	if ds.Details == nil {
		ds.Details = []models.DetailRecord{}
	}

	filter := bson.M{"singleton": true}
	update := bson.M{
		"$set": bson.M{
			"singleton":  true,
			"date":       ds.Date,
			"records":    ds.Records,
			"trends":     ds.Trends,
			"details":    ds.Details,
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
