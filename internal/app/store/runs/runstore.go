// internal/app/store/runs/runstore.go
package runstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/stratabox/internal/app/store/storeutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Cycle kinds.
const (
	KindRanking = "ranking"
	KindDaily   = "daily"
)

// Triggers.
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

// Run is the log record of one collection cycle.
type Run struct {
	ID primitive.ObjectID `bson:"_id" json:"-"`

	RunID   string `bson:"run_id" json:"run_id"`   // Generated UUID
	Kind    string `bson:"kind" json:"kind"`       // "ranking", "daily"
	Trigger string `bson:"trigger" json:"trigger"` // "schedule", "manual"
	Status  string `bson:"status" json:"status"`   // see system/status

	// Outcome
	Mode  string `bson:"mode,omitempty" json:"mode,omitempty"` // request mode that produced the rows
	Rows  int    `bson:"rows" json:"rows"`
	Error string `bson:"error,omitempty" json:"error,omitempty"`

	// Per-attempt diagnostics for ranking fetches
	Attempts []Attempt `bson:"attempts,omitempty" json:"attempts,omitempty"`

	// Cycle-specific counters (backfill misses, details fetched, ...)
	Metadata map[string]any `bson:"metadata,omitempty" json:"metadata,omitempty"`

	// Timestamps
	StartedAt   time.Time `bson:"started_at" json:"started_at"`
	CompletedAt time.Time `bson:"completed_at" json:"completed_at"`
	DurationMs  float64   `bson:"duration_ms" json:"duration_ms"`
}

// Attempt is the diagnostic record of one ranking fetch attempt.
type Attempt struct {
	Mode        string  `bson:"mode" json:"mode"`
	Rows        int     `bson:"rows" json:"rows"`
	StatusCode  int     `bson:"status_code,omitempty" json:"status_code,omitempty"`
	Fields      int     `bson:"fields" json:"fields"`
	Error       string  `bson:"error,omitempty" json:"error,omitempty"`
	DurationMs  float64 `bson:"duration_ms" json:"duration_ms"`
	BodyPreview string  `bson:"body_preview,omitempty" json:"body_preview,omitempty"`
}

// Store provides run log persistence.
type Store struct {
	c *mongo.Collection
}

// New creates a new run store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("crawl_runs")}
}

// Create inserts a run record.
func (s *Store) Create(ctx context.Context, run Run) error {
	if run.ID.IsZero() {
		run.ID = primitive.NewObjectID()
	}
	_, err := s.c.InsertOne(ctx, run)
	return err
}

// GetByRunID retrieves a run by its run ID.
func (s *Store) GetByRunID(ctx context.Context, runID string) (*Run, error) {
	var run Run
	if err := s.c.FindOne(ctx, bson.M{"run_id": runID}).Decode(&run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListFilter specifies criteria for listing runs.
type ListFilter struct {
	Kind   string
	Status string
}

// List returns runs matching the filter, newest first.
func (s *Store) List(ctx context.Context, filter ListFilter, page, pageSize int) ([]Run, error) {
	if pageSize > 200 {
		pageSize = 200
	}

	query := bson.M{}
	if filter.Kind != "" {
		query["kind"] = filter.Kind
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}

	opts := storeutil.Paginate(int64(pageSize), int64(page)).
		SetSort(bson.D{{Key: "started_at", Value: -1}})

	cur, err := s.c.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	runs := []Run{}
	if err := cur.All(ctx, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// Latest returns the most recent run of kind, or nil if there is none.
func (s *Store) Latest(ctx context.Context, kind string) (*Run, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "started_at", Value: -1}})
	var run Run
	err := s.c.FindOne(ctx, bson.M{"kind": kind}, opts).Decode(&run)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// DeleteOlderThan deletes runs started before cutoff.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.c.DeleteMany(ctx, bson.M{
		"started_at": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}
