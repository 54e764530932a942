package validators

import (
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/stratabox/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestEnsureAll(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll() error = %v", err)
	}

	names, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		t.Fatalf("ListCollectionNames() error = %v", err)
	}
	have := make(map[string]bool, len(names))
	for _, n := range names {
		have[n] = true
	}
	for _, coll := range Collections {
		if !have[coll] {
			t.Errorf("collection %s missing after EnsureAll", coll)
		}
	}
}

func TestEnsureAll_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	for i := 0; i < 2; i++ {
		if err := EnsureAll(ctx, db); err != nil {
			t.Fatalf("EnsureAll() pass %d error = %v", i+1, err)
		}
	}
}

func TestEnsureCollection(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, err := ensureCollection(ctx, db, "new_collection")
	if err != nil || !created {
		t.Fatalf("first ensureCollection() = %v, %v; want true, nil", created, err)
	}
	created, err = ensureCollection(ctx, db, "new_collection")
	if err != nil || created {
		t.Fatalf("second ensureCollection() = %v, %v; want false, nil", created, err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errKind
	}{
		{"nil", nil, errNone},
		{"generic", errors.New("some error"), errOther},
		{"exists code", mongo.CommandError{Code: 48, Message: "exists"}, errExists},
		{"exists text", errors.New("Collection already exists"), errExists},
		{"no such command code", mongo.CommandError{Code: 59, Message: "collMod"}, errUnsupported},
		{"not supported code", mongo.CommandError{Code: 115, Message: "impl"}, errUnsupported},
		{"not implemented text", errors.New("NOT IMPLEMENTED"), errUnsupported},
		{"unknown code falls back to text", mongo.CommandError{Code: 1, Message: "feature not supported"}, errUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err); got != tt.want {
				t.Errorf("classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSchemas(t *testing.T) {
	schemas := map[string]bson.M{
		"ranking_datasets": rankingDatasetSchema(),
		"daily_datasets":   dailyDatasetSchema(),
		"crawl_runs":       crawlRunsSchema(),
	}
	for name, schema := range schemas {
		jsonSchema, ok := schema["$jsonSchema"].(bson.M)
		if !ok {
			t.Errorf("%s: $jsonSchema should be a bson.M, got %T", name, schema["$jsonSchema"])
			continue
		}
		if jsonSchema["required"] == nil {
			t.Errorf("%s: schema should have 'required' field", name)
		}
	}
}

func TestCrawlRunsSchema_RejectsUnknownKind(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll() error = %v", err)
	}

	_, err := db.Collection("crawl_runs").InsertOne(ctx, bson.M{
		"run_id":     "r1",
		"kind":       "weekly",
		"trigger":    "manual",
		"status":     "succeeded",
		"started_at": time.Now(),
	})
	if err == nil {
		t.Error("insert with unknown kind should fail validation")
	}
}

func TestRankingDatasetSchema_RequiresSingleton(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll() error = %v", err)
	}

	coll := db.Collection("ranking_datasets")
	valid := bson.M{"singleton": true, "snapshot": bson.M{"rows": bson.A{}}, "history": bson.A{}}
	if _, err := coll.InsertOne(ctx, valid); err != nil {
		t.Fatalf("valid dataset rejected: %v", err)
	}
	if _, err := coll.InsertOne(ctx, bson.M{"snapshot": bson.M{"rows": bson.A{}}}); err == nil {
		t.Error("dataset without singleton flag accepted")
	}
}
