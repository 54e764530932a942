// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// index describes one desired index. Keys are field names, "-" prefixed for
// descending order.
type index struct {
	name   string
	unique bool
	keys   []string
}

func (ix index) model() mongo.IndexModel {
	keys := make(bson.D, 0, len(ix.keys))
	for _, k := range ix.keys {
		if f, ok := strings.CutPrefix(k, "-"); ok {
			keys = append(keys, bson.E{Key: f, Value: -1})
			continue
		}
		keys = append(keys, bson.E{Key: k, Value: 1})
	}
	opts := options.Index().SetName(ix.name)
	if ix.unique {
		opts.SetUnique(true)
	}
	return mongo.IndexModel{Keys: keys, Options: opts}
}

// Desired indexes by collection. The dataset collections hold one singleton
// document each; the run log is listed newest first, by kind and by status.
var desired = []struct {
	collection string
	indexes    []index
}{
	{"ranking_datasets", []index{
		{name: "uniq_rankingdataset_singleton", unique: true, keys: []string{"singleton"}},
	}},
	{"daily_datasets", []index{
		{name: "uniq_dailydataset_singleton", unique: true, keys: []string{"singleton"}},
	}},
	{"crawl_runs", []index{
		{name: "idx_runs_started", keys: []string{"-started_at"}},
		{name: "uniq_runs_run_id", unique: true, keys: []string{"run_id"}},
		{name: "idx_runs_kind_started", keys: []string{"kind", "-started_at"}},
		{name: "idx_runs_status_started", keys: []string{"status", "-started_at"}},
	}},
}

// EnsureAll is called at startup. It is idempotent and reports every
// collection that could not be reconciled so startup fails fast.
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var errs []error
	for _, d := range desired {
		models := make([]mongo.IndexModel, len(d.indexes))
		for i, ix := range d.indexes {
			models[i] = ix.model()
		}
		if err := ensureIndexSet(ctx, db.Collection(d.collection), models); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.collection, err))
		}
	}
	return errors.Join(errs...)
}

type existingIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique *bool  `bson:"unique,omitempty"`
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func isUnique(b *bool) bool { return b != nil && *b }

func listIndexes(ctx context.Context, coll *mongo.Collection) map[string]existingIndex {
	out := map[string]existingIndex{} // sig -> index
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		return out
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var idx existingIndex
		if err := cur.Decode(&idx); err != nil {
			zap.L().Warn("failed to decode existing index",
				zap.String("collection", coll.Name()),
				zap.Error(err))
			continue
		}
		out[keySig(idx.Key)] = idx
	}
	return out
}

// ensureIndexSet creates each desired index unless one with the same keys and
// uniqueness already exists. An index with the same keys but different
// uniqueness is dropped and recreated.
func ensureIndexSet(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) error {
	var errs []error
	existing := listIndexes(ctx, coll)

	for _, m := range models {
		name := *m.Options.Name
		unique := isUnique(m.Options.Unique)
		sig := keySig(m.Keys.(bson.D))
		log := zap.L().With(
			zap.String("collection", coll.Name()),
			zap.String("name", name),
			zap.String("keys", sig),
			zap.Bool("unique", unique))

		if ex, ok := existing[sig]; ok {
			if isUnique(ex.Unique) == unique {
				log.Debug("reusing existing index", zap.String("existing_name", ex.Name))
				continue
			}
			if _, err := coll.Indexes().DropOne(ctx, ex.Name); err != nil {
				log.Warn("drop existing index failed", zap.Error(err))
				errs = append(errs, fmt.Errorf("%s: drop %s: %w", name, ex.Name, err))
				continue
			}
		}

		start := time.Now()
		if _, err := coll.Indexes().CreateOne(ctx, m); err != nil {
			log.Warn("index ensure failed", zap.Error(err))
			if unique && mongo.IsDuplicateKeyError(err) {
				err = fmt.Errorf("duplicates present: %w", err)
			}
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		log.Info("index ensured", zap.Duration("took", time.Since(start)))
	}
	return errors.Join(errs...)
}
