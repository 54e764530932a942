// internal/app/system/validators/validators.go
package validators

import (
	"context"
	"errors"
	"fmt"
	"strings"

	runstore "github.com/dalemusser/stratabox/internal/app/store/runs"
	"github.com/dalemusser/stratabox/internal/app/system/status"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// schemaSpec pairs a collection with its JSON-Schema validator.
type schemaSpec struct {
	name   string
	schema func() bson.M
}

var specs = []schemaSpec{
	{"ranking_datasets", rankingDatasetSchema},
	{"daily_datasets", dailyDatasetSchema},
	{"crawl_runs", crawlRunsSchema},
}

// Collections holds every collection EnsureAll creates.
var Collections = func() []string {
	out := make([]string, len(specs))
	for i, s := range specs {
		out[i] = s.name
	}
	return out
}()

// EnsureAll creates the dataset and run log collections when missing and
// attaches their validators. Servers without collMod support (some
// DocumentDB versions) keep the collections unvalidated.
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var errs []error
	for _, s := range specs {
		if err := ensureValidated(ctx, db, s); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

func ensureValidated(ctx context.Context, db *mongo.Database, s schemaSpec) error {
	if _, err := ensureCollection(ctx, db, s.name); err != nil {
		return err
	}
	err := setValidator(ctx, db, s.name, s.schema())
	if classify(err) == errUnsupported {
		zap.L().Info("validator skipped (unsupported)", zap.String("collection", s.name))
		return nil
	}
	return err
}

// ensureCollection creates name unless it exists. created is true only when
// this call created it.
func ensureCollection(ctx context.Context, db *mongo.Database, name string) (created bool, err error) {
	names, listErr := db.ListCollectionNames(ctx, bson.M{"name": name})
	if listErr == nil && len(names) > 0 {
		return false, nil
	}
	if err := db.CreateCollection(ctx, name); err != nil {
		if classify(err) == errExists {
			return false, nil
		}
		return false, err
	}
	zap.L().Info("created collection", zap.String("collection", name))
	return true, nil
}

func setValidator(ctx context.Context, db *mongo.Database, name string, validator bson.M) error {
	cmd := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
		{Key: "validationLevel", Value: "moderate"},
		{Key: "validationAction", Value: "error"},
	}
	return db.RunCommand(ctx, cmd).Err()
}

type errKind int

const (
	errOther errKind = iota
	errNone
	errExists
	errUnsupported
)

// Server codes: NamespaceExists, CommandNotFound, CommandNotSupported.
var kindByCode = map[int32]errKind{48: errExists, 59: errUnsupported, 115: errUnsupported}

var kindByText = []struct {
	text string
	kind errKind
}{
	{"already exists", errExists},
	{"namespace exists", errExists},
	{"no such command", errUnsupported},
	{"not implemented", errUnsupported},
	{"not supported", errUnsupported},
}

// classify sorts a server error by code, then by message for servers that
// report the condition without a standard code.
func classify(err error) errKind {
	if err == nil {
		return errNone
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		if k, ok := kindByCode[ce.Code]; ok {
			return k
		}
	}
	msg := strings.ToLower(err.Error())
	for _, t := range kindByText {
		if strings.Contains(msg, t.text) {
			return t.kind
		}
	}
	return errOther
}

func rankingDatasetSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"singleton", "snapshot", "history"},
			"properties": bson.M{
				"singleton": bson.M{"enum": bson.A{true}},
				"snapshot": bson.M{
					"bsonType": "object",
					"required": bson.A{"rows"},
					"properties": bson.M{
						"mode": bson.M{"bsonType": "string"},
						"rows": bson.M{"bsonType": "array"},
					},
				},
				"history": bson.M{
					"bsonType": "array",
					"items": bson.M{
						"bsonType": "object",
						"required": bson.A{"key", "samples"},
						"properties": bson.M{
							"key":     bson.M{"bsonType": "string", "minLength": 1},
							"samples": bson.M{"bsonType": "array", "minItems": 1},
						},
					},
				},
			},
		},
	}
}

func dailyDatasetSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"singleton", "date", "records", "trends", "details"},
			"properties": bson.M{
				"singleton": bson.M{"enum": bson.A{true}},
				"date":      bson.M{"bsonType": "string", "pattern": "^([0-9]{8})?$"},
				"records":   bson.M{"bsonType": "array"},
				"trends":    bson.M{"bsonType": "array"},
				"details":   bson.M{"bsonType": "array"},
			},
		},
	}
}

func crawlRunsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"run_id", "kind", "trigger", "status", "started_at"},
			"properties": bson.M{
				"run_id":     bson.M{"bsonType": "string", "minLength": 1},
				"kind":       bson.M{"enum": bson.A{runstore.KindRanking, runstore.KindDaily}},
				"trigger":    bson.M{"enum": bson.A{runstore.TriggerSchedule, runstore.TriggerManual}},
				"status":     bson.M{"enum": bson.A{status.Running, status.Succeeded, status.Empty, status.Failed}},
				"rows":       bson.M{"bsonType": bson.A{"int", "long"}},
				"started_at": bson.M{"bsonType": "date"},
			},
		},
	}
}
