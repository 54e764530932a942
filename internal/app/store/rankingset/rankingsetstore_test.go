package rankingsetstore

import (
	"testing"
	"time"

	"github.com/dalemusser/stratabox/internal/domain/models"
	"github.com/dalemusser/stratabox/internal/testutil"
)

func TestStore_Load_Empty(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	ds, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !ds.Snapshot.IsZero() || len(ds.History) != 0 {
		t.Errorf("Load() = %+v, want empty dataset", ds)
	}
}

func TestStore_SaveAndLoad(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	row := models.RankingRecord{EntityCode: "20231594", DisplayTitle: "파묘", Rank: 1, ReservationShare: 35.5, CapturedAt: at}
	ds := models.RankingDataset{
		Snapshot: models.RankingSnapshot{CapturedAt: at, Mode: "fixed", Rows: []models.RankingRecord{row}},
		History: []models.SnapshotSeries{
			{Key: "code:20231594", EntityCode: "20231594", DisplayTitle: "파묘", Samples: []models.RankingRecord{row}},
		},
	}
	if err := store.Save(ctx, ds); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got.Snapshot.Rows) != 1 || got.Snapshot.Rows[0].DisplayTitle != "파묘" {
		t.Errorf("Snapshot.Rows = %+v", got.Snapshot.Rows)
	}
	if !got.Snapshot.CapturedAt.Equal(at) {
		t.Errorf("CapturedAt = %v, want %v", got.Snapshot.CapturedAt, at)
	}
	if len(got.History) != 1 || len(got.History[0].Samples) != 1 {
		t.Errorf("History = %+v", got.History)
	}
	if got.UpdatedAt == nil {
		t.Error("UpdatedAt not set")
	}
}

func TestStore_SaveIsSingleton(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	for i := 1; i <= 3; i++ {
		ds := models.RankingDataset{Snapshot: models.RankingSnapshot{
			CapturedAt: time.Now().UTC(),
			Rows:       make([]models.RankingRecord, i),
		}}
		if err := store.Save(ctx, ds); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	n, err := db.Collection("ranking_datasets").CountDocuments(ctx, map[string]any{})
	if err != nil {
		t.Fatalf("CountDocuments() error = %v", err)
	}
	if n != 1 {
		t.Errorf("documents = %d, want 1", n)
	}

	snap, err := store.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(snap.Rows) != 3 {
		t.Errorf("len(Rows) = %d, want 3 (last save wins)", len(snap.Rows))
	}
}
