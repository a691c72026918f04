package runlog

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecordAndList(t *testing.T) {
	db := openTestDB(t)

	id, err := db.Record("2025-01-01", 3, "a fine day", StatusOK)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if id == "" {
		t.Fatal("empty run id")
	}

	runs, err := db.List(10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	r := runs[0]
	if r.ID != id || r.Date != "2025-01-01" || r.MessageCount != 3 ||
		r.Narrative != "a fine day" || r.Status != StatusOK {
		t.Errorf("run = %+v", r)
	}
	if r.CreatedAt.IsZero() {
		t.Error("zero created_at")
	}
}

func TestListNewestFirst(t *testing.T) {
	db := openTestDB(t)

	for _, date := range []string{"2025-01-01", "2025-01-02", "2025-01-03"} {
		if _, err := db.Record(date, 1, "", StatusOK); err != nil {
			t.Fatalf("Record %s: %v", date, err)
		}
	}
	runs, err := db.List(10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 3 || runs[0].Date != "2025-01-03" || runs[2].Date != "2025-01-01" {
		t.Errorf("runs = %+v, want newest first", runs)
	}
}

func TestListLimits(t *testing.T) {
	db := openTestDB(t)

	for i := 0; i < 5; i++ {
		if _, err := db.Record("2025-01-01", i, "", StatusFailed); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	runs, err := db.List(2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("limit 2 returned %d runs", len(runs))
	}

	// Out-of-range limits fall back to the default.
	runs, err = db.List(0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 5 {
		t.Errorf("limit 0 returned %d runs, want all 5", len(runs))
	}
	runs, err = db.List(1000)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 5 {
		t.Errorf("limit 1000 returned %d runs, want all 5", len(runs))
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := db.Record("2025-01-01", 1, "", StatusOK); err != nil {
		t.Fatalf("Record: %v", err)
	}
	db.Close()

	db2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()
	runs, err := db2.List(10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("runs after reopen = %d, want 1", len(runs))
	}
}
