package ledger

import (
	"path/filepath"
	"testing"
	"time"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMarkAndQueryExported(t *testing.T) {
	db := testDB(t)

	if err := db.MarkExported("-1001", []int{1, 2, 3}); err != nil {
		t.Fatalf("MarkExported() error = %v", err)
	}

	seen, err := db.Exported("-1001", []int{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("Exported() error = %v", err)
	}
	for _, id := range []int{1, 2, 3} {
		if !seen[id] {
			t.Errorf("message %d not marked exported", id)
		}
	}
	if seen[4] {
		t.Error("message 4 reported exported without being marked")
	}
}

func TestExportedScopedByChat(t *testing.T) {
	db := testDB(t)

	if err := db.MarkExported("chat-a", []int{7}); err != nil {
		t.Fatal(err)
	}

	seen, err := db.Exported("chat-b", []int{7})
	if err != nil {
		t.Fatal(err)
	}
	if seen[7] {
		t.Error("message 7 leaked across chats")
	}
}

func TestMarkExportedIdempotent(t *testing.T) {
	db := testDB(t)

	for i := 0; i < 2; i++ {
		if err := db.MarkExported("-1001", []int{10, 11}); err != nil {
			t.Fatalf("MarkExported() pass %d error = %v", i+1, err)
		}
	}

	seen, err := db.Exported("-1001", []int{10, 11})
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 {
		t.Errorf("seen = %d entries, want 2", len(seen))
	}
}

func TestExportedEmptyIDs(t *testing.T) {
	db := testDB(t)
	seen, err := db.Exported("-1001", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 0 {
		t.Errorf("seen = %v, want empty", seen)
	}
}

func TestRecordAndListRuns(t *testing.T) {
	db := testDB(t)

	now := time.Now().UnixMilli()
	runs := []Run{
		{ID: "run-1", ChatID: "a", ChatTitle: "A", Count: 5, StartedAt: now - 100, FinishedAt: now - 90},
		{ID: "run-2", ChatID: "b", ChatTitle: "B", Count: 2, StartedAt: now, FinishedAt: now + 10},
	}
	for _, r := range runs {
		if err := db.RecordRun(r); err != nil {
			t.Fatalf("RecordRun(%s) error = %v", r.ID, err)
		}
	}

	got, err := db.RecentRuns(10)
	if err != nil {
		t.Fatalf("RecentRuns() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "run-2" {
		t.Errorf("first run = %s, want run-2 (newest first)", got[0].ID)
	}
	if got[0].Count != 2 || got[1].Count != 5 {
		t.Errorf("counts = %d,%d, want 2,5", got[0].Count, got[1].Count)
	}
}
