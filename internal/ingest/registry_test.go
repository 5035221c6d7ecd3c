package ingest

import (
	"path/filepath"
	"testing"
	"time"
)

func TestRegistry_PutHasFlushLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed_opportunities.json")
	r, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Has("abc") {
		t.Fatal("expected empty registry to not have abc")
	}

	r.Put("abc", RegistryEntry{Title: "Grant", Agency: "NSF", ProcessedAt: time.Now()})
	if !r.Has("abc") {
		t.Fatal("expected registry to have abc after Put")
	}
	if err := r.Flush(); err != nil {
		t.Fatalf("unexpected flush error: %v", err)
	}

	reloaded, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("unexpected reload error: %v", err)
	}
	if !reloaded.Has("abc") {
		t.Fatal("expected reloaded registry to have abc")
	}
}

func TestRegistry_Delete(t *testing.T) {
	r, _ := LoadRegistry(filepath.Join(t.TempDir(), "registry.json"))
	r.Put("x", RegistryEntry{Title: "T"})
	if !r.Delete("x") {
		t.Fatal("expected delete to report true for an existing entry")
	}
	if r.Delete("x") {
		t.Fatal("expected a second delete to report false")
	}
}

func TestRegistry_DueForCleanup(t *testing.T) {
	r, _ := LoadRegistry(filepath.Join(t.TempDir(), "registry.json"))
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	if !r.DueForCleanup(24*time.Hour, now) {
		t.Fatal("expected a fresh registry to be due for cleanup")
	}
	if err := r.MarkCleanup(now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.DueForCleanup(24*time.Hour, now.Add(time.Hour)) {
		t.Fatal("expected cleanup not to be due again one hour later")
	}
	if !r.DueForCleanup(24*time.Hour, now.Add(25*time.Hour)) {
		t.Fatal("expected cleanup to be due again after 25 hours")
	}
}

func TestTracker_AddRespectsCapAndOrder(t *testing.T) {
	tr := NewTracker(filepath.Join(t.TempDir(), "unprocessed_tracking.json"))
	tr.Cap = 2
	tr.Add(CategoryDuplicates, TrackerItem{RowIndex: 0, Title: "first"})
	tr.Add(CategoryDuplicates, TrackerItem{RowIndex: 1, Title: "second"})
	tr.Add(CategoryDuplicates, TrackerItem{RowIndex: 2, Title: "third"})

	if got := tr.Count(CategoryDuplicates); got != 2 {
		t.Fatalf("expected category capped at 2, got %d", got)
	}
	if tr.Items[CategoryDuplicates][0].Title != "first" {
		t.Fatal("expected row order preserved")
	}
	if err := tr.Flush(); err != nil {
		t.Fatalf("unexpected flush error: %v", err)
	}
}
