package vectorindex

import (
	"context"
	"testing"

	"github.com/philippgille/chromem-go"
)

func fakeEmbed(ctx context.Context, text string) ([]float32, error) {
	// A deterministic, content-insensitive stand-in embedding: real tests
	// against a live chromem-go instance would use a hash-based or model
	// embedding, but any fixed-dimension vector exercises Upsert/Query here.
	return []float32{1, 0, 0}, nil
}

func TestOpen_CreatesIsolatedCollections(t *testing.T) {
	root := t.TempDir()

	idx, err := Open(root, fakeEmbed)
	if err != nil {
		t.Fatalf("unexpected error opening index: %v", err)
	}

	if idx.Researchers.dir == idx.Opportunities.dir {
		t.Fatal("researchers and opportunities must use distinct directories")
	}
	if idx.Opportunities.dir == idx.Proposals.dir {
		t.Fatal("opportunities and proposals must use distinct directories")
	}
}

func TestUpsertAndGet_RoundTrips(t *testing.T) {
	idx, err := Open(t.TempDir(), fakeEmbed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	rec := Record{ID: "opp-1", Metadata: map[string]string{"title": "Test Grant"}, Text: "a grant about robotics"}
	if _, err := idx.Opportunities.Upsert(ctx, rec); err != nil {
		t.Fatalf("unexpected upsert error: %v", err)
	}

	doc, _, err := idx.Opportunities.Get(ctx, "opp-1")
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if doc.ID != "opp-1" {
		t.Fatalf("expected id opp-1, got %s", doc.ID)
	}

	ids := idx.Opportunities.AllIDs()
	if len(ids) != 1 || ids[0] != "opp-1" {
		t.Fatalf("expected manifest [opp-1], got %v", ids)
	}
}

func TestDelete_RemovesFromManifest(t *testing.T) {
	idx, err := Open(t.TempDir(), fakeEmbed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	_, _ = idx.Researchers.Upsert(ctx, Record{ID: "r-1", Text: "profile text"})
	if _, err := idx.Researchers.Delete(ctx, "r-1"); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	if ids := idx.Researchers.AllIDs(); len(ids) != 0 {
		t.Fatalf("expected empty manifest after delete, got %v", ids)
	}
}

func TestIsCorruption(t *testing.T) {
	if !isCorruption(errOf("database disk image is malformed")) {
		t.Fatal("expected corruption signature to be detected")
	}
	if isCorruption(errOf("not found")) {
		t.Fatal("did not expect plain not-found error to be treated as corruption")
	}
}

type plainError string

func (e plainError) Error() string { return string(e) }

func errOf(msg string) error { return plainError(msg) }

func TestValidate_ReportsHealthyBeforeAnyCorruption(t *testing.T) {
	idx, err := Open(t.TempDir(), fakeEmbed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	status := idx.Opportunities.Validate()
	if status.Status != "healthy" {
		t.Fatalf("status = %q, want healthy", status.Status)
	}
}

func TestValidate_ReportsDegradedAfterCorruptionRecovery_OthersHealthy(t *testing.T) {
	idx, err := Open(t.TempDir(), fakeEmbed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	_, _ = idx.Opportunities.Upsert(ctx, Record{ID: "opp-1", Text: "robotics grant"})

	// Simulate corrupting only the opportunities collection: force
	// guardedCall down the corruption path directly, the same way a real
	// disk-corruption error would be detected and handled.
	_, _, outcome := guardedCall(idx.Opportunities, func(_ *chromem.Collection) (struct{}, error) {
		return struct{}{}, errOf("database disk image is malformed")
	})
	if outcome != Degraded {
		t.Fatalf("expected this call to report Degraded, got %v", outcome)
	}

	oppStatus := idx.Opportunities.Validate()
	if oppStatus.Status != "degraded" {
		t.Fatalf("opportunities status = %q, want degraded", oppStatus.Status)
	}

	researchersStatus := idx.Researchers.Validate()
	if researchersStatus.Status != "healthy" {
		t.Fatalf("researchers status = %q, want healthy (unaffected collection)", researchersStatus.Status)
	}
}
