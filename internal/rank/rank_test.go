package rank

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/altitut/fundingmatch/internal/models"
	"github.com/altitut/fundingmatch/internal/vectorindex"
)

// fakeEmbed maps distinct input texts onto distinct, stable vectors so that
// similarity ordering in a test is predictable without a real model.
func fakeEmbed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, 8)
	for i, r := range text {
		vec[i%len(vec)] += float32(r % 7)
	}
	return vec, nil
}

type fakeSaver struct {
	userID  string
	matches []models.Match
	calls   int
}

func (f *fakeSaver) Save(_ context.Context, userID string, matches []models.Match) error {
	f.userID = userID
	f.matches = matches
	f.calls++
	return nil
}

func newTestIndex(t *testing.T) *vectorindex.Index {
	t.Helper()
	idx, err := vectorindex.Open(filepath.Join(t.TempDir(), "index"), fakeEmbed)
	if err != nil {
		t.Fatalf("opening index: %v", err)
	}
	return idx
}

func TestRank_OrdersByConfidenceThenSimilarityThenTitle(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	profile := models.ResearcherProfile{
		ID:           "researcher-1",
		Name:         "Ada Lovelace",
		CombinedText: "machine learning for climate modeling",
	}
	if _, err := idx.Researchers.Upsert(ctx, vectorindex.Record{
		ID: profile.ID, Text: profile.CombinedText, Entity: profile,
	}); err != nil {
		t.Fatalf("seeding researcher: %v", err)
	}

	opps := []models.Opportunity{
		{ID: "opp-close", Title: "Climate ML Grant", Agency: "NSF", Keywords: []string{"climate", "ml"}},
		{ID: "opp-far", Title: "Unrelated Arts Fund", Agency: "NEA", Keywords: []string{"sculpture"}},
	}
	for _, o := range opps {
		if _, err := idx.Opportunities.Upsert(ctx, vectorindex.Record{
			ID: o.ID, Text: o.CombinedText(), Entity: o,
		}); err != nil {
			t.Fatalf("seeding opportunity %s: %v", o.ID, err)
		}
	}

	saver := &fakeSaver{}
	r := &Ranker{Index: idx, Store: saver}

	matches, err := r.Rank(ctx, profile.ID, 10, nil)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	for _, m := range matches {
		if m.ConfidenceScore < 20 || m.ConfidenceScore > 95 {
			t.Fatalf("confidence %v out of [20,95] bounds for %s", m.ConfidenceScore, m.OpportunityID)
		}
	}
	for i := 1; i < len(matches); i++ {
		if matches[i-1].ConfidenceScore < matches[i].ConfidenceScore {
			t.Fatalf("matches not sorted by confidence descending: %+v", matches)
		}
	}
	if saver.calls != 1 || saver.userID != profile.ID {
		t.Fatalf("expected exactly one save for %s, got %d calls for %s", profile.ID, saver.calls, saver.userID)
	}
	if len(saver.matches) != 2 {
		t.Fatalf("expected saved matches to mirror returned matches, got %d", len(saver.matches))
	}
}

func TestRank_UnknownUserReturnsErrUnknownUser(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	saver := &fakeSaver{}
	r := &Ranker{Index: idx, Store: saver}

	_, err := r.Rank(ctx, "ghost", 10, nil)
	if err == nil {
		t.Fatal("expected an error for an unknown user")
	}
}

func TestRank_NoOpportunitiesClearsExistingMatches(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	profile := models.ResearcherProfile{ID: "researcher-1", Name: "Ada Lovelace", CombinedText: "robotics"}
	if _, err := idx.Researchers.Upsert(ctx, vectorindex.Record{
		ID: profile.ID, Text: profile.CombinedText, Entity: profile,
	}); err != nil {
		t.Fatalf("seeding researcher: %v", err)
	}

	saver := &fakeSaver{}
	r := &Ranker{Index: idx, Store: saver}

	matches, err := r.Rank(ctx, profile.ID, 10, nil)
	if err != nil {
		t.Fatalf("Rank with an empty opportunities collection: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no matches, got %d", len(matches))
	}
	if saver.calls != 1 || saver.matches != nil {
		t.Fatalf("expected Save to be called once with a nil/empty slice, got calls=%d matches=%v", saver.calls, saver.matches)
	}
}

func TestRank_DefaultsKWhenNonPositive(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	profile := models.ResearcherProfile{ID: "researcher-1", Name: "Ada Lovelace", CombinedText: "quantum computing"}
	if _, err := idx.Researchers.Upsert(ctx, vectorindex.Record{
		ID: profile.ID, Text: profile.CombinedText, Entity: profile,
	}); err != nil {
		t.Fatalf("seeding researcher: %v", err)
	}
	if _, err := idx.Opportunities.Upsert(ctx, vectorindex.Record{
		ID: "opp-1", Text: "quantum computing grant", Entity: models.Opportunity{ID: "opp-1", Title: "Quantum Grant"},
	}); err != nil {
		t.Fatalf("seeding opportunity: %v", err)
	}

	saver := &fakeSaver{}
	r := &Ranker{Index: idx, Store: saver}

	matches, err := r.Rank(ctx, profile.ID, 0, nil)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].CreatedAt.IsZero() || matches[0].CreatedAt.After(time.Now().UTC()) {
		t.Fatalf("expected a sane CreatedAt timestamp, got %v", matches[0].CreatedAt)
	}
}

func TestClamp(t *testing.T) {
	if v := clamp(10, 20, 95); v != 20 {
		t.Fatalf("expected clamp to floor at 20, got %v", v)
	}
	if v := clamp(200, 20, 95); v != 95 {
		t.Fatalf("expected clamp to ceiling at 95, got %v", v)
	}
	if v := clamp(50, 20, 95); v != 50 {
		t.Fatalf("expected clamp to pass through in-range values, got %v", v)
	}
}
