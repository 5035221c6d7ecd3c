package profile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/altitut/fundingmatch/internal/vectorindex"
)

func fakeEmbed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, 8)
	for i, r := range text {
		vec[i%len(vec)] += float32(r % 7)
	}
	return vec, nil
}

func writeProfileJSON(t *testing.T, dir string, in Input) string {
	t.Helper()
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal input: %v", err)
	}
	path := filepath.Join(dir, "profile.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing profile json: %v", err)
	}
	return path
}

func TestBuild_AssemblesCombinedTextAndUpserts(t *testing.T) {
	dir := t.TempDir()
	idx, err := vectorindex.Open(filepath.Join(dir, "index"), fakeEmbed)
	if err != nil {
		t.Fatalf("opening index: %v", err)
	}

	jsonPath := writeProfileJSON(t, dir, Input{
		Name:              "Ada Lovelace",
		Summary:           "Works on analytical engines and early programming notation.",
		ResearchInterests: []string{"computation", "analytical engines"},
		Education:         []string{"Self-taught mathematics"},
		Awards:            []string{"Countess of Lovelace"},
	})

	b := &Builder{Index: idx}
	prof, err := b.Build(context.Background(), jsonPath, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if prof.ID != ID("Ada Lovelace") {
		t.Fatalf("expected deterministic id, got %s", prof.ID)
	}
	if prof.CombinedText == "" {
		t.Fatal("expected a non-empty combined text")
	}
	for _, want := range []string{"Name: Ada Lovelace", "Summary:", "Research Interests: computation; analytical engines", "Education:", "Awards:"} {
		if !strings.Contains(prof.CombinedText, want) {
			t.Fatalf("expected combined text to contain %q, got %q", want, prof.CombinedText)
		}
	}

	doc, outcome, err := idx.Researchers.Get(context.Background(), prof.ID)
	if err != nil {
		t.Fatalf("expected the profile to be retrievable: %v", err)
	}
	if outcome != vectorindex.Ok {
		t.Fatalf("expected Ok outcome, got %v", outcome)
	}
	if doc.ID != prof.ID {
		t.Fatalf("expected stored document id %s, got %s", prof.ID, doc.ID)
	}
}

func TestBuild_RebuildingSameNameReplacesPriorProfile(t *testing.T) {
	dir := t.TempDir()
	idx, err := vectorindex.Open(filepath.Join(dir, "index"), fakeEmbed)
	if err != nil {
		t.Fatalf("opening index: %v", err)
	}
	b := &Builder{Index: idx}
	ctx := context.Background()

	prof1, err := b.Build(ctx, writeProfileJSON(t, mustMkdir(t, dir, "v1"), Input{Name: "Grace Hopper", Summary: "Compilers."}), nil)
	if err != nil {
		t.Fatalf("first build: %v", err)
	}

	prof2, err := b.Build(ctx, writeProfileJSON(t, mustMkdir(t, dir, "v2"), Input{Name: "Grace Hopper", Summary: "Compilers and COBOL."}), nil)
	if err != nil {
		t.Fatalf("second build: %v", err)
	}

	if prof1.ID != prof2.ID {
		t.Fatalf("expected stable id across rebuilds, got %s and %s", prof1.ID, prof2.ID)
	}
	if len(idx.Researchers.AllIDs()) != 1 {
		t.Fatalf("expected exactly 1 researcher after rebuild, got %d", len(idx.Researchers.AllIDs()))
	}
}

func mustMkdir(t *testing.T, base, name string) string {
	t.Helper()
	dir := filepath.Join(base, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	return dir
}

func TestBuild_MissingNameErrors(t *testing.T) {
	dir := t.TempDir()
	idx, err := vectorindex.Open(filepath.Join(dir, "index"), fakeEmbed)
	if err != nil {
		t.Fatalf("opening index: %v", err)
	}
	b := &Builder{Index: idx}

	path := writeProfileJSON(t, dir, Input{Summary: "No name here."})
	if _, err := b.Build(context.Background(), path, nil); err == nil {
		t.Fatal("expected an error for a profile with no name")
	}
}

