// Package profile builds a ResearcherProfile from a structured profile JSON
// plus any PDFs and URLs it references, and upserts it into the Researchers
// collection.
package profile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/altitut/fundingmatch/internal/models"
	"github.com/altitut/fundingmatch/internal/textextract"
	"github.com/altitut/fundingmatch/internal/vectorindex"
)

// pdfCharCap and urlCharCap bound how much of each source document's text
// enters combined_text, so one oversized PDF or page can't drown out the
// rest of the profile.
const (
	pdfCharCap = 4000
	urlCharCap = 2000
)

// Link is a URL attached to a profile. When Type is set it becomes the
// fetched document's Kind; otherwise Kind comes from the filename/URL
// heuristic in classifyDocument.
type Link struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

// Input is the structured profile JSON a caller supplies.
type Input struct {
	Name              string   `json:"name"`
	Title             string   `json:"title"`
	Department        string   `json:"department"`
	Summary           string   `json:"summary"`
	ResearchInterests []string `json:"research_interests"`
	Education         []string `json:"education"`
	Awards            []string `json:"awards"`
	Experience        []string `json:"experience"`
	Publications      []string `json:"publications"`
	Skills            []string `json:"skills"`
	Links             []Link   `json:"links"`
}

// Builder assembles and persists researcher profiles. Embedding happens
// inside Index.Researchers.Upsert via the index's own embed func, so no
// separate embedding client is threaded through here.
type Builder struct {
	Index *vectorindex.Index

	// FetchTimeout/FetchMaxChars bound each Link's URL fetch; zero
	// FetchTimeout skips URL fetching entirely.
	FetchTimeout  time.Duration
	FetchMaxChars int
}

// ID is the stable researcher id: a hash of the profile's name, so
// re-ingesting the same person under a different title/department still
// replaces the same profile.
func ID(name string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(name))))
	return hex.EncodeToString(sum[:])
}

// classifyDocument buckets a source name into proposal/paper/other by the
// same filename heuristic the explainer uses to group a profile's documents.
func classifyDocument(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "proposal") || strings.Contains(lower, "sbir") || strings.Contains(lower, "nsf"):
		return "proposal"
	case strings.Contains(lower, "paper") || strings.Contains(lower, "journal") || strings.Contains(lower, ".pdf"):
		return "paper"
	default:
		return "other"
	}
}

// Build reads jsonPath, extracts every PDF in pdfPaths and fetches every
// linked URL, assembles combined_text, and upserts the resulting profile
// into the Researchers collection. Re-building the same name replaces the
// prior profile, since both share the same deterministic id.
func (b *Builder) Build(ctx context.Context, jsonPath string, pdfPaths []string) (*models.ResearcherProfile, error) {
	raw, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("profile: reading %s: %w", jsonPath, err)
	}
	var in Input
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("profile: parsing %s: %w", jsonPath, err)
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("profile: %s has no name", jsonPath)
	}

	prof := &models.ResearcherProfile{
		ID:                ID(in.Name),
		Name:              in.Name,
		Title:             in.Title,
		Department:        in.Department,
		Bio:               in.Summary,
		ResearchInterests: in.ResearchInterests,
		Education:         in.Education,
		Awards:            in.Awards,
		Experience:        in.Experience,
		Publications:      in.Publications,
		Skills:            in.Skills,
		UpdatedAt:         time.Now().UTC(),
	}

	for _, path := range pdfPaths {
		text, err := textextract.ExtractPDF(path)
		if err != nil {
			continue // a single unreadable PDF never fails the whole build
		}
		name := filepath.Base(path)
		prof.Documents = append(prof.Documents, models.Document{Name: name, Kind: classifyDocument(name), Text: text})
	}

	if b.FetchTimeout > 0 {
		for _, link := range in.Links {
			page, err := textextract.FetchURL(ctx, link.URL, b.FetchTimeout, b.FetchMaxChars)
			if err != nil {
				continue // a single unreachable URL never fails the whole build
			}
			name := link.URL
			kind := link.Type
			if kind == "" {
				kind = classifyDocument(link.URL)
			}
			prof.Documents = append(prof.Documents, models.Document{Name: name, Kind: kind, Text: page.MainContent})
		}
	}

	prof.CombinedText = combinedText(prof)

	record := vectorindex.Record{
		ID:       prof.ID,
		Metadata: map[string]string{"name": truncate(prof.Name, 100)},
		Text:     prof.CombinedText,
		Entity:   prof,
	}
	outcome, err := b.Index.Researchers.Upsert(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("profile: upserting %s: %w", in.Name, err)
	}
	if outcome == vectorindex.Degraded {
		return nil, fmt.Errorf("profile: researchers collection degraded while upserting %s", in.Name)
	}

	return prof, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// combinedText assembles the labeled-section text embedded for this
// profile: name, summary, research interests, education, awards,
// experience, publications, skills, then each document's text trimmed to
// its per-kind character cap.
func combinedText(p *models.ResearcherProfile) string {
	var b strings.Builder

	section := func(label string, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(value)
	}
	listSection := func(label string, values []string) {
		if len(values) == 0 {
			return
		}
		section(label, strings.Join(values, "; "))
	}

	section("Name", p.Name)
	section("Summary", p.Bio)
	listSection("Research Interests", p.ResearchInterests)
	listSection("Education", p.Education)
	listSection("Awards", p.Awards)
	listSection("Experience", p.Experience)
	listSection("Publications", p.Publications)
	listSection("Skills", p.Skills)

	for _, doc := range p.Documents {
		limit := urlCharCap
		if doc.Kind == "proposal" || doc.Kind == "paper" {
			limit = pdfCharCap
		}
		section(doc.Name, truncate(doc.Text, limit))
	}

	return b.String()
}
