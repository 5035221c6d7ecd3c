package ingest

import (
	"strings"
	"testing"
)

func TestDetectShape_NSF(t *testing.T) {
	header := []string{
		"Title", "Synopsis", "Program ID", "Award Type",
		"Next due date (Y-m-d)", "Posted date (Y-m-d)", "URL",
		"Solicitation URL", "Status", "Proposals accepted anytime",
	}
	if got := DetectShape(header); got != ShapeNSF {
		t.Fatalf("expected ShapeNSF, got %s", got)
	}
}

func TestDetectShape_SBIR(t *testing.T) {
	header := []string{
		"Topic Title", "Topic Description", "Agency", "Branch", "Program",
		"Phase", "Topic Number", "Close Date", "Release Date", "Open Date",
		"Solicitation Agency URL", "SBIRTopicLink", "Solicitation Status",
		"Solicitation Year",
	}
	if got := DetectShape(header); got != ShapeSBIR {
		t.Fatalf("expected ShapeSBIR, got %s", got)
	}
}

func TestDetectShape_UnknownFallsThroughToGeneric(t *testing.T) {
	header := []string{"Title", "Description", "SomeOtherColumn"}
	if got := DetectShape(header); got != ShapeGeneric {
		t.Fatalf("expected ShapeGeneric, got %s", got)
	}
}

func TestParseCSV_NSF(t *testing.T) {
	csvText := `Title,Synopsis,Program ID,Award Type,Next due date (Y-m-d),Posted date (Y-m-d),URL,Solicitation URL,Status,Proposals accepted anytime
Quantum Sensing Research,Exploratory quantum sensing work,24-550,Standard Grant,2026-09-01,2026-01-15,https://nsf.gov/funding/quantum,https://nsf.gov/sol/quantum,Posted,False
`
	rows, rowErrs, err := ParseCSV(strings.NewReader(csvText))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rowErrs) != 0 {
		t.Fatalf("expected no row errors, got %+v", rowErrs)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	r := rows[0]
	if r.Title != "Quantum Sensing Research" || r.AgencyName != "NSF" || r.ProgramID != "24-550" {
		t.Fatalf("unexpected parsed row: %+v", r)
	}
	if r.RawDeadline != "2026-09-01" {
		t.Fatalf("expected deadline 2026-09-01, got %s", r.RawDeadline)
	}
}

func TestParseCSV_SBIR(t *testing.T) {
	csvText := `Topic Title,Topic Description,Agency,Branch,Program,Phase,Topic Number,Close Date,Release Date,Open Date,Solicitation Agency URL,SBIRTopicLink,Solicitation Status,Solicitation Year
FAST Sensing,Fast autonomous sensing topic,NASA,STTR,SBIR,I,T1.01,2099-01-15,2026-01-01,2026-01-02,https://sbir.nasa.gov/t1.01,https://sbir.gov/topic/t1.01,Open,2026
`
	rows, rowErrs, err := ParseCSV(strings.NewReader(csvText))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rowErrs) != 0 {
		t.Fatalf("expected no row errors, got %+v", rowErrs)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	r := rows[0]
	if r.Title != "FAST Sensing" || r.AgencyName != "NASA" || r.TopicNumber != "T1.01" {
		t.Fatalf("unexpected parsed row: %+v", r)
	}
}

func TestParseCSV_GenericRequiresTitleAndDescription(t *testing.T) {
	csvText := "Name,Blurb\nSomething,\n"
	rows, rowErrs, err := ParseCSV(strings.NewReader(csvText))
	if err != nil {
		t.Fatalf("a malformed generic row must not fail the whole file: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected the bad row to be skipped, got %+v", rows)
	}
	if len(rowErrs) != 1 || rowErrs[0].RowIndex != 0 {
		t.Fatalf("expected 1 row error at index 0, got %+v", rowErrs)
	}
}

func TestParseCSV_GenericRowErrorDoesNotAbortRemainingRows(t *testing.T) {
	csvText := "Title,Description\nGood Before,Has a description\nBad Row,\nGood After,Also has a description\n"
	rows, rowErrs, err := ParseCSV(strings.NewReader(csvText))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 || rows[0].Title != "Good Before" || rows[1].Title != "Good After" {
		t.Fatalf("expected the two good rows to survive around the bad one, got %+v", rows)
	}
	if len(rowErrs) != 1 || rowErrs[0].RowIndex != 1 {
		t.Fatalf("expected 1 row error at index 1, got %+v", rowErrs)
	}
}

func TestParseCSV_GenericAcceptsTitleAndDescriptionAliases(t *testing.T) {
	csvText := "Title,Description,URL\nCommunity Grant,Support for local nonprofits,https://example.org/grant\n"
	rows, _, err := ParseCSV(strings.NewReader(csvText))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].Title != "Community Grant" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestParseCSV_GenericPicksUpAwardAmountColumn(t *testing.T) {
	csvText := "Title,Description,Award Amount\nCommunity Grant,Support for local nonprofits,\"$50,000\"\n"
	rows, _, err := ParseCSV(strings.NewReader(csvText))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].RawAmount != "$50,000" {
		t.Fatalf("expected RawAmount to be populated from Award Amount column, got %+v", rows)
	}
}

func TestExtractKeywords_DropsStopwordsAndShortWords(t *testing.T) {
	kws := extractKeywords("The quick brown fox and the lazy dog were running through the quantum field", 5)
	for _, kw := range kws {
		if _, stop := keywordStopwords[kw]; stop {
			t.Fatalf("stopword %q should not appear in keywords", kw)
		}
		if len(kw) < 4 {
			t.Fatalf("keyword %q shorter than 4 letters", kw)
		}
	}
}
