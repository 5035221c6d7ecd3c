package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
)

// Shape identifies which recognized CSV column layout a file carries.
type Shape string

const (
	ShapeNSF     Shape = "nsf"
	ShapeSBIR    Shape = "sbir"
	ShapeGeneric Shape = "generic"
)

var nsfColumns = []string{
	"Title", "Synopsis", "Program ID", "Award Type",
	"Next due date (Y-m-d)", "Posted date (Y-m-d)", "URL",
	"Solicitation URL", "Status", "Proposals accepted anytime",
}

var sbirColumns = []string{
	"Topic Title", "Topic Description", "Agency", "Branch", "Program",
	"Phase", "Topic Number", "Close Date", "Release Date", "Open Date",
	"Solicitation Agency URL", "SBIRTopicLink", "Solicitation Status",
	"Solicitation Year",
}

var titleLikeColumns = []string{"Title", "Topic Title", "Name", "Opportunity Title"}
var descriptionLikeColumns = []string{"Synopsis", "Topic Description", "Description", "Summary"}

// DetectShape classifies a CSV header row. Column name matching is
// case-sensitive against the enumerated NSF/SBIR sets; anything else that
// still carries a title-like and a description-like column falls through to
// generic.
func DetectShape(header []string) Shape {
	set := make(map[string]struct{}, len(header))
	for _, h := range header {
		set[h] = struct{}{}
	}

	if containsAll(set, nsfColumns) {
		return ShapeNSF
	}
	if containsAll(set, sbirColumns) {
		return ShapeSBIR
	}
	return ShapeGeneric
}

func containsAll(set map[string]struct{}, cols []string) bool {
	for _, c := range cols {
		if _, ok := set[c]; !ok {
			return false
		}
	}
	return true
}

// RowParseError records a single CSV data row that couldn't be converted to
// a RawOpportunity. It's a row-level failure, not a file-level one: ParseCSV
// skips the row and keeps going rather than aborting the file.
type RowParseError struct {
	RowIndex int
	Reason   string
}

// ParseCSV reads every data row from r and converts it to a RawOpportunity
// according to the detected shape. A generic row must carry at least one
// title-like and one description-like column; a row that doesn't is reported
// in the returned []RowParseError and skipped, not treated as a file-level
// failure. Only a malformed CSV structure itself (an unreadable record) fails
// the whole read.
func ParseCSV(r io.Reader) ([]RawOpportunity, []RowParseError, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("ingest: reading csv header: %w", err)
	}
	shape := DetectShape(header)

	var out []RawOpportunity
	var rowErrors []RowParseError
	rowIdx := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return out, rowErrors, fmt.Errorf("ingest: reading csv row %d: %w", rowIdx, err)
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}

		var raw RawOpportunity
		switch shape {
		case ShapeNSF:
			raw = nsfRowToRaw(row)
		case ShapeSBIR:
			raw = sbirRowToRaw(row)
		default:
			raw, err = genericRowToRaw(row)
			if err != nil {
				rowErrors = append(rowErrors, RowParseError{RowIndex: rowIdx, Reason: err.Error()})
				rowIdx++
				continue
			}
		}
		raw.RawTags = extractKeywords(raw.Description, 10)
		raw.RowIndex = rowIdx
		out = append(out, raw)
		rowIdx++
	}

	return out, rowErrors, nil
}

func nsfRowToRaw(row map[string]string) RawOpportunity {
	return RawOpportunity{
		Title:          row["Title"],
		Description:    row["Synopsis"],
		AgencyName:     "NSF",
		SourceDomain:   string(ShapeNSF),
		ProgramID:      row["Program ID"],
		SourceID:       row["Program ID"],
		AwardType:      row["Award Type"],
		RawDeadline:    row["Next due date (Y-m-d)"],
		RawOpenDate:    row["Posted date (Y-m-d)"],
		ExternalURL:    firstNonEmpty(row["URL"], row["Solicitation URL"]),
		RawStatus:      row["Status"],
		AcceptsAnytime: strings.EqualFold(row["Proposals accepted anytime"], "true"),
		Extra:          row,
	}
}

func sbirRowToRaw(row map[string]string) RawOpportunity {
	return RawOpportunity{
		Title:        row["Topic Title"],
		Description:  row["Topic Description"],
		AgencyName:   row["Agency"],
		SourceDomain: string(ShapeSBIR),
		Branch:       row["Branch"],
		TopicNumber:  row["Topic Number"],
		SourceID:     row["Topic Number"],
		Phase:        row["Phase"],
		Year:         row["Solicitation Year"],
		RawDeadline:  row["Close Date"],
		RawOpenDate:  firstNonEmpty(row["Open Date"], row["Release Date"]),
		ExternalURL:  firstNonEmpty(row["Solicitation Agency URL"], row["SBIRTopicLink"]),
		RawStatus:    row["Solicitation Status"],
		Extra:        row,
	}
}

func genericRowToRaw(row map[string]string) (RawOpportunity, error) {
	title := firstMatchingColumn(row, titleLikeColumns)
	desc := firstMatchingColumn(row, descriptionLikeColumns)
	if title == "" || desc == "" {
		return RawOpportunity{}, fmt.Errorf("generic row missing a title-like or description-like column")
	}

	raw := RawOpportunity{
		Title:        title,
		Description:  desc,
		SourceDomain: string(ShapeGeneric),
		Extra:        row,
	}
	for _, key := range []string{"URL", "Url", "Link"} {
		if v, ok := row[key]; ok && v != "" {
			raw.ExternalURL = v
			break
		}
	}
	for _, key := range []string{"Agency", "Funder", "Organization"} {
		if v, ok := row[key]; ok && v != "" {
			raw.AgencyName = v
			break
		}
	}
	for _, key := range []string{"Close Date", "Deadline", "Due Date"} {
		if v, ok := row[key]; ok && v != "" {
			raw.RawDeadline = v
			break
		}
	}
	for _, key := range []string{"Award Amount", "Amount", "Award Ceiling", "Budget"} {
		if v, ok := row[key]; ok && v != "" {
			raw.RawAmount = v
			break
		}
	}
	return raw, nil
}

func firstMatchingColumn(row map[string]string, candidates []string) string {
	for _, c := range candidates {
		if v, ok := row[c]; ok && v != "" {
			return v
		}
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

var wordPattern = regexp.MustCompile(`[a-zA-Z]{4,}`)

var keywordStopwords = map[string]struct{}{
	"the": {}, "and": {}, "but": {}, "for": {}, "with": {}, "from": {},
	"was": {}, "were": {}, "been": {}, "will": {}, "would": {}, "could": {},
	"should": {}, "might": {}, "must": {}, "this": {}, "that": {}, "these": {},
	"those": {}, "have": {}, "has": {}, "had": {},
}

// extractKeywords is a simple frequency-based keyword extractor: lowercase
// words of 4+ letters, minus common stopwords, ranked by frequency.
func extractKeywords(text string, max int) []string {
	words := wordPattern.FindAllString(strings.ToLower(text), -1)
	freq := make(map[string]int, len(words))
	order := make([]string, 0, len(words))
	for _, w := range words {
		if _, stop := keywordStopwords[w]; stop {
			continue
		}
		if _, seen := freq[w]; !seen {
			order = append(order, w)
		}
		freq[w]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return freq[order[i]] > freq[order[j]]
	})
	if len(order) > max {
		order = order[:max]
	}
	return order
}
