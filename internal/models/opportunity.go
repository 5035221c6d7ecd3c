// Package models holds the entities shared across the ingestion, ranking, and
// storage layers.
package models

import "time"

// Opportunity is a funding opportunity as stored in the vector index and, in
// denormalized form, alongside a match record.
type Opportunity struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	Summary           string     `json:"summary"`
	Description       string     `json:"description"`
	ExternalURL       string     `json:"external_url"`
	SourceDomain      string     `json:"source_domain"`
	SourceID          string     `json:"source_id"`
	Agency            string     `json:"agency"`
	ProgramID         string     `json:"program_id"`
	Branch            string     `json:"branch"`
	TopicNumber       string     `json:"topic_number"`
	Phase             string     `json:"phase"`
	AwardType         string     `json:"award_type"`
	AmountMin         float64    `json:"amount_min"`
	AmountMax         float64    `json:"amount_max"`
	Currency          string     `json:"currency"`
	// CloseDateDisplay is one of an absolute date string, "Continuous", or
	// "Not specified"; CloseDate holds the parsed form when it's an
	// absolute date, nil for either sentinel.
	CloseDateDisplay string     `json:"close_date"`
	CloseDate        *time.Time `json:"close_date_parsed"`
	OpenDate         *time.Time `json:"open_date"`
	ReleaseDate      *time.Time `json:"release_date"`
	ExpirationAt     *time.Time `json:"expiration_at"`
	AcceptsAnytime   bool       `json:"accepts_anytime"`
	IsRolling        bool       `json:"is_rolling"`
	NormalizedStatus string     `json:"normalized_status"`
	StatusReason     string     `json:"status_reason"`
	StatusConfidence float64    `json:"status_confidence"`
	Keywords         []string   `json:"keywords"`
	Topics           []string   `json:"topics"`
	Year             string     `json:"year"`
	SourceFile       string     `json:"source_file"`
	IngestedAt       time.Time  `json:"ingested_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// CombinedText is the text blob embedded into the vector index: title plus
// description plus keywords, matching the shape the opportunity embedder
// expects.
func (o Opportunity) CombinedText() string {
	text := o.Title + "\n\n" + o.Description
	if len(o.Keywords) > 0 {
		text += "\n\nKeywords: "
		for i, k := range o.Keywords {
			if i > 0 {
				text += ", "
			}
			text += k
		}
	}
	return text
}
