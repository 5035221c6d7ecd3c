package models

import "time"

// Match is a single ranked researcher/opportunity pairing. The fields
// through Keywords mirror the funding_matches table columns; the remaining
// fields are filled in on demand by the explainer and never persisted.
type Match struct {
	UserID           string    `json:"user_id"`
	OpportunityID    string    `json:"opportunity_id"`
	OpportunityTitle string    `json:"title"`
	Agency           string    `json:"agency"`
	Deadline         string    `json:"deadline"`
	URL              string    `json:"url"`
	Description      string    `json:"description"`
	Keywords         []string  `json:"keywords"`
	ConfidenceScore  float64   `json:"confidence_score"`
	SimilarityScore  float64   `json:"similarity_score"`
	CreatedAt        time.Time `json:"created_at"`

	Explanation      string            `json:"explanation,omitempty"`
	AlignmentReasons []string          `json:"alignment_reasons,omitempty"`
	ReusableContent  []ReusableContent `json:"reusable_content,omitempty"`
	NextSteps        []string          `json:"next_steps,omitempty"`
}

// ReusableContent points at a snippet of one of the researcher's own
// documents that the explainer judged relevant to a specific match.
type ReusableContent struct {
	Source    string `json:"source"`
	Content   string `json:"content"`
	Relevance string `json:"relevance"`
}
