package models

import "time"

// Document is a single source document (PDF, URL, or inline text) that fed
// into a researcher's combined profile text.
type Document struct {
	Name string `json:"name"`
	Kind string `json:"kind"` // "proposal", "paper", "other"
	Text string `json:"text"`
}

// ResearcherProfile is the entity embedded into the Researchers collection.
type ResearcherProfile struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Title             string     `json:"title"`
	Department        string     `json:"department"`
	Bio               string     `json:"bio"`
	ResearchInterests []string   `json:"research_interests"`
	Education         []string   `json:"education"`
	Awards            []string   `json:"awards"`
	Experience        []string   `json:"experience"`
	Publications      []string   `json:"publications"`
	Skills            []string   `json:"skills"`
	Documents         []Document `json:"documents"`
	CombinedText      string     `json:"combined_text"`
	UpdatedAt         time.Time  `json:"updated_at"`
}
