// Package rank implements the Ranker (C7): resolves a researcher's vector,
// queries the Opportunities collection for nearest neighbors, and turns raw
// cosine similarity into a user-facing confidence score.
package rank

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/altitut/fundingmatch/internal/models"
	"github.com/altitut/fundingmatch/internal/vectorindex"
)

// ErrUnknownUser is returned when userID has no researcher profile.
var ErrUnknownUser = errors.New("rank: unknown user")

// defaultK is used when a caller passes k <= 0.
const defaultK = 20

// epsilon guards the normalization denominator against a zero spread when
// every result in the set has the same similarity.
const epsilon = 1e-9

// MatchSaver persists a user's ranked match list. *matchstore.Store
// satisfies this; tests supply a fake so Rank can run without a live
// database.
type MatchSaver interface {
	Save(ctx context.Context, userID string, matches []models.Match) error
}

// Ranker resolves a user's top matches and persists the ranked list.
type Ranker struct {
	Index *vectorindex.Index
	Store MatchSaver

	// ConfidenceFloor, ConfidenceCeiling, ConfidenceExponent parameterize the
	// normalized-similarity-to-confidence transform; zero values fall back
	// to spec defaults (20, 95, 0.7).
	ConfidenceFloor    float64
	ConfidenceCeiling  float64
	ConfidenceExponent float64
}

func (r *Ranker) floor() float64 {
	if r.ConfidenceFloor != 0 {
		return r.ConfidenceFloor
	}
	return 20
}

func (r *Ranker) ceiling() float64 {
	if r.ConfidenceCeiling != 0 {
		return r.ConfidenceCeiling
	}
	return 95
}

func (r *Ranker) exponent() float64 {
	if r.ConfidenceExponent != 0 {
		return r.ConfidenceExponent
	}
	return 0.7
}

// Rank resolves userID's embedding, queries the Opportunities collection for
// the top-k neighbors (optionally narrowed by a metadata filter), computes a
// confidence score for each, sorts the result, and writes the full ranked
// list to the match store keyed by userID.
func (r *Ranker) Rank(ctx context.Context, userID string, k int, where map[string]string) ([]models.Match, error) {
	if k <= 0 {
		k = defaultK
	}

	profileDoc, outcome, err := r.Index.Researchers.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	if outcome == vectorindex.Degraded {
		return nil, fmt.Errorf("rank: researchers collection degraded, cannot resolve %s", userID)
	}

	var profile models.ResearcherProfile
	if err := json.Unmarshal([]byte(profileDoc.Content), &profile); err != nil {
		return nil, fmt.Errorf("rank: decoding profile for %s: %w", userID, err)
	}

	results, outcome, err := r.Index.Opportunities.Query(ctx, profile.CombinedText, k, where)
	if err != nil {
		return nil, fmt.Errorf("rank: querying opportunities for %s: %w", userID, err)
	}
	if outcome == vectorindex.Degraded || len(results) == 0 {
		if err := r.Store.Save(ctx, userID, nil); err != nil {
			return nil, fmt.Errorf("rank: clearing matches for %s: %w", userID, err)
		}
		return nil, nil
	}

	sMin, sMax := results[0].Similarity, results[0].Similarity
	for _, res := range results {
		if res.Similarity < sMin {
			sMin = res.Similarity
		}
		if res.Similarity > sMax {
			sMax = res.Similarity
		}
	}

	now := time.Now().UTC()
	matches := make([]models.Match, 0, len(results))
	for _, res := range results {
		var opp models.Opportunity
		if err := json.Unmarshal([]byte(res.Content), &opp); err != nil {
			continue // a single unparseable document never fails the whole rank
		}

		normalized := float64(res.Similarity)
		spread := float64(sMax - sMin)
		if spread > epsilon {
			normalized = float64(res.Similarity-sMin) / spread
		}
		confidence := r.floor() + (r.ceiling()-r.floor())*math.Pow(normalized, r.exponent())
		confidence = clamp(confidence, r.floor(), r.ceiling())
		confidence = math.Round(confidence*10) / 10

		matches = append(matches, models.Match{
			UserID:           userID,
			OpportunityID:    opp.ID,
			OpportunityTitle: opp.Title,
			Agency:           opp.Agency,
			Deadline:         opp.CloseDateDisplay,
			URL:              opp.ExternalURL,
			Description:      opp.Description,
			Keywords:         opp.Keywords,
			SimilarityScore:  float64(res.Similarity),
			ConfidenceScore:  confidence,
			CreatedAt:        now,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].ConfidenceScore != matches[j].ConfidenceScore {
			return matches[i].ConfidenceScore > matches[j].ConfidenceScore
		}
		if matches[i].SimilarityScore != matches[j].SimilarityScore {
			return matches[i].SimilarityScore > matches[j].SimilarityScore
		}
		return matches[i].OpportunityTitle < matches[j].OpportunityTitle
	})

	if err := r.Store.Save(ctx, userID, matches); err != nil {
		return nil, fmt.Errorf("rank: saving matches for %s: %w", userID, err)
	}

	return matches, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
