package matchstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/altitut/fundingmatch/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the funding_matches table: one ranked opportunity list per user,
// replaced wholesale on every Save.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const selectCols = `user_id, opportunity_id, title, agency, deadline, url,
	description, keywords, confidence_score, similarity_score, created_at`

// Save replaces userID's entire match list atomically: deletes whatever was
// there before, then inserts the new ranking. Passing a nil or empty slice
// clears the user's matches without an error, matching the Ranker's
// degraded-query behavior.
func (s *Store) Save(ctx context.Context, userID string, matches []models.Match) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("matchstore: beginning save for %s: %w", userID, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM funding_matches WHERE user_id = $1", userID); err != nil {
		return fmt.Errorf("matchstore: clearing prior matches for %s: %w", userID, err)
	}

	for _, m := range matches {
		keywords, err := json.Marshal(m.Keywords)
		if err != nil {
			return fmt.Errorf("matchstore: encoding keywords for %s: %w", m.OpportunityID, err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO funding_matches
				(user_id, opportunity_id, title, agency, deadline, url, description,
				 keywords, confidence_score, similarity_score, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (user_id, opportunity_id) DO UPDATE SET
				title = EXCLUDED.title,
				agency = EXCLUDED.agency,
				deadline = EXCLUDED.deadline,
				url = EXCLUDED.url,
				description = EXCLUDED.description,
				keywords = EXCLUDED.keywords,
				confidence_score = EXCLUDED.confidence_score,
				similarity_score = EXCLUDED.similarity_score,
				created_at = EXCLUDED.created_at
		`, userID, m.OpportunityID, m.OpportunityTitle, m.Agency, m.Deadline, m.URL,
			m.Description, keywords, m.ConfidenceScore, m.SimilarityScore, m.CreatedAt)
		if err != nil {
			return fmt.Errorf("matchstore: inserting match %s for %s: %w", m.OpportunityID, userID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("matchstore: committing save for %s: %w", userID, err)
	}
	return nil
}

func scanMatch(scan func(dest ...interface{}) error) (models.Match, error) {
	var m models.Match
	var keywords []byte

	err := scan(
		&m.UserID, &m.OpportunityID, &m.OpportunityTitle, &m.Agency, &m.Deadline,
		&m.URL, &m.Description, &keywords, &m.ConfidenceScore, &m.SimilarityScore, &m.CreatedAt,
	)
	if err != nil {
		return m, err
	}

	if len(keywords) > 0 {
		_ = json.Unmarshal(keywords, &m.Keywords)
	}

	return m, nil
}

// Get returns userID's matches ordered by confidence_score descending, then
// similarity_score descending. limit <= 0 means no limit.
func (s *Store) Get(ctx context.Context, userID string, limit int) ([]models.Match, error) {
	sql := fmt.Sprintf(`
		SELECT %s FROM funding_matches
		WHERE user_id = $1
		ORDER BY confidence_score DESC, similarity_score DESC, title ASC
	`, selectCols)
	args := []interface{}{userID}
	if limit > 0 {
		sql += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("matchstore: querying matches for %s: %w", userID, err)
	}
	defer rows.Close()

	var matches []models.Match
	for rows.Next() {
		m, err := scanMatch(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("matchstore: scanning match for %s: %w", userID, err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("matchstore: iterating matches for %s: %w", userID, err)
	}

	return matches, nil
}

// Count returns how many matches are currently stored for userID.
func (s *Store) Count(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM funding_matches WHERE user_id = $1", userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("matchstore: counting matches for %s: %w", userID, err)
	}
	return count, nil
}

// RecentUser summarizes one user's stored match activity: how many matches
// are stored and when the latest was created.
type RecentUser struct {
	UserID     string
	MatchCount int
	LastSearch time.Time
}

// RecentUsers lists the users with the most recently created matches, most
// recent first, capped at limit (limit <= 0 means no cap).
func (s *Store) RecentUsers(ctx context.Context, limit int) ([]RecentUser, error) {
	sql := `
		SELECT user_id, COUNT(*), MAX(created_at)
		FROM funding_matches
		GROUP BY user_id
		ORDER BY MAX(created_at) DESC
	`
	var args []interface{}
	if limit > 0 {
		sql += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("matchstore: listing recent users: %w", err)
	}
	defer rows.Close()

	var users []RecentUser
	for rows.Next() {
		var u RecentUser
		if err := rows.Scan(&u.UserID, &u.MatchCount, &u.LastSearch); err != nil {
			return nil, fmt.Errorf("matchstore: scanning recent user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("matchstore: iterating recent users: %w", err)
	}

	return users, nil
}
