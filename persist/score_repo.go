package persist

import (
	"context"
	"fmt"
	"strconv"
)

// ScoreRepo is the PostgreSQL leaderboard.
type ScoreRepo struct {
	db *DB
}

func NewScoreRepo(db *DB) *ScoreRepo {
	return &ScoreRepo{db: db}
}

func (r *ScoreRepo) SubmitScore(ctx context.Context, s Score) error {
	if err := checkScore(s); err != nil {
		return err
	}

	var userID *int64
	if s.UserID != "" {
		id, err := strconv.ParseInt(s.UserID, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: user id %q", ErrInvalidScore, s.UserID)
		}
		userID = &id
	}

	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO scores (player_name, score, game_mode, user_id)
		 VALUES ($1, $2, $3, $4)`,
		s.PlayerName, s.Score, s.Mode, userID,
	)
	if err != nil {
		return fmt.Errorf("insert score: %w", err)
	}

	return nil
}

func (r *ScoreRepo) TopScores(ctx context.Context, limit int) ([]Score, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT player_name, score, game_mode, created_at
		 FROM scores
		 ORDER BY score DESC, created_at DESC
		 LIMIT $1`, clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("query scores: %w", err)
	}
	defer rows.Close()

	scores := make([]Score, 0, LeaderboardSize)
	for rows.Next() {
		var s Score
		if err := rows.Scan(&s.PlayerName, &s.Score, &s.Mode, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		scores = append(scores, s)
	}

	return scores, rows.Err()
}
