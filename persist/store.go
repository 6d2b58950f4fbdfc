// Package persist stores player accounts and leaderboard scores, either in
// PostgreSQL or, in demo mode, in memory.
package persist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// LeaderboardSize is the number of scores shown on the leaderboard.
const LeaderboardSize = 10

const maxDisplayName = 32

var (
	ErrMissingCredentials = errors.New("email and password are required")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountExists      = errors.New("account already exists")
	ErrInvalidScore       = errors.New("invalid score")
)

type Account struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Demo        bool      `json:"demo"`
	CreatedAt   time.Time `json:"created_at"`
}

type Score struct {
	PlayerName string    `json:"player_name" yaml:"player_name"`
	Score      int       `json:"score" yaml:"score"`
	Mode       string    `json:"game_mode" yaml:"game_mode"`
	UserID     string    `json:"-" yaml:"-"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

// Accounts registers and authenticates players.
type Accounts interface {
	Register(ctx context.Context, email, password string) (*Account, error)
	Login(ctx context.Context, email, password string) (*Account, error)
}

// Scores is the leaderboard.
type Scores interface {
	SubmitScore(ctx context.Context, s Score) error
	TopScores(ctx context.Context, limit int) ([]Score, error)
}

func checkCredentials(email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return "", ErrMissingCredentials
	}
	if !strings.Contains(email, "@") {
		return "", fmt.Errorf("%w: malformed email", ErrInvalidCredentials)
	}
	return email, nil
}

func checkScore(s Score) error {
	switch {
	case s.Score < 0:
		return fmt.Errorf("%w: negative score %d", ErrInvalidScore, s.Score)
	case s.Mode != "single" && s.Mode != "two":
		return fmt.Errorf("%w: mode %q", ErrInvalidScore, s.Mode)
	case strings.TrimSpace(s.PlayerName) == "":
		return fmt.Errorf("%w: missing player name", ErrInvalidScore)
	}
	return nil
}

// DisplayName derives the public name of a player from their email: the
// local part, NFKC normalized, without control characters, at most 32 runes.
func DisplayName(email string) string {
	local, _, _ := strings.Cut(strings.TrimSpace(email), "@")
	local = norm.NFKC.String(local)

	var b strings.Builder
	n := 0
	for _, r := range local {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			continue
		}
		if n == maxDisplayName {
			break
		}
		b.WriteRune(r)
		n++
	}

	if b.Len() == 0 {
		return "player"
	}
	return b.String()
}

// clampLimit keeps leaderboard queries within 1..LeaderboardSize.
func clampLimit(limit int) int {
	if limit <= 0 || limit > LeaderboardSize {
		return LeaderboardSize
	}
	return limit
}
