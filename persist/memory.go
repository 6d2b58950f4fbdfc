package persist

import (
	"context"
	_ "embed"
	"fmt"
	"slices"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// DemoUserID is the account id handed out in demo mode.
const DemoUserID = "demo-user"

//go:embed demo_scores.yaml
var demoScores []byte

// MemoryAccounts accepts any well-formed credentials. It backs demo mode,
// where no database is configured.
type MemoryAccounts struct {
	now func() time.Time
}

func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{now: time.Now}
}

func (m *MemoryAccounts) Register(ctx context.Context, email, password string) (*Account, error) {
	return m.Login(ctx, email, password)
}

func (m *MemoryAccounts) Login(_ context.Context, email, password string) (*Account, error) {
	email, err := checkCredentials(email, password)
	if err != nil {
		return nil, err
	}

	return &Account{
		ID:          DemoUserID,
		Email:       email,
		DisplayName: DisplayName(email),
		Demo:        true,
		CreatedAt:   m.now(),
	}, nil
}

// MemoryScores keeps the best LeaderboardSize scores in memory.
type MemoryScores struct {
	mu     sync.RWMutex
	scores []Score
	now    func() time.Time
}

// NewMemoryScores returns an empty leaderboard.
func NewMemoryScores() *MemoryScores {
	return &MemoryScores{now: time.Now}
}

// NewDemoScores returns a leaderboard seeded with the demo scores.
func NewDemoScores() (*MemoryScores, error) {
	var seed []Score
	if err := yaml.Unmarshal(demoScores, &seed); err != nil {
		return nil, fmt.Errorf("parse demo scores: %w", err)
	}

	m := NewMemoryScores()
	m.scores = seed
	m.rank()

	return m, nil
}

func (m *MemoryScores) SubmitScore(_ context.Context, s Score) error {
	if err := checkScore(s); err != nil {
		return err
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = m.now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.scores = append(m.scores, s)
	m.rank()

	return nil
}

func (m *MemoryScores) TopScores(_ context.Context, limit int) ([]Score, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := min(clampLimit(limit), len(m.scores))

	return slices.Clone(m.scores[:n]), nil
}

// rank orders by score, newest first among equal scores, and trims to the
// leaderboard size. Callers hold mu.
func (m *MemoryScores) rank() {
	slices.SortStableFunc(m.scores, func(a, b Score) int {
		if a.Score != b.Score {
			return b.Score - a.Score
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if len(m.scores) > LeaderboardSize {
		m.scores = m.scores[:LeaderboardSize]
	}
}
