package pong

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func writeRules(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "rules.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultRulesAreValid(t *testing.T) {
	if err := DefaultRules().Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestLoadRulesEmptyPath(t *testing.T) {
	r, err := LoadRules("")
	if err != nil {
		t.Fatal(err)
	}
	if r != DefaultRules() {
		t.Errorf("LoadRules(\"\") = %+v, want defaults", r)
	}
}

func TestLoadRulesOverrides(t *testing.T) {
	path := writeRules(t, `
winning_score = 11
ball_speed = 6.5

[ai]
policy = "probabilistic"
difficulty = 0.6
`)

	r, err := LoadRules(path)
	if err != nil {
		t.Fatal(err)
	}

	if r.WinningScore != 11 || r.BallSpeed != 6.5 {
		t.Errorf("overrides not applied: %+v", r)
	}
	if r.AI.Policy != PolicyProbabilistic || r.AI.Difficulty != 0.6 {
		t.Errorf("ai overrides not applied: %+v", r.AI)
	}
	if r.FieldWidth != 800 || r.AI.Threshold != 10 {
		t.Errorf("defaults lost: %+v", r)
	}
}

func TestLoadRulesRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"unknown key", `gravity = 9.8`, ErrInvalidRules},
		{"zero winning score", `winning_score = 0`, ErrInvalidRules},
		{"paddle taller than field", `paddle_height = 400`, ErrInvalidRules},
		{"unknown policy", "[ai]\npolicy = \"perfect\"", ErrInvalidPolicy},
		{"difficulty above one", "[ai]\ndifficulty = 1.5", ErrInvalidRules},
		{"nan paddle speed", `paddle_speed = nan`, ErrInvalidRules},
		{"infinite paddle speed", `paddle_speed = inf`, ErrInvalidRules},
		{"negative infinite inset", `paddle_inset = -inf`, ErrInvalidRules},
		{"nan ball speed", `ball_speed = nan`, ErrInvalidRules},
		{"infinite angle factor", `angle_factor = +inf`, ErrInvalidRules},
		{"nan ai threshold", "[ai]\nthreshold = nan", ErrInvalidRules},
		{"nan ai difficulty", "[ai]\ndifficulty = nan", ErrInvalidRules},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadRules(writeRules(t, tc.body))
			if !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestLoadRulesMissingFile(t *testing.T) {
	if _, err := LoadRules(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadRulesMalformed(t *testing.T) {
	if _, err := LoadRules(writeRules(t, `winning_score = = 3`)); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidateRejectsNonFinite(t *testing.T) {
	for name, mutate := range map[string]func(*Rules){
		"field width":     func(r *Rules) { r.FieldWidth = math.Inf(1) },
		"paddle speed":    func(r *Rules) { r.PaddleSpeed = math.NaN() },
		"serve spread":    func(r *Rules) { r.ServeSpread = math.Inf(1) },
		"ai speed factor": func(r *Rules) { r.AI.SpeedFactor = math.NaN() },
	} {
		r := DefaultRules()
		mutate(&r)
		if err := r.Validate(); !errors.Is(err, ErrInvalidRules) {
			t.Errorf("%s: err = %v", name, err)
		}
		if _, err := NewMatch(r); err == nil {
			t.Errorf("%s: match built from non-finite rules", name)
		}
	}
}
