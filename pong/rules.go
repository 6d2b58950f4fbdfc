package pong

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Rules is the fixed configuration of a match. Distances are in field units
// (pixels on the browser canvas) and speeds in units per tick.
type Rules struct {
	FieldWidth   float64 `toml:"field_width"`
	FieldHeight  float64 `toml:"field_height"`
	PaddleWidth  float64 `toml:"paddle_width"`
	PaddleHeight float64 `toml:"paddle_height"`
	PaddleInset  float64 `toml:"paddle_inset"` // distance from the side walls
	PaddleSpeed  float64 `toml:"paddle_speed"`
	BallRadius   float64 `toml:"ball_radius"`
	BallSpeed    float64 `toml:"ball_speed"`
	ServeSpread  float64 `toml:"serve_spread"` // width of the random serve dy range
	AngleFactor  float64 `toml:"angle_factor"` // dy at the very edge is AngleFactor/2
	WinningScore int     `toml:"winning_score"`
	AI           AIRules `toml:"ai"`
}

type AIRules struct {
	Policy      string  `toml:"policy"`       // "proportional", "probabilistic" or "script"
	Threshold   float64 `toml:"threshold"`    // dead zone around the paddle center
	SpeedFactor float64 `toml:"speed_factor"` // proportional: fraction of paddle speed
	Difficulty  float64 `toml:"difficulty"`   // probabilistic: chance to react per tick
	Script      string  `toml:"script"`       // script: path to a lua file, empty for the builtin
}

const (
	PolicyProportional  = "proportional"
	PolicyProbabilistic = "probabilistic"
	PolicyScript        = "script"
)

func DefaultRules() Rules {
	return Rules{
		FieldWidth:   800,
		FieldHeight:  400,
		PaddleWidth:  15,
		PaddleHeight: 100,
		PaddleInset:  20,
		PaddleSpeed:  8,
		BallRadius:   8,
		BallSpeed:    5,
		ServeSpread:  4,
		AngleFactor:  8,
		WinningScore: 5,
		AI: AIRules{
			Policy:      PolicyProportional,
			Threshold:   10,
			SpeedFactor: 0.7,
			Difficulty:  0.8,
		},
	}
}

// LoadRules reads a TOML rules file on top of DefaultRules. An empty path
// returns the defaults.
func LoadRules(path string) (Rules, error) {
	r := DefaultRules()
	if path == "" {
		return r, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return r, fmt.Errorf("read rules %s: %w", path, err)
	}

	md, err := toml.Decode(string(data), &r)
	if err != nil {
		return r, fmt.Errorf("parse rules %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return r, fmt.Errorf("%w: unknown keys in %s: %s", ErrInvalidRules, path, strings.Join(keys, ", "))
	}

	if err := r.Validate(); err != nil {
		return r, fmt.Errorf("rules %s: %w", path, err)
	}

	return r, nil
}

// Validate rejects rule sets the engine cannot run sensibly.
func (r Rules) Validate() error {
	for _, f := range r.floats() {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%w: %s must be a finite number", ErrInvalidRules, f.name)
		}
	}

	switch {
	case r.FieldWidth <= 0 || r.FieldHeight <= 0:
		return fmt.Errorf("%w: field must have positive size", ErrInvalidRules)
	case r.PaddleWidth <= 0 || r.PaddleHeight <= 0:
		return fmt.Errorf("%w: paddles must have positive size", ErrInvalidRules)
	case r.PaddleHeight >= r.FieldHeight:
		return fmt.Errorf("%w: paddle height %.0f does not fit field height %.0f", ErrInvalidRules, r.PaddleHeight, r.FieldHeight)
	case r.PaddleInset < 0 || 2*(r.PaddleInset+r.PaddleWidth) >= r.FieldWidth:
		return fmt.Errorf("%w: paddle inset %.0f does not fit field width %.0f", ErrInvalidRules, r.PaddleInset, r.FieldWidth)
	case r.PaddleSpeed <= 0:
		return fmt.Errorf("%w: paddle speed must be positive", ErrInvalidRules)
	case r.BallRadius <= 0 || 2*r.BallRadius >= r.FieldHeight:
		return fmt.Errorf("%w: ball radius must be positive and fit the field", ErrInvalidRules)
	case r.BallSpeed <= 0 || r.BallSpeed >= r.FieldWidth/4:
		return fmt.Errorf("%w: ball speed must be positive and well below the field width", ErrInvalidRules)
	case r.ServeSpread < 0:
		return fmt.Errorf("%w: serve spread must not be negative", ErrInvalidRules)
	case r.AngleFactor < 0:
		return fmt.Errorf("%w: angle factor must not be negative", ErrInvalidRules)
	case r.WinningScore < 1:
		return fmt.Errorf("%w: winning score must be at least 1", ErrInvalidRules)
	}

	switch r.AI.Policy {
	case PolicyProportional, PolicyProbabilistic, PolicyScript:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidPolicy, r.AI.Policy)
	}

	if r.AI.Threshold < 0 {
		return fmt.Errorf("%w: ai threshold must not be negative", ErrInvalidRules)
	}
	if r.AI.SpeedFactor <= 0 || r.AI.SpeedFactor > 1 {
		return fmt.Errorf("%w: ai speed factor must be in (0, 1]", ErrInvalidRules)
	}
	if r.AI.Difficulty < 0 || r.AI.Difficulty > 1 {
		return fmt.Errorf("%w: ai difficulty must be in [0, 1]", ErrInvalidRules)
	}

	return nil
}

type namedFloat struct {
	name string
	v    float64
}

func (r Rules) floats() []namedFloat {
	return []namedFloat{
		{"field_width", r.FieldWidth},
		{"field_height", r.FieldHeight},
		{"paddle_width", r.PaddleWidth},
		{"paddle_height", r.PaddleHeight},
		{"paddle_inset", r.PaddleInset},
		{"paddle_speed", r.PaddleSpeed},
		{"ball_radius", r.BallRadius},
		{"ball_speed", r.BallSpeed},
		{"serve_spread", r.ServeSpread},
		{"angle_factor", r.AngleFactor},
		{"ai.threshold", r.AI.Threshold},
		{"ai.speed_factor", r.AI.SpeedFactor},
		{"ai.difficulty", r.AI.Difficulty},
	}
}
