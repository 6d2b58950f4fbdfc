package pong

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// AI decides the intent of a computer-controlled paddle. Implementations
// track the ball imperfectly on purpose so they can be beaten.
type AI interface {
	Intent(ball Ball, paddle Paddle) Intent
}

// Proportional moves toward the ball at a fixed fraction of the paddle speed
// whenever the ball is outside the dead zone around the paddle center.
type Proportional struct {
	Threshold   float64
	SpeedFactor float64
}

func (p Proportional) Intent(ball Ball, paddle Paddle) Intent {
	diff := ball.Y - paddle.Center()
	if math.Abs(diff) <= p.Threshold {
		return IntentNone
	}
	if diff > 0 {
		return Intent(p.SpeedFactor)
	}
	return Intent(-p.SpeedFactor)
}

// Probabilistic reacts on a Difficulty share of ticks with a full-speed step
// toward the ball, and sits still on the rest even when misaligned.
type Probabilistic struct {
	Threshold  float64
	Difficulty float64
	Rand       *rand.Rand
}

func (p Probabilistic) Intent(ball Ball, paddle Paddle) Intent {
	if p.Rand.Float64() >= p.Difficulty {
		return IntentNone
	}

	center := paddle.Center()
	switch {
	case center < ball.Y-p.Threshold:
		return IntentDown
	case center > ball.Y+p.Threshold:
		return IntentUp
	}
	return IntentNone
}

// NewAI builds the policy named in the rules.
func NewAI(r AIRules, rng *rand.Rand) (AI, error) {
	switch r.Policy {
	case PolicyProportional, "":
		return Proportional{Threshold: r.Threshold, SpeedFactor: r.SpeedFactor}, nil
	case PolicyProbabilistic:
		return Probabilistic{Threshold: r.Threshold, Difficulty: r.Difficulty, Rand: rng}, nil
	case PolicyScript:
		return NewScriptAI(r)
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidPolicy, r.Policy)
}

func clampIntent(i Intent) Intent {
	switch {
	case math.IsNaN(float64(i)):
		return IntentNone
	case i < IntentUp:
		return IntentUp
	case i > IntentDown:
		return IntentDown
	}
	return i
}
