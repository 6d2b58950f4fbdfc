package pong

import (
	"math"
	"math/rand/v2"
)

// StepResult reports what happened during one engine step.
type StepResult struct {
	Contact Contact
	Score   *ScoreEvent
	Outcome *Outcome
}

// Step advances the match by one tick. Paddle intents must already be set in
// s.Left.DY and s.Right.DY. The order is fixed: paddles, ball translation,
// walls, paddles, scoring, match end.
func Step(s *MatchState, r Rules, rng *rand.Rand) StepResult {
	var res StepResult

	movePaddle(&s.Left, r)
	movePaddle(&s.Right, r)

	s.Ball.X += s.Ball.DX
	s.Ball.Y += s.Ball.DY

	if bounceWalls(&s.Ball, r) {
		res.Contact |= ContactWall
	}

	if s.Ball.DX <= 0 && Collide(&s.Ball, s.Left, r) {
		res.Contact |= ContactLeft
	}
	if s.Ball.DX >= 0 && Collide(&s.Ball, s.Right, r) {
		res.Contact |= ContactRight
	}

	var scorer *Paddle
	switch {
	case s.Ball.X < 0:
		scorer = &s.Right
	case s.Ball.X > r.FieldWidth:
		scorer = &s.Left
	}
	if scorer == nil {
		return res
	}

	scorer.Score++
	Serve(&s.Ball, r, rng)

	res.Score = &ScoreEvent{
		Scorer: scorer.Side,
		Left:   s.Left.Score,
		Right:  s.Right.Score,
	}

	if scorer.Score >= r.WinningScore {
		res.Outcome = &Outcome{
			Winner: scorer.Side,
			Left:   s.Left.Score,
			Right:  s.Right.Score,
		}
	}

	return res
}

func movePaddle(p *Paddle, r Rules) {
	p.Y += p.DY * r.PaddleSpeed
	p.Y = clamp(p.Y, 0, r.FieldHeight-p.Height)
}

// bounceWalls reflects the ball off the top and bottom walls and pins it to
// the wall so it cannot sink in across ticks.
func bounceWalls(b *Ball, r Rules) bool {
	switch {
	case b.Y-b.Radius <= 0:
		b.Y = b.Radius
		b.DY = math.Abs(b.DY)
	case b.Y+b.Radius >= r.FieldHeight:
		b.Y = r.FieldHeight - b.Radius
		b.DY = -math.Abs(b.DY)
	default:
		return false
	}
	return true
}

// Collide tests the ball's bounding square against the paddle and, on
// contact, sends the ball away from the paddle. The new dy depends on where
// the ball struck: the offset from the paddle center, normalized by the
// paddle height and clamped to [-0.5, 0.5], times AngleFactor.
func Collide(b *Ball, p Paddle, r Rules) bool {
	if b.X-b.Radius > p.X+p.Width || b.X+b.Radius < p.X {
		return false
	}
	if b.Y+b.Radius < p.Y || b.Y-b.Radius > p.Y+p.Height {
		return false
	}

	speed := math.Abs(b.DX)
	if speed == 0 {
		speed = r.BallSpeed
	}
	if p.Side == Right {
		b.DX = -speed
	} else {
		b.DX = speed
	}

	b.DY = HitOffset(*b, p) * r.AngleFactor

	return true
}

// HitOffset is the normalized signed distance from the paddle center to the
// ball center, clamped to [-0.5, 0.5]. Negative means above the center.
func HitOffset(b Ball, p Paddle) float64 {
	return clamp((b.Y-p.Center())/p.Height, -0.5, 0.5)
}

// Serve puts the ball back at the field center heading left or right at the
// base speed with a random dy in [-ServeSpread/2, ServeSpread/2).
func Serve(b *Ball, r Rules, rng *rand.Rand) {
	b.X = r.FieldWidth / 2
	b.Y = r.FieldHeight / 2
	b.Radius = r.BallRadius

	b.DX = r.BallSpeed
	if rng.IntN(2) == 0 {
		b.DX = -r.BallSpeed
	}
	b.DY = (rng.Float64() - 0.5) * r.ServeSpread
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
