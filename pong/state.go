/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package pong implements the match simulation: ball and paddle physics,
// collision and scoring rules, the computer opponent and the tick loop that
// drives them. It has no knowledge of browsers, terminals or storage; those
// talk to it through KeyState and Sink.
package pong

import (
	"fmt"
	"strings"
)

// Side identifies one of the two paddles.
type Side int

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	switch s {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return "unknown"
	}
}

// MarshalText lets sides appear by name in JSON frames.
func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Control is how a paddle receives its intent each tick.
type Control int

const (
	Human Control = iota
	Computer
)

func (c Control) String() string {
	if c == Computer {
		return "ai"
	}
	return "human"
}

func (c Control) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Mode selects who drives the right paddle.
type Mode int

const (
	NoMode Mode = iota
	SinglePlayer
	TwoPlayer
)

// ParseMode accepts the mode names used by the clients.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single", "singleplayer", "single-player", "1":
		return SinglePlayer, nil
	case "two", "twoplayer", "two-player", "2":
		return TwoPlayer, nil
	}
	return NoMode, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

func (m Mode) String() string {
	switch m {
	case SinglePlayer:
		return "single"
	case TwoPlayer:
		return "two"
	default:
		return "none"
	}
}

// Label is the human readable mode name shown on scoreboards.
func (m Mode) Label() string {
	switch m {
	case SinglePlayer:
		return "Vs CPU"
	case TwoPlayer:
		return "2 Players"
	default:
		return ""
	}
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Status is the match state machine:
//
//	NotStarted -> Running <-> Paused
//	Running -> Ended (winning score reached)
//	any -> NotStarted (reset, stop)
type Status int

const (
	NotStarted Status = iota
	Running
	Paused
	Ended
)

func (s Status) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Ended:
		return "ended"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type Ball struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	DX     float64 `json:"dx"`
	DY     float64 `json:"dy"`
	Radius float64 `json:"radius"`
}

// Paddle position is its top-left corner. DY is the intent for the current
// tick as a fraction of the paddle speed, in [-1, 1].
type Paddle struct {
	Side    Side    `json:"side"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	DY      float64 `json:"dy"`
	Score   int     `json:"score"`
	Control Control `json:"control"`
}

// Center returns the paddle's vertical midpoint.
func (p Paddle) Center() float64 {
	return p.Y + p.Height/2
}

// MatchState is everything that changes during one match.
type MatchState struct {
	Ball  Ball
	Left  Paddle
	Right Paddle
}

// Paddle returns a pointer to the paddle on the given side.
func (s *MatchState) Paddle(side Side) *Paddle {
	if side == Right {
		return &s.Right
	}
	return &s.Left
}

// NewMatchState places both paddles at mid-field and the ball at the center
// with zero velocity. Callers serve the ball separately.
func NewMatchState(r Rules) MatchState {
	y := (r.FieldHeight - r.PaddleHeight) / 2

	return MatchState{
		Ball: Ball{
			X:      r.FieldWidth / 2,
			Y:      r.FieldHeight / 2,
			Radius: r.BallRadius,
		},
		Left: Paddle{
			Side:   Left,
			X:      r.PaddleInset,
			Y:      y,
			Width:  r.PaddleWidth,
			Height: r.PaddleHeight,
		},
		Right: Paddle{
			Side:   Right,
			X:      r.FieldWidth - r.PaddleInset - r.PaddleWidth,
			Y:      y,
			Width:  r.PaddleWidth,
			Height: r.PaddleHeight,
		},
	}
}

// Contact records what the ball touched during a tick.
type Contact uint8

const (
	ContactWall Contact = 1 << iota
	ContactLeft
	ContactRight
)

// Has reports whether all bits of c are set.
func (c Contact) Has(flag Contact) bool {
	return c&flag == flag
}

// Snapshot is the read-only view handed to renderers every tick.
type Snapshot struct {
	Tick    uint64  `json:"tick"`
	Status  Status  `json:"status"`
	Mode    Mode    `json:"mode"`
	Ball    Ball    `json:"ball"`
	Left    Paddle  `json:"left"`
	Right   Paddle  `json:"right"`
	Contact Contact `json:"contact"`
}

// ScoreEvent is emitted on every point.
type ScoreEvent struct {
	Scorer Side `json:"scorer"`
	Left   int  `json:"left"`
	Right  int  `json:"right"`
}

// Outcome is the terminal result of a match.
type Outcome struct {
	Winner Side `json:"winner"`
	Left   int  `json:"left"`
	Right  int  `json:"right"`
	Mode   Mode `json:"mode"`
}

// WinnerScore returns the winning side's points.
func (o Outcome) WinnerScore() int {
	if o.Winner == Right {
		return o.Right
	}
	return o.Left
}
