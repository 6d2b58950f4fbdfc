package pong

import (
	"errors"
	"testing"
)

type recordingSink struct {
	frames   []Snapshot
	scores   []ScoreEvent
	outcomes []Outcome
}

func (r *recordingSink) Frame(s Snapshot)     { r.frames = append(r.frames, s) }
func (r *recordingSink) Score(e ScoreEvent)   { r.scores = append(r.scores, e) }
func (r *recordingSink) MatchEnded(o Outcome) { r.outcomes = append(r.outcomes, o) }

func newTestMatch(t *testing.T, opts ...Option) (*Match, *recordingSink) {
	t.Helper()

	sink := &recordingSink{}
	opts = append([]Option{WithRand(testRand()), WithSink(sink)}, opts...)

	m, err := NewMatch(DefaultRules(), opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = m.Close() })

	return m, sink
}

func TestStartSetsControlMode(t *testing.T) {
	m, _ := newTestMatch(t)

	if err := m.Start(SinglePlayer); err != nil {
		t.Fatal(err)
	}
	if m.State().Right.Control != Computer || m.State().Left.Control != Human {
		t.Errorf("single player controls = %s/%s", m.State().Left.Control, m.State().Right.Control)
	}

	if err := m.Start(TwoPlayer); err != nil {
		t.Fatal(err)
	}
	if m.State().Right.Control != Human {
		t.Errorf("two player right control = %s", m.State().Right.Control)
	}
}

func TestStartRejectsInvalidMode(t *testing.T) {
	m, sink := newTestMatch(t)

	if err := m.Start(NoMode); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("Start(NoMode) err = %v", err)
	}
	if m.Status() != NotStarted || len(sink.frames) != 0 {
		t.Errorf("invalid start changed the match: status %s, %d frames", m.Status(), len(sink.frames))
	}

	if _, err := ParseMode("three"); !errors.Is(err, ErrInvalidMode) {
		t.Errorf("ParseMode(three) err = %v", err)
	}
	for _, s := range []string{"single", "two", " Single "} {
		if _, err := ParseMode(s); err != nil {
			t.Errorf("ParseMode(%q) err = %v", s, err)
		}
	}
}

func TestStatusTransitions(t *testing.T) {
	m, _ := newTestMatch(t)

	if m.Tick() {
		t.Error("ticked before start")
	}

	m.Pause()
	if m.Status() != NotStarted {
		t.Errorf("pause before start moved to %s", m.Status())
	}

	if err := m.Start(TwoPlayer); err != nil {
		t.Fatal(err)
	}
	if m.Status() != Running {
		t.Fatalf("status after start = %s", m.Status())
	}

	m.Pause()
	m.Pause()
	if m.Status() != Paused {
		t.Fatalf("status after double pause = %s", m.Status())
	}

	before := *m.State()
	for i := 0; i < 10; i++ {
		if m.Tick() {
			t.Fatal("ticked while paused")
		}
	}
	if *m.State() != before {
		t.Error("state changed while paused")
	}

	m.Toggle()
	if m.Status() != Running {
		t.Fatalf("status after toggle = %s", m.Status())
	}
	m.Toggle()
	m.Resume()
	if m.Status() != Running {
		t.Fatalf("status after resume = %s", m.Status())
	}

	m.Reset()
	if m.Status() != NotStarted || m.Mode() != TwoPlayer {
		t.Errorf("after reset status %s mode %s", m.Status(), m.Mode())
	}

	if err := m.PlayAgain(); err != nil {
		t.Fatal(err)
	}
	if m.Status() != Running {
		t.Errorf("status after play again = %s", m.Status())
	}

	m.Stop()
	if m.Status() != NotStarted || m.Mode() != NoMode {
		t.Errorf("after stop status %s mode %s", m.Status(), m.Mode())
	}
	if err := m.PlayAgain(); !errors.Is(err, ErrInvalidMode) {
		t.Errorf("play again after stop err = %v", err)
	}
}

func TestTickUsesInputAndAI(t *testing.T) {
	keys := NewKeySet("KeyS")
	m, _ := newTestMatch(t, WithInput(SharedKeyboard{State: keys}))

	if err := m.Start(SinglePlayer); err != nil {
		t.Fatal(err)
	}
	r := m.Rules()
	startY := m.State().Left.Y

	m.State().Ball = Ball{X: 400, Y: 350, DX: 1, Radius: r.BallRadius}
	m.Tick()

	if got := m.State().Left.Y; got != startY+r.PaddleSpeed {
		t.Errorf("left paddle y = %v, want %v", got, startY+r.PaddleSpeed)
	}
	if got := m.State().Right.DY; got != r.AI.SpeedFactor {
		t.Errorf("ai intent = %v, want %v toward the ball", got, r.AI.SpeedFactor)
	}

	// Human keys for the right paddle are ignored in single player mode.
	keys.Replace([]string{"KeyI"})
	m.Tick()
	if got := m.State().Right.DY; got != r.AI.SpeedFactor {
		t.Errorf("ai intent after KeyI = %v", got)
	}
}

func TestMatchEndsAtWinningScore(t *testing.T) {
	m, sink := newTestMatch(t)
	if err := m.Start(SinglePlayer); err != nil {
		t.Fatal(err)
	}
	r := m.Rules()

	for point := 1; point <= r.WinningScore; point++ {
		m.State().Ball = Ball{X: r.FieldWidth - 1, Y: 30, DX: r.BallSpeed, Radius: r.BallRadius}
		if !m.Tick() {
			t.Fatalf("point %d: tick did not run", point)
		}
		if got := m.State().Left.Score; got != point {
			t.Fatalf("left score = %d, want %d", got, point)
		}
	}

	if m.Status() != Ended {
		t.Fatalf("status = %s, want ended", m.Status())
	}
	if len(sink.scores) != r.WinningScore {
		t.Errorf("%d score events, want %d", len(sink.scores), r.WinningScore)
	}
	if len(sink.outcomes) != 1 {
		t.Fatalf("%d outcomes, want 1", len(sink.outcomes))
	}

	o := sink.outcomes[0]
	if o.Winner != Left || o.Left != r.WinningScore || o.Right != 0 || o.Mode != SinglePlayer {
		t.Errorf("outcome = %+v", o)
	}
	if got, ok := m.Outcome(); !ok || got != o {
		t.Errorf("Outcome() = %+v, %v", got, ok)
	}

	last := sink.frames[len(sink.frames)-1]
	if last.Status != Ended {
		t.Errorf("last frame status = %s", last.Status)
	}

	m.State().Ball = Ball{X: r.FieldWidth - 1, Y: 30, DX: r.BallSpeed, Radius: r.BallRadius}
	if m.Tick() {
		t.Error("ticked after match end")
	}
	if m.State().Left.Score != r.WinningScore || len(sink.outcomes) != 1 {
		t.Error("scoring continued after match end")
	}

	m.Toggle()
	if m.Status() != Ended {
		t.Errorf("toggle left ended state: %s", m.Status())
	}

	m.Reset()
	if _, ok := m.Outcome(); ok || m.State().Left.Score != 0 {
		t.Error("reset kept the previous match")
	}
}

func TestParseAndApplyCommands(t *testing.T) {
	m, _ := newTestMatch(t)

	cmd, err := ParseCommand("start", "two")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Apply(cmd); err != nil {
		t.Fatal(err)
	}
	if m.Mode() != TwoPlayer || m.Status() != Running {
		t.Fatalf("after start: mode %s status %s", m.Mode(), m.Status())
	}

	for _, step := range []struct {
		kind string
		want Status
	}{
		{"pause", Paused},
		{"resume", Running},
		{"toggle", Paused},
		{"reset", NotStarted},
		{"play_again", Running},
		{"stop", NotStarted},
	} {
		cmd, err := ParseCommand(step.kind, "")
		if err != nil {
			t.Fatalf("%s: %v", step.kind, err)
		}
		if err := m.Apply(cmd); err != nil {
			t.Fatalf("%s: %v", step.kind, err)
		}
		if m.Status() != step.want {
			t.Errorf("after %s status = %s, want %s", step.kind, m.Status(), step.want)
		}
	}

	if _, err := ParseCommand("jump", ""); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("unknown command err = %v", err)
	}
	if _, err := ParseCommand("start", "solo"); !errors.Is(err, ErrInvalidMode) {
		t.Errorf("bad start mode err = %v", err)
	}
	if err := m.Apply(Command{}); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("zero command err = %v", err)
	}
}

func TestNewMatchRejectsInvalidRules(t *testing.T) {
	r := DefaultRules()
	r.WinningScore = 0

	if _, err := NewMatch(r); !errors.Is(err, ErrInvalidRules) {
		t.Errorf("err = %v, want ErrInvalidRules", err)
	}
}
