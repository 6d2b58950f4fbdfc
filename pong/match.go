package pong

import (
	"fmt"
	"io"
	"math/rand/v2"
	"time"
)

// Sink receives everything a renderer needs. Calls happen on the goroutine
// that drives the match and must not block.
type Sink interface {
	Frame(Snapshot)
	Score(ScoreEvent)
	MatchEnded(Outcome)
}

type nopSink struct{}

func (nopSink) Frame(Snapshot)     {}
func (nopSink) Score(ScoreEvent)   {}
func (nopSink) MatchEnded(Outcome) {}

// Match owns the state of one game and runs its ticks. It is not safe for
// concurrent use: a single goroutine issues every call.
type Match struct {
	rules Rules
	rng   *rand.Rand
	ai    AI
	input InputSource
	sink  Sink
	onErr func(error)

	state    MatchState
	status   Status
	aiFailed bool
	mode     Mode
	tick     uint64
	outcome  *Outcome
}

type Option func(*Match)

// WithRand sets the random source used for serves and the probabilistic AI.
func WithRand(rng *rand.Rand) Option {
	return func(m *Match) {
		m.rng = rng
	}
}

// WithAI overrides the policy built from the rules.
func WithAI(ai AI) Option {
	return func(m *Match) {
		m.ai = ai
	}
}

func WithInput(src InputSource) Option {
	return func(m *Match) {
		m.input = src
	}
}

func WithSink(sink Sink) Option {
	return func(m *Match) {
		m.sink = sink
	}
}

// WithErrorHandler receives the first failure reported by the AI policy.
func WithErrorHandler(fn func(error)) Option {
	return func(m *Match) {
		m.onErr = fn
	}
}

func NewMatch(r Rules, opts ...Option) (*Match, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	m := &Match{
		rules: r,
		sink:  nopSink{},
		state: NewMatchState(r),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.rng == nil {
		seed := uint64(time.Now().UnixNano())
		m.rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	if m.input == nil {
		m.input = SharedKeyboard{}
	}
	if m.ai == nil {
		ai, err := NewAI(r.AI, m.rng)
		if err != nil {
			return nil, err
		}
		m.ai = ai
	}

	return m, nil
}

// Start begins a fresh match. The right paddle is computer controlled in
// single player mode. Invalid modes are rejected before anything changes.
func (m *Match) Start(mode Mode) error {
	if mode != SinglePlayer && mode != TwoPlayer {
		return fmt.Errorf("%w: %s", ErrInvalidMode, mode)
	}

	m.reset()
	m.mode = mode
	m.state.Left.Control = Human
	m.state.Right.Control = Human
	if mode == SinglePlayer {
		m.state.Right.Control = Computer
	}
	Serve(&m.state.Ball, m.rules, m.rng)
	m.status = Running

	m.publish(0)

	return nil
}

// Pause stops ticks from advancing the match. It is a no-op unless running.
func (m *Match) Pause() {
	if m.status != Running {
		return
	}
	m.status = Paused
	m.publish(0)
}

// Resume continues a paused match.
func (m *Match) Resume() {
	if m.status != Paused {
		return
	}
	m.status = Running
	m.publish(0)
}

// Toggle flips between running and paused.
func (m *Match) Toggle() {
	switch m.status {
	case Running:
		m.Pause()
	case Paused:
		m.Resume()
	}
}

// Reset discards the match and waits for a new start. The mode is kept for
// PlayAgain.
func (m *Match) Reset() {
	m.reset()
	m.publish(0)
}

// Stop abandons the match and forgets the mode (back to the menu).
func (m *Match) Stop() {
	m.mode = NoMode
	m.reset()
	m.publish(0)
}

// PlayAgain restarts with the mode of the previous match.
func (m *Match) PlayAgain() error {
	return m.Start(m.mode)
}

func (m *Match) reset() {
	m.state = NewMatchState(m.rules)
	m.state.Left.Control = Human
	if m.mode == SinglePlayer {
		m.state.Right.Control = Computer
	}
	m.status = NotStarted
	m.tick = 0
	m.outcome = nil
}

// Tick advances a running match by one step and reports whether it did.
func (m *Match) Tick() bool {
	if m.status != Running {
		return false
	}

	m.state.Left.DY = float64(m.intent(&m.state.Left))
	m.state.Right.DY = float64(m.intent(&m.state.Right))

	res := Step(&m.state, m.rules, m.rng)
	m.tick++

	if res.Score != nil {
		m.sink.Score(*res.Score)
	}
	if res.Outcome != nil {
		o := *res.Outcome
		o.Mode = m.mode
		m.outcome = &o
		m.status = Ended
		m.sink.MatchEnded(o)
	}

	m.publish(res.Contact)

	return true
}

func (m *Match) intent(p *Paddle) Intent {
	if p.Control == Computer {
		i := m.ai.Intent(m.state.Ball, *p)
		m.checkAI()
		return clampIntent(i)
	}
	return MapIntent(m.input.Keys(p.Side), BindingsFor(p.Side))
}

func (m *Match) checkAI() {
	if m.aiFailed {
		return
	}
	r, ok := m.ai.(interface{ Err() error })
	if !ok {
		return
	}
	if err := r.Err(); err != nil {
		m.aiFailed = true
		if m.onErr != nil {
			m.onErr(err)
		}
	}
}

func (m *Match) publish(c Contact) {
	m.sink.Frame(m.snapshot(c))
}

func (m *Match) snapshot(c Contact) Snapshot {
	return Snapshot{
		Tick:    m.tick,
		Status:  m.status,
		Mode:    m.mode,
		Ball:    m.state.Ball,
		Left:    m.state.Left,
		Right:   m.state.Right,
		Contact: c,
	}
}

// Snapshot returns the current view of the match.
func (m *Match) Snapshot() Snapshot {
	return m.snapshot(0)
}

func (m *Match) Status() Status {
	return m.status
}

func (m *Match) Mode() Mode {
	return m.mode
}

func (m *Match) Rules() Rules {
	return m.rules
}

// Outcome returns the result once the match has ended.
func (m *Match) Outcome() (Outcome, bool) {
	if m.outcome == nil {
		return Outcome{}, false
	}
	return *m.outcome, true
}

// State exposes the live state for tests and tools. Changing it between
// ticks is allowed; the next tick picks the changes up.
func (m *Match) State() *MatchState {
	return &m.state
}

// Close releases the AI policy if it holds resources.
func (m *Match) Close() error {
	if c, ok := m.ai.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

type CommandKind int

const (
	CmdStart CommandKind = iota + 1
	CmdPause
	CmdResume
	CmdToggle
	CmdReset
	CmdStop
	CmdPlayAgain
)

var commandNames = map[string]CommandKind{
	"start":      CmdStart,
	"pause":      CmdPause,
	"resume":     CmdResume,
	"toggle":     CmdToggle,
	"reset":      CmdReset,
	"stop":       CmdStop,
	"play_again": CmdPlayAgain,
}

// Command is an external control signal for a match.
type Command struct {
	Kind CommandKind
	Mode Mode
}

// ParseCommand validates a command received from a client. The mode is only
// read for "start".
func ParseCommand(kind, mode string) (Command, error) {
	k, ok := commandNames[kind]
	if !ok {
		return Command{}, fmt.Errorf("%w: %q", ErrInvalidCommand, kind)
	}

	cmd := Command{Kind: k}
	if k == CmdStart {
		md, err := ParseMode(mode)
		if err != nil {
			return Command{}, err
		}
		cmd.Mode = md
	}

	return cmd, nil
}

// Apply executes a command.
func (m *Match) Apply(c Command) error {
	switch c.Kind {
	case CmdStart:
		return m.Start(c.Mode)
	case CmdPause:
		m.Pause()
	case CmdResume:
		m.Resume()
	case CmdToggle:
		m.Toggle()
	case CmdReset:
		m.Reset()
	case CmdStop:
		m.Stop()
	case CmdPlayAgain:
		return m.PlayAgain()
	default:
		return fmt.Errorf("%w: %d", ErrInvalidCommand, c.Kind)
	}
	return nil
}
