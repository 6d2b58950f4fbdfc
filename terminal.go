package main

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode"

	"github.com/Seednode/retropong/pong"
	"github.com/gdamore/tcell/v2"
	"go.uber.org/zap"
)

// Terminals report presses and repeats but never releases, so a key counts
// as held until holdWindow passes without another repeat.
const holdWindow = 300 * time.Millisecond

// heldKeys is a pong.KeyState fed by terminal key presses.
type heldKeys struct {
	mu     sync.Mutex
	last   map[string]time.Time
	window time.Duration
	now    func() time.Time
}

func newHeldKeys(window time.Duration) *heldKeys {
	return &heldKeys{
		last:   make(map[string]time.Time),
		window: window,
		now:    time.Now,
	}
}

// opposites releases the other direction of the same paddle on a press, so
// reversing does not wait for the hold window.
var opposites = func() map[string][]string {
	m := make(map[string][]string)
	for _, b := range []pong.Bindings{pong.LeftBindings, pong.RightBindings} {
		for _, up := range b.Up {
			m[up] = b.Down
		}
		for _, down := range b.Down {
			m[down] = b.Up
		}
	}
	return m
}()

func (k *heldKeys) press(code string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for _, other := range opposites[code] {
		delete(k.last, other)
	}
	k.last[code] = k.now()
}

func (k *heldKeys) Held(code string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	t, ok := k.last[code]
	return ok && k.now().Sub(t) < k.window
}

type termAction int

const (
	actionNone termAction = iota
	actionKey
	actionToggle
	actionPlayAgain
	actionQuit
)

// translateKey maps a terminal key to a browser key code or an action.
func translateKey(key tcell.Key, ch rune) (string, termAction) {
	switch key {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return "", actionQuit
	case tcell.KeyUp:
		return "ArrowUp", actionKey
	case tcell.KeyDown:
		return "ArrowDown", actionKey
	case tcell.KeyRune:
	default:
		return "", actionNone
	}

	switch r := unicode.ToLower(ch); r {
	case 'w', 's', 'i', 'k':
		return "Key" + string(unicode.ToUpper(r)), actionKey
	case ' ':
		return "", actionToggle
	case 'r':
		return "", actionPlayAgain
	case 'q':
		return "", actionQuit
	}
	return "", actionNone
}

// termRenderer draws frames on a tcell screen and plays the match sounds.
type termRenderer struct {
	screen tcell.Screen
	rules  pong.Rules
	names  [2]string
	sounds *sounds
}

var (
	fieldStyle = tcell.StyleDefault.Foreground(tcell.ColorGreen).Background(tcell.ColorBlack)
	textStyle  = fieldStyle.Bold(true)
)

func (t *termRenderer) Frame(s pong.Snapshot) {
	t.sounds.contact(s.Contact)
	t.draw(s)
}

func (t *termRenderer) Score(pong.ScoreEvent) {
	t.sounds.play(pointTone)
}

func (t *termRenderer) MatchEnded(pong.Outcome) {
	t.sounds.play(winTone)
}

func (t *termRenderer) draw(s pong.Snapshot) {
	t.screen.SetStyle(fieldStyle)
	t.screen.Clear()

	cols, rows := t.screen.Size()
	if cols < 20 || rows < 8 {
		t.text(0, 0, "terminal too small")
		t.screen.Show()
		return
	}

	top, height := 1, rows-2

	col := func(x float64) int {
		return clampInt(int(x/t.rules.FieldWidth*float64(cols-1)+0.5), 0, cols-1)
	}
	row := func(y float64) int {
		return top + clampInt(int(y/t.rules.FieldHeight*float64(height-1)+0.5), 0, height-1)
	}

	for y := top; y < top+height; y += 2 {
		t.screen.SetContent(cols/2, y, '┊', nil, fieldStyle)
	}

	for _, p := range []pong.Paddle{s.Left, s.Right} {
		x := col(p.X + p.Width/2)
		for y := row(p.Y); y <= row(p.Y+p.Height); y++ {
			t.screen.SetContent(x, y, '█', nil, fieldStyle)
		}
	}

	t.screen.SetContent(col(s.Ball.X), row(s.Ball.Y), '●', nil, textStyle)

	header := fmt.Sprintf("%s  %d : %d  %s", t.names[pong.Left], s.Left.Score, s.Right.Score, t.names[pong.Right])
	t.text((cols-len([]rune(header)))/2, 0, header)

	status := statusLine(s, t.names)
	t.text((cols-len([]rune(status)))/2, rows-1, status)

	t.screen.Show()
}

func statusLine(s pong.Snapshot, names [2]string) string {
	switch s.Status {
	case pong.Paused:
		return "PAUSED  space: resume  q: quit"
	case pong.Ended:
		winner := names[pong.Left]
		if s.Right.Score > s.Left.Score {
			winner = names[pong.Right]
		}
		return winner + " wins!  r: play again  q: quit"
	case pong.NotStarted:
		return "r: start  q: quit"
	default:
		return s.Mode.Label() + "  space: pause  q: quit"
	}
}

func (t *termRenderer) text(x, y int, s string) {
	for _, r := range s {
		t.screen.SetContent(x, y, r, nil, textStyle)
		x++
	}
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// pollInput forwards key events until the screen is finalized.
func pollInput(screen tcell.Screen, keys *heldKeys, commands chan<- pong.Command, quit func()) {
	for {
		ev := screen.PollEvent()
		if ev == nil {
			return
		}

		switch ev := ev.(type) {
		case *tcell.EventResize:
			screen.Sync()
		case *tcell.EventKey:
			code, action := translateKey(ev.Key(), ev.Rune())
			switch action {
			case actionKey:
				keys.press(code)
			case actionToggle:
				sendCommand(commands, pong.Command{Kind: pong.CmdToggle})
			case actionPlayAgain:
				sendCommand(commands, pong.Command{Kind: pong.CmdPlayAgain})
			case actionQuit:
				quit()
				return
			}
		}
	}
}

// sendCommand drops the command when the match loop is not keeping up.
func sendCommand(commands chan<- pong.Command, cmd pong.Command) {
	select {
	case commands <- cmd:
	default:
	}
}

// PlayTerminal runs one local match in the terminal until the player quits.
func PlayTerminal(ctx context.Context, cfg *Config) error {
	mode, err := pong.ParseMode(cfg.mode)
	if err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	rules, err := loadRules(cfg)
	if err != nil {
		return err
	}

	snd, err := newSounds()
	if err != nil {
		log.Warn("PLAY: audio unavailable, playing without sound", zap.Error(err))
	}
	defer snd.close()

	names := [2]string{cfg.name, "CPU"}
	if mode == pong.TwoPlayer {
		names[pong.Right] = "Player 2"
	}

	last, aiErr, err := playMatch(ctx, cfg, rules, mode, names, snd)
	if err != nil {
		return err
	}
	if aiErr != nil {
		log.Error("PLAY: ai script failed", zap.Error(aiErr))
	}

	log.Info("PLAY: goodbye",
		zap.Stringer("status", last.Status),
		zap.Int("left", last.Left.Score),
		zap.Int("right", last.Right.Score),
	)

	return nil
}

// playMatch owns the terminal until the player quits. An AI failure is
// returned separately so it is logged after the screen is released.
func playMatch(ctx context.Context, cfg *Config, rules pong.Rules, mode pong.Mode, names [2]string, snd *sounds) (pong.Snapshot, error, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return pong.Snapshot{}, nil, err
	}
	if err := screen.Init(); err != nil {
		return pong.Snapshot{}, nil, err
	}
	defer screen.Fini()

	keys := newHeldKeys(holdWindow)

	var aiErr error
	m, err := pong.NewMatch(rules,
		pong.WithInput(pong.SharedKeyboard{State: keys}),
		pong.WithSink(&termRenderer{screen: screen, rules: rules, names: names, sounds: snd}),
		pong.WithErrorHandler(func(err error) { aiErr = err }),
	)
	if err != nil {
		return pong.Snapshot{}, nil, err
	}
	defer func() { _ = m.Close() }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	commands := make(chan pong.Command, 8)
	commands <- pong.Command{Kind: pong.CmdStart, Mode: mode}

	go pollInput(screen, keys, commands, cancel)

	pong.Run(ctx, m, pong.TickInterval(cfg.tickRate), commands, nil)

	return m.Snapshot(), aiErr, nil
}
