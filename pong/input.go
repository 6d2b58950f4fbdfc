package pong

// Intent is the vertical paddle command for one tick as a fraction of the
// paddle speed. Negative moves up (toward y = 0).
type Intent float64

const (
	IntentUp   Intent = -1
	IntentNone Intent = 0
	IntentDown Intent = 1
)

// KeyState answers whether a key is held right now. Keys are named by
// KeyboardEvent.code ("KeyW", "ArrowUp", ...).
type KeyState interface {
	Held(code string) bool
}

// Bindings lists the keys that move one paddle.
type Bindings struct {
	Up   []string
	Down []string
}

var (
	LeftBindings = Bindings{
		Up:   []string{"KeyW", "ArrowUp"},
		Down: []string{"KeyS", "ArrowDown"},
	}
	RightBindings = Bindings{
		Up:   []string{"KeyI"},
		Down: []string{"KeyK"},
	}
)

// BindingsFor returns the default bindings of a side.
func BindingsFor(side Side) Bindings {
	if side == Right {
		return RightBindings
	}
	return LeftBindings
}

// MapIntent converts held keys to an intent. When up and down are both held,
// down wins.
func MapIntent(keys KeyState, b Bindings) Intent {
	if keys == nil {
		return IntentNone
	}

	intent := IntentNone
	if anyHeld(keys, b.Up) {
		intent = IntentUp
	}
	if anyHeld(keys, b.Down) {
		intent = IntentDown
	}

	return intent
}

func anyHeld(keys KeyState, codes []string) bool {
	for _, c := range codes {
		if keys.Held(c) {
			return true
		}
	}
	return false
}

// KeySet is a KeyState backed by a set of held key codes.
type KeySet map[string]bool

// NewKeySet returns a set holding the given keys.
func NewKeySet(codes ...string) KeySet {
	ks := make(KeySet, len(codes))
	for _, c := range codes {
		ks[c] = true
	}
	return ks
}

func (ks KeySet) Held(code string) bool {
	return ks[code]
}

// Replace swaps the held keys for codes.
func (ks KeySet) Replace(codes []string) {
	clear(ks)
	for _, c := range codes {
		ks[c] = true
	}
}

// Alias exposes keys under other names: Held(k) is true if k itself or any
// of aliases[k] is held in the wrapped state. A guest on its own keyboard uses
// it to drive the right paddle with the left-hand keys.
type Alias struct {
	Keys    KeyState
	Aliases map[string][]string
}

func (a Alias) Held(code string) bool {
	if a.Keys == nil {
		return false
	}
	if a.Keys.Held(code) {
		return true
	}
	return anyHeld(a.Keys, a.Aliases[code])
}

// GuestAliases maps the right paddle keys to the left paddle keys.
var GuestAliases = map[string][]string{
	"KeyI": LeftBindings.Up,
	"KeyK": LeftBindings.Down,
}

// InputSource provides the key state that drives a side. Returning nil means
// no keys are held.
type InputSource interface {
	Keys(side Side) KeyState
}

// SharedKeyboard drives both paddles from one key state, as when two players
// share a keyboard.
type SharedKeyboard struct {
	State KeyState
}

func (s SharedKeyboard) Keys(Side) KeyState {
	return s.State
}
