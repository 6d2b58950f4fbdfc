package pong

import (
	_ "embed"
	"fmt"
	"os"

	lua "github.com/yuin/gopher-lua"
)

//go:embed scripts/ai.lua
var builtinAIScript string

const aiFunction = "ai_intent"

// ScriptAI runs the paddle decision in Lua. The VM is not safe for concurrent
// use; each match owns its own ScriptAI and calls it from the tick goroutine.
type ScriptAI struct {
	vm          *lua.LState
	threshold   float64
	speedFactor float64
	err         error
}

// NewScriptAI loads r.Script, or the builtin script when it is empty, and
// checks that it defines ai_intent.
func NewScriptAI(r AIRules) (*ScriptAI, error) {
	src := builtinAIScript
	name := "builtin"
	if r.Script != "" {
		data, err := os.ReadFile(r.Script)
		if err != nil {
			return nil, fmt.Errorf("read ai script %s: %w", r.Script, err)
		}
		src = string(data)
		name = r.Script
	}

	vm := lua.NewState(lua.Options{SkipOpenLibs: false})
	if err := vm.DoString(src); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load ai script %s: %w", name, err)
	}
	if vm.GetGlobal(aiFunction).Type() != lua.LTFunction {
		vm.Close()
		return nil, fmt.Errorf("%w: %s does not define %s", ErrInvalidPolicy, name, aiFunction)
	}

	return &ScriptAI{
		vm:          vm,
		threshold:   r.Threshold,
		speedFactor: r.SpeedFactor,
	}, nil
}

// Intent calls ai_intent. A failing call holds the paddle still and the
// first error is kept for Err.
func (s *ScriptAI) Intent(ball Ball, paddle Paddle) Intent {
	err := s.vm.CallByParam(lua.P{
		Fn:      s.vm.GetGlobal(aiFunction),
		NRet:    1,
		Protect: true,
	},
		lua.LNumber(ball.Y),
		lua.LNumber(paddle.Center()),
		lua.LNumber(s.threshold),
		lua.LNumber(s.speedFactor),
	)
	if err != nil {
		if s.err == nil {
			s.err = err
		}
		return IntentNone
	}

	ret := s.vm.Get(-1)
	s.vm.Pop(1)

	n, ok := ret.(lua.LNumber)
	if !ok {
		if s.err == nil {
			s.err = fmt.Errorf("%s returned %s, want number", aiFunction, ret.Type())
		}
		return IntentNone
	}

	return clampIntent(Intent(n))
}

// Err returns the first script failure, if any.
func (s *ScriptAI) Err() error {
	return s.err
}

func (s *ScriptAI) Close() error {
	s.vm.Close()
	return nil
}
