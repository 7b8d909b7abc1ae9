// Package rules runs deployment-specific tag cleanup rules written in
// Lua. A rules file defines
//
//	function remove_on_split(key, value)
//	    return key == "survey:date"
//	end
//
// which the split engine consults for every tag of a way being split, in
// addition to its built-in cleanup.
package rules

import (
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/wegman-software/osmsplit/internal/split"
)

const callbackName = "remove_on_split"

// Engine evaluates a loaded rules file. Safe for concurrent use; calls
// into the interpreter are serialized.
type Engine struct {
	L  *lua.LState
	fn lua.LValue
	mu sync.Mutex
}

var _ split.TagCleanupRule = (*Engine)(nil)

// Load loads and executes a Lua rules file.
func Load(path string) (*Engine, error) {
	L := lua.NewState()
	if err := L.DoFile(path); err != nil {
		L.Close()
		return nil, fmt.Errorf("failed to load rules file: %w", err)
	}
	return newEngine(L)
}

// LoadString loads rules from a string (for testing).
func LoadString(code string) (*Engine, error) {
	L := lua.NewState()
	if err := L.DoString(code); err != nil {
		L.Close()
		return nil, fmt.Errorf("failed to load rules code: %w", err)
	}
	return newEngine(L)
}

func newEngine(L *lua.LState) (*Engine, error) {
	fn := L.GetGlobal(callbackName)
	if fn.Type() != lua.LTFunction {
		L.Close()
		return nil, fmt.Errorf("rules file does not define %s(key, value)", callbackName)
	}
	return &Engine{L: L, fn: fn}, nil
}

// Close releases Lua resources
func (e *Engine) Close() {
	e.L.Close()
}

// RemoveOnSplit calls into the Lua rule. A failing rule keeps the tag:
// rules can only drop more, never rescue a tag the built-ins dropped.
func (e *Engine) RemoveOnSplit(key, value string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	err := e.L.CallByParam(lua.P{
		Fn:      e.fn,
		NRet:    1,
		Protect: true,
	}, lua.LString(key), lua.LString(value))
	if err != nil {
		return false
	}

	ret := e.L.Get(-1)
	e.L.Pop(1)
	return lua.LVAsBool(ret)
}
