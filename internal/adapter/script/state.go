package script

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/codeintel/internal/document"
	"github.com/dshills/codeintel/internal/logging"
	"github.com/dshills/codeintel/internal/provider"
	lua "github.com/yuin/gopher-lua"
)

// ModuleName is the global the helper module is installed under.
const ModuleName = "codeintel"

// state is a sandboxed Lua state. It must only be used from one goroutine.
type state struct {
	L      *lua.LState
	logger *logging.Logger
	closed bool
}

func newState(logger *logging.Logger) *state {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	s := &state{L: L, logger: logger}

	// Only libraries without file system, process or debug access.
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}
	L.SetGlobal("print", L.NewFunction(s.print))
	L.SetGlobal(ModuleName, L.SetFuncs(L.NewTable(), s.module()))
	return s
}

func (s *state) print(L *lua.LState) int {
	parts := make([]string, 0, L.GetTop())
	for i := 1; i <= L.GetTop(); i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	s.logger.Debug("script: %s", strings.Join(parts, "\t"))
	return 0
}

func (s *state) module() map[string]lua.LGFunction {
	return map[string]lua.LGFunction{
		"log": func(L *lua.LState) int {
			level := logging.ParseLevel(L.OptString(2, "info"))
			msg := L.CheckString(1)
			switch level {
			case logging.LevelDebug:
				s.logger.Debug("script: %s", msg)
			case logging.LevelWarn:
				s.logger.Warn("script: %s", msg)
			case logging.LevelError:
				s.logger.Error("script: %s", msg)
			default:
				s.logger.Info("script: %s", msg)
			}
			return 0
		},
		"line": func(L *lua.LState) int {
			L.Push(lua.LString(document.Line(L.CheckString(1), L.CheckInt(2))))
			return 1
		},
		"word_before": func(L *lua.LState) int {
			L.Push(lua.LString(document.WordBefore(L.CheckString(1), L.CheckInt(2), L.CheckInt(3))))
			return 1
		},
		"word_at": func(L *lua.LState) int {
			L.Push(lua.LString(document.WordAt(L.CheckString(1), L.CheckInt(2), L.CheckInt(3))))
			return 1
		},
		"language": func(L *lua.LState) int {
			L.Push(lua.LString(provider.DetectLanguage(L.CheckString(1))))
			return 1
		},
	}
}

// load runs the script file.
func (s *state) load(ctx context.Context, path string) error {
	return s.guard(ctx, func() error {
		return s.L.DoFile(path)
	})
}

// has reports whether a global function exists.
func (s *state) has(name string) bool {
	return s.L.GetGlobal(name).Type() == lua.LTFunction
}

// call invokes a global function with args and returns its first result
// as a Go value. A missing function returns nil.
func (s *state) call(ctx context.Context, name string, args ...any) (any, error) {
	fn := s.L.GetGlobal(name)
	if fn.Type() != lua.LTFunction {
		return nil, nil
	}

	var result any
	err := s.guard(ctx, func() error {
		top := s.L.GetTop()
		s.L.Push(fn)
		for _, a := range args {
			s.L.Push(toLua(s.L, a))
		}
		if err := s.L.PCall(len(args), 1, nil); err != nil {
			s.L.SetTop(top)
			return err
		}
		result = toGo(s.L.Get(-1))
		s.L.SetTop(top)
		return nil
	})
	return result, err
}

// guard bounds a call with ctx and turns panics into errors.
func (s *state) guard(ctx context.Context, fn func() error) (err error) {
	if s.closed {
		return errClosed
	}
	s.L.SetContext(ctx)
	defer s.L.RemoveContext()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

// globalStrings reads a global list of strings.
func (s *state) globalStrings(name string) []string {
	list, ok := toGo(s.L.GetGlobal(name)).([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if str, ok := v.(string); ok {
			out = append(out, str)
		}
	}
	return out
}

func (s *state) close() {
	if s.closed {
		return
	}
	s.L.Close()
	s.closed = true
}
