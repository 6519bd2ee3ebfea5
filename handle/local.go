package handle

import (
	"os"
	"runtime"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/embedrt/gcbind"
	"github.com/embedrt/gcbind/errors"
	"github.com/embedrt/gcbind/ffi"
	"github.com/embedrt/gcbind/memory"
)

// LocalHandle owns the runtime's only mutator thread. Every method must be
// called on the thread that started the handle; the handle holds the OS
// thread lock until Close.
type LocalHandle struct {
	rt     ffi.Runtime
	stack  *memory.Stack
	closed bool
}

func startLocal(rt ffi.Runtime) (*LocalHandle, error) {
	if err := rt.Init(); err != nil {
		return nil, err
	}
	if err := rt.AdoptThread(); err != nil {
		rt.AtExitHook(1)
		return nil, err
	}

	stack := memory.NewStack(rt)
	rt.RegisterRoots(stack)

	Logger().Debug("local handle started")
	return &LocalHandle{rt: rt, stack: stack}, nil
}

// Runtime returns the underlying runtime.
func (h *LocalHandle) Runtime() ffi.Runtime { return h.rt }

func (h *LocalHandle) check() error {
	if h.closed {
		return errors.InvalidHandleState(errors.PhaseInit, "handle is closed")
	}
	return nil
}

// Scope runs f with a dynamically growing frame.
func (h *LocalHandle) Scope(f func(*memory.Frame) error) error {
	if err := h.check(); err != nil {
		return err
	}
	return h.stack.Scope(f)
}

// LocalScope runs f with a frame of exactly n slots.
func (h *LocalHandle) LocalScope(n int, f func(*memory.Frame) error) error {
	if err := h.check(); err != nil {
		return err
	}
	return h.stack.LocalScope(n, f)
}

// UnsizedLocalScope runs f with a frame of size slots, for counts only known
// at runtime.
func (h *LocalHandle) UnsizedLocalScope(size int, f func(*memory.Frame) error) error {
	if err := h.check(); err != nil {
		return err
	}
	return h.stack.UnsizedLocalScope(size, f)
}

// Eval evaluates source text inside a throwaway scope and returns the
// unboxed host value of the result. Use Scope with memory.Eval to keep the
// result rooted instead.
func (h *LocalHandle) Eval(src string) (any, error) {
	if err := h.check(); err != nil {
		return nil, err
	}
	var out any
	err := h.stack.LocalScope(1, func(fr *memory.Frame) error {
		v, err := memory.Eval(fr, src)
		if err != nil {
			return err
		}
		unboxed, err := v.Unbox()
		if err != nil {
			return err
		}
		out = unboxed
		return nil
	})
	return out, err
}

// Include reads a source file and evaluates its contents. A missing file is
// a not_found error reported before anything is evaluated.
func (h *LocalHandle) Include(path string) (any, error) {
	if err := h.check(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NotFound(errors.PhaseEval, "source file", path)
	}
	Logger().Debug("including source file", zap.String("path", path))
	return h.Eval(string(data))
}

// Using imports a module by name.
func (h *LocalHandle) Using(module string) error {
	_, err := h.Eval("using " + module)
	return err
}

// Collect runs a collection cycle.
func (h *LocalHandle) Collect(mode gcbind.GCMode) error {
	if err := h.check(); err != nil {
		return err
	}
	return h.rt.Collect(mode)
}

// EnableGC toggles the collector and returns the prior setting.
func (h *LocalHandle) EnableGC(on bool) (bool, error) {
	if err := h.check(); err != nil {
		return false, err
	}
	return h.rt.SetGCEnabled(on), nil
}

// GCEnabled reports whether the collector is enabled.
func (h *LocalHandle) GCEnabled() (bool, error) {
	if err := h.check(); err != nil {
		return false, err
	}
	return h.rt.GCEnabled(), nil
}

// SetErrorColor toggles colored exception rendering.
func (h *LocalHandle) SetErrorColor(on bool) error {
	if err := h.check(); err != nil {
		return err
	}
	h.rt.SetErrorColor(on)
	return nil
}

// RenderException renders an error the way the runtime displays exceptions.
func (h *LocalHandle) RenderException(err error) string {
	return h.rt.RenderException(err)
}

// Close shuts the handle and the runtime down. Closing twice is a reported
// error; the OS thread lock is released on the first close.
func (h *LocalHandle) Close() error {
	if h.closed {
		return errors.InvalidHandleState(errors.PhaseInit, "handle already closed")
	}
	h.closed = true

	var errs error
	h.rt.UnregisterRoots(h.stack)
	if err := h.stack.Retire(); err != nil {
		errs = multierr.Append(errs, err)
	}
	h.rt.ReleaseThread()
	h.rt.AtExitHook(0)
	runtime.UnlockOSThread()

	Logger().Debug("local handle closed")
	return errs
}
