package memory_test

import (
	"testing"

	"github.com/embedrt/gcbind"
	"github.com/embedrt/gcbind/errors"
	"github.com/embedrt/gcbind/memory"
	"github.com/embedrt/gcbind/simrt"
)

// newStack starts a fresh simulated runtime with one adopted mutator and a
// registered shadow stack.
func newStack(t *testing.T) (*simrt.Runtime, *memory.Stack) {
	t.Helper()

	rt := simrt.New()
	if err := rt.Init(); err != nil {
		t.Fatalf("init runtime: %v", err)
	}
	if err := rt.AdoptThread(); err != nil {
		t.Fatalf("adopt thread: %v", err)
	}

	stack := memory.NewStack(rt)
	rt.RegisterRoots(stack)
	t.Cleanup(func() {
		rt.UnregisterRoots(stack)
		rt.ReleaseThread()
		rt.AtExitHook(0)
	})
	return rt, stack
}

func mustAlloc(t *testing.T, rt *simrt.Runtime, v any) gcbind.Raw {
	t.Helper()
	raw, err := rt.Alloc(v)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	return raw
}

func TestScope_RootSurvivesCollection(t *testing.T) {
	rt, stack := newStack(t)

	err := stack.Scope(func(fr *memory.Frame) error {
		v, err := memory.NewValue(fr, int64(42))
		if err != nil {
			return err
		}
		raw, err := v.Raw()
		if err != nil {
			return err
		}

		if err := rt.Collect(gcbind.GCFull); err != nil {
			return err
		}
		if !rt.Live(raw) {
			t.Error("rooted value was reclaimed")
		}

		got, err := v.Unbox()
		if err != nil {
			return err
		}
		if got != int64(42) {
			t.Errorf("unboxed %v, want 42", got)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestScope_PopUnroots(t *testing.T) {
	rt, stack := newStack(t)

	var raw gcbind.Raw
	err := stack.Scope(func(fr *memory.Frame) error {
		v, err := memory.NewValue(fr, "transient")
		if err != nil {
			return err
		}
		raw, err = v.Raw()
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := rt.Collect(gcbind.GCFull); err != nil {
		t.Fatal(err)
	}
	if rt.Live(raw) {
		t.Fatal("value survived collection after its frame was popped")
	}
	if stack.LiveSlots() != 0 {
		t.Fatalf("stack holds %d slots after pop", stack.LiveSlots())
	}
}

func TestLocalScope_Overflow(t *testing.T) {
	rt, stack := newStack(t)

	err := stack.LocalScope(2, func(fr *memory.Frame) error {
		for i := 0; i < 2; i++ {
			if _, err := fr.Root(mustAlloc(t, rt, i)); err != nil {
				return err
			}
		}
		_, err := fr.Root(mustAlloc(t, rt, 2))
		if !errors.IsStackOverflow(err) {
			t.Errorf("third root: got %v, want stack_overflow", err)
		}
		if fr.Used() != 2 {
			t.Errorf("overflow mutated the frame: used=%d", fr.Used())
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestLocalScope_ExactCounts(t *testing.T) {
	// Sizes straddling the page boundary exercise contiguous reservation.
	for _, n := range []int{0, 1, 63, 64, 65, 200} {
		rt, stack := newStack(t)

		err := stack.LocalScope(n, func(fr *memory.Frame) error {
			for i := 0; i < n; i++ {
				if _, err := fr.Root(mustAlloc(t, rt, i)); err != nil {
					return err
				}
			}
			if got := stack.LiveRoots(); got != n {
				t.Errorf("size %d: LiveRoots = %d", n, got)
			}
			if _, err := fr.Root(mustAlloc(t, rt, n)); !errors.IsStackOverflow(err) {
				t.Errorf("size %d: root beyond capacity got %v", n, err)
			}
			if got := stack.LiveRoots(); got != n {
				t.Errorf("size %d: overflow wrote a slot, LiveRoots = %d", n, got)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("size %d: %v", n, err)
		}
		if stack.LiveSlots() != 0 {
			t.Fatalf("size %d: %d slots leaked", n, stack.LiveSlots())
		}
	}
}

func TestNestedScopes_LIFO(t *testing.T) {
	rt, stack := newStack(t)

	err := stack.Scope(func(outer *memory.Frame) error {
		kept, err := memory.NewValue(outer, int64(7))
		if err != nil {
			return err
		}

		err = outer.LocalScope(3, func(inner *memory.Frame) error {
			for i := 0; i < 3; i++ {
				if _, err := inner.Root(mustAlloc(t, rt, i)); err != nil {
					return err
				}
			}
			if got := stack.LiveSlots(); got != 4 {
				t.Errorf("inside inner: LiveSlots = %d, want 4", got)
			}
			return nil
		})
		if err != nil {
			return err
		}

		if got := stack.LiveSlots(); got != 1 {
			t.Errorf("after inner: LiveSlots = %d, want 1", got)
		}
		got, err := kept.Unbox()
		if err != nil {
			return err
		}
		if got != int64(7) {
			t.Errorf("outer root corrupted: %v", got)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestNestedScopes_DeepUnwind(t *testing.T) {
	rt, stack := newStack(t)

	const depth = 16
	var descend func(fr *memory.Frame, level int) error
	descend = func(fr *memory.Frame, level int) error {
		if _, err := fr.Root(mustAlloc(t, rt, level)); err != nil {
			return err
		}
		if level == depth {
			if got := stack.LiveSlots(); got != depth {
				t.Errorf("at depth %d: LiveSlots = %d", depth, got)
			}
			return nil
		}
		return fr.LocalScope(1, func(inner *memory.Frame) error {
			return descend(inner, level+1)
		})
	}

	err := stack.LocalScope(1, func(fr *memory.Frame) error {
		return descend(fr, 1)
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := stack.LiveSlots(); got != 0 {
		t.Fatalf("full unwind leaked %d slots", got)
	}
}

func TestOutput_RoundTripSurvivability(t *testing.T) {
	rt, stack := newStack(t)

	const n = 10
	err := stack.LocalScope(n, func(outer *memory.Frame) error {
		values := make([]memory.Value, n)
		for i := 0; i < n; i++ {
			out, err := outer.Output()
			if err != nil {
				return err
			}
			err = outer.Scope(func(*memory.Frame) error {
				v, err := memory.NewValue(out, i)
				values[i] = v
				return err
			})
			if err != nil {
				return err
			}
			// A full cycle between every rooting must spare them all.
			if err := rt.Collect(gcbind.GCFull); err != nil {
				return err
			}
		}

		for i, v := range values {
			got, err := v.Unbox()
			if err != nil {
				return err
			}
			if got != i {
				t.Fatalf("value %d reads back %v after %d collections", i, got, n)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestValue_UseAfterPop(t *testing.T) {
	_, stack := newStack(t)

	var escaped memory.Value
	err := stack.Scope(func(fr *memory.Frame) error {
		v, err := memory.NewValue(fr, int64(1))
		escaped = v
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := escaped.Raw(); !errors.IsInvalidHandleState(err) {
		t.Fatalf("use after pop: got %v, want invalid_handle_state", err)
	}
	if _, err := escaped.Unbox(); !errors.IsInvalidHandleState(err) {
		t.Fatalf("unbox after pop: got %v, want invalid_handle_state", err)
	}
}

func TestOutput_EscapesInnerScope(t *testing.T) {
	rt, stack := newStack(t)

	err := stack.Scope(func(outer *memory.Frame) error {
		out, err := outer.Output()
		if err != nil {
			return err
		}

		var escaped memory.Value
		err = outer.Scope(func(inner *memory.Frame) error {
			v, err := memory.NewValue(out, int64(42))
			escaped = v
			return err
		})
		if err != nil {
			return err
		}

		// The inner frame is gone; the output slot lives in the outer frame.
		if err := rt.Collect(gcbind.GCFull); err != nil {
			return err
		}
		got, err := escaped.Unbox()
		if err != nil {
			return err
		}
		if got != int64(42) {
			t.Errorf("escaped value = %v, want 42", got)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestOutput_AfterOwnerPopped(t *testing.T) {
	_, stack := newStack(t)

	var out *memory.Output
	err := stack.Scope(func(fr *memory.Frame) error {
		o, err := fr.Output()
		out = o
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = memory.NewValue(out, int64(1))
	if !errors.IsInvalidHandleState(err) {
		t.Fatalf("consume after pop: got %v, want invalid_handle_state", err)
	}
}

func TestReusableSlot_InvalidatesPrior(t *testing.T) {
	_, stack := newStack(t)

	err := stack.Scope(func(fr *memory.Frame) error {
		slot, err := fr.ReusableSlot()
		if err != nil {
			return err
		}

		first, err := memory.NewValue(slot, int64(1))
		if err != nil {
			return err
		}
		second, err := memory.NewValue(slot, int64(2))
		if err != nil {
			return err
		}

		if _, err := first.Raw(); !errors.IsInvalidHandleState(err) {
			t.Errorf("first value after reset: got %v, want invalid_handle_state", err)
		}
		got, err := second.Unbox()
		if err != nil {
			return err
		}
		if got != int64(2) {
			t.Errorf("second value = %v, want 2", got)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestUnrooted_ReclaimedAtCollection(t *testing.T) {
	rt, stack := newStack(t)

	err := stack.Scope(func(fr *memory.Frame) error {
		v, err := memory.NewValue(fr.Unrooted(), int64(9))
		if err != nil {
			return err
		}
		if v.IsRooted() {
			t.Error("unrooted target produced a rooted value")
		}
		raw, err := v.Raw()
		if err != nil {
			return err
		}

		if err := rt.Collect(gcbind.GCFull); err != nil {
			return err
		}
		if rt.Live(raw) {
			t.Error("unrooted value survived a collection")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestDynamicScope_PageGrowth(t *testing.T) {
	rt, stack := newStack(t)

	const n = 3 * memory.MinPageSize
	err := stack.Scope(func(fr *memory.Frame) error {
		values := make([]memory.Value, 0, n)
		for i := 0; i < n; i++ {
			v, err := fr.Root(mustAlloc(t, rt, i))
			if err != nil {
				return err
			}
			values = append(values, v)
		}
		if stack.Pages() < 2 {
			t.Errorf("expected page growth, have %d pages", stack.Pages())
		}

		// Growth must not move slots out from under earlier values.
		for i, v := range values {
			got, err := v.Unbox()
			if err != nil {
				return err
			}
			if got != i {
				t.Fatalf("value %d reads back %v", i, got)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if stack.LiveSlots() != 0 {
		t.Fatalf("%d slots leaked after pop", stack.LiveSlots())
	}
}

func TestFrame_Reserve(t *testing.T) {
	rt, stack := newStack(t)

	const n = 2 * memory.MinPageSize
	err := stack.Scope(func(fr *memory.Frame) error {
		if err := fr.Reserve(n); err != nil {
			return err
		}
		pages := stack.Pages()
		slots := stack.LiveSlots()
		if slots != n {
			t.Errorf("after reserve: LiveSlots = %d, want %d", slots, n)
		}

		values := make([]memory.Value, 0, n)
		for i := 0; i < n; i++ {
			v, err := fr.Root(mustAlloc(t, rt, i))
			if err != nil {
				return err
			}
			values = append(values, v)
		}
		// Every root lands in a reserved slot; the arena cursor never moves.
		if stack.Pages() != pages {
			t.Errorf("rooting grew pages from %d to %d despite reservation", pages, stack.Pages())
		}
		if stack.LiveSlots() != slots {
			t.Errorf("rooting took %d extra slots despite reservation", stack.LiveSlots()-slots)
		}

		for i, v := range values {
			got, err := v.Unbox()
			if err != nil {
				return err
			}
			if got != i {
				t.Fatalf("value %d reads back %v", i, got)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if stack.LiveSlots() != 0 {
		t.Fatalf("%d slots leaked after pop", stack.LiveSlots())
	}
}

func TestFrame_Reserve_RootWhileBuried(t *testing.T) {
	rt, stack := newStack(t)

	err := stack.Scope(func(outer *memory.Frame) error {
		if err := outer.Reserve(2); err != nil {
			return err
		}
		return outer.Scope(func(inner *memory.Frame) error {
			// Reserved slots predate the child frame, so consuming one while
			// buried is allowed where fresh growth is not.
			v, err := outer.Root(mustAlloc(t, rt, int64(5)))
			if err != nil {
				return err
			}
			got, err := v.Unbox()
			if err != nil {
				return err
			}
			if got != int64(5) {
				t.Errorf("buried root reads back %v, want 5", got)
			}

			if err := outer.Reserve(1); !errors.IsInvalidHandleState(err) {
				t.Errorf("reserving through buried frame: got %v", err)
			}
			return nil
		})
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestFrame_Reserve_Limits(t *testing.T) {
	_, stack := newStack(t)

	err := stack.Scope(func(fr *memory.Frame) error {
		if err := fr.Reserve(memory.MaxFrameSlots + 1); !errors.IsCapacity(err) {
			t.Errorf("oversized reserve: got %v, want capacity", err)
		}
		if err := fr.Reserve(0); err != nil {
			t.Errorf("zero reserve: %v", err)
		}
		return fr.LocalScope(1, func(fixed *memory.Frame) error {
			if err := fixed.Reserve(4); err != nil {
				t.Errorf("reserve on fixed frame: %v", err)
			}
			if got := stack.LiveSlots(); got != 1 {
				t.Errorf("fixed-frame reserve took slots: LiveSlots = %d", got)
			}
			return nil
		})
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestScope_PanicUnwindPopsFrame(t *testing.T) {
	rt, stack := newStack(t)

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("panic did not propagate out of the scope")
			}
		}()
		_ = stack.Scope(func(fr *memory.Frame) error {
			if _, err := fr.Root(mustAlloc(t, rt, int64(1))); err != nil {
				return err
			}
			panic("unwind")
		})
	}()

	if got := stack.LiveSlots(); got != 0 {
		t.Fatalf("panic unwind leaked %d slots", got)
	}

	// The stack stays usable after the unwind.
	err := stack.LocalScope(1, func(fr *memory.Frame) error {
		_, err := fr.Root(mustAlloc(t, rt, int64(2)))
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestLocalScope_PanicUnwindPopsNested(t *testing.T) {
	rt, stack := newStack(t)

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("panic did not propagate out of the scopes")
			}
		}()
		_ = stack.LocalScope(2, func(outer *memory.Frame) error {
			if _, err := outer.Root(mustAlloc(t, rt, int64(1))); err != nil {
				return err
			}
			return outer.LocalScope(1, func(inner *memory.Frame) error {
				if _, err := inner.Root(mustAlloc(t, rt, int64(2))); err != nil {
					return err
				}
				panic("deep unwind")
			})
		})
	}()

	if got := stack.LiveSlots(); got != 0 {
		t.Fatalf("panic unwind leaked %d slots", got)
	}
}

func TestFrame_RootThroughNonTop(t *testing.T) {
	rt, stack := newStack(t)

	err := stack.Scope(func(outer *memory.Frame) error {
		return outer.Scope(func(inner *memory.Frame) error {
			_, err := outer.Root(mustAlloc(t, rt, 1))
			if !errors.IsInvalidHandleState(err) {
				t.Errorf("rooting through buried dynamic frame: got %v", err)
			}
			return nil
		})
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestStack_Retire(t *testing.T) {
	_, stack := newStack(t)

	err := stack.Scope(func(fr *memory.Frame) error {
		if err := stack.Retire(); !errors.IsInvalidHandleState(err) {
			t.Errorf("retire with live frame: got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := stack.Retire(); err != nil {
		t.Fatalf("retire: %v", err)
	}
	err = stack.Scope(func(*memory.Frame) error { return nil })
	if !errors.IsInvalidHandleState(err) {
		t.Fatalf("scope after retire: got %v", err)
	}
}
