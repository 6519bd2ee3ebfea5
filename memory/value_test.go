package memory_test

import (
	"testing"

	"github.com/embedrt/gcbind"
	"github.com/embedrt/gcbind/errors"
	"github.com/embedrt/gcbind/memory"
)

func TestEval_RootsResult(t *testing.T) {
	rt, stack := newStack(t)

	err := stack.LocalScope(1, func(fr *memory.Frame) error {
		v, err := memory.Eval(fr, "1 + 2")
		if err != nil {
			return err
		}

		if err := rt.Collect(gcbind.GCFull); err != nil {
			return err
		}
		got, err := v.Unbox()
		if err != nil {
			return err
		}
		if got != int64(3) {
			t.Errorf("eval result = %v, want 3", got)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestEval_ForeignException(t *testing.T) {
	rt, stack := newStack(t)

	err := stack.LocalScope(1, func(fr *memory.Frame) error {
		_, err := memory.Eval(fr, `error("boom")`)
		if !errors.IsForeignException(err) {
			t.Fatalf("got %v, want foreign_exception", err)
		}
		msg := rt.RenderException(err)
		if msg == "" {
			t.Error("rendered exception message is empty")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestEval_DivisionByZero(t *testing.T) {
	_, stack := newStack(t)

	err := stack.LocalScope(1, func(fr *memory.Frame) error {
		_, err := memory.Eval(fr, "1 / 0")
		if !errors.IsForeignException(err) {
			t.Fatalf("got %v, want foreign_exception", err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestValue_SetChildKeepsReferentAlive(t *testing.T) {
	rt, stack := newStack(t)

	var childRaw gcbind.Raw
	err := stack.Scope(func(fr *memory.Frame) error {
		parent, err := memory.NewValue(fr, "parent")
		if err != nil {
			return err
		}

		// Rooted only through the parent's edge, never through a slot.
		child, err := memory.NewValue(fr.Unrooted(), "child")
		if err != nil {
			return err
		}
		childRaw, err = child.Raw()
		if err != nil {
			return err
		}
		if err := parent.SetChild(child); err != nil {
			return err
		}

		if err := rt.Collect(gcbind.GCFull); err != nil {
			return err
		}
		if !rt.Live(childRaw) {
			t.Error("child reachable through write barrier was reclaimed")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	// Parent popped: the edge no longer keeps the child alive.
	if err := rt.Collect(gcbind.GCFull); err != nil {
		t.Fatal(err)
	}
	if rt.Live(childRaw) {
		t.Fatal("child survived after its owner was unrooted")
	}
}

func TestValue_NullHandling(t *testing.T) {
	_, stack := newStack(t)

	err := stack.Scope(func(fr *memory.Frame) error {
		v, err := fr.Root(gcbind.RawNull)
		if err != nil {
			return err
		}
		if !v.IsNull() {
			t.Error("null raw should report null")
		}
		got, err := v.Unbox()
		if err != nil || got != nil {
			t.Errorf("unboxing null: got %v, %v", got, err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
