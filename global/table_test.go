package global_test

import (
	"testing"

	"github.com/embedrt/gcbind"
	"github.com/embedrt/gcbind/global"
	"github.com/embedrt/gcbind/simrt"
)

func newRuntime(t *testing.T) *simrt.Runtime {
	t.Helper()
	rt := simrt.New()
	if err := rt.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := rt.AdoptThread(); err != nil {
		t.Fatalf("adopt: %v", err)
	}
	t.Cleanup(func() {
		rt.ReleaseThread()
		rt.AtExitHook(0)
	})
	return rt
}

func TestTable_InsertGetRemove(t *testing.T) {
	rt := newRuntime(t)
	table := global.NewTable(rt)
	defer table.Close()

	raw, err := rt.Alloc("held")
	if err != nil {
		t.Fatal(err)
	}

	ref := table.Insert(raw)
	if ref == 0 {
		t.Fatal("insert returned the invalid ticket")
	}
	got, ok := table.Get(ref)
	if !ok || got != raw {
		t.Fatalf("Get(%d) = %v, %v", ref, got, ok)
	}
	if table.Len() != 1 {
		t.Fatalf("Len = %d", table.Len())
	}

	removed, ok := table.Remove(ref)
	if !ok || removed != raw {
		t.Fatalf("Remove = %v, %v", removed, ok)
	}
	if _, ok := table.Get(ref); ok {
		t.Fatal("removed ticket still resolves")
	}
	if _, ok := table.Remove(ref); ok {
		t.Fatal("double remove reported success")
	}
}

func TestTable_RootSurvivesUntilRemoved(t *testing.T) {
	rt := newRuntime(t)
	table := global.NewTable(rt)
	defer table.Close()

	raw, err := rt.Alloc(int64(1))
	if err != nil {
		t.Fatal(err)
	}
	ref := table.Insert(raw)

	if err := rt.Collect(gcbind.GCFull); err != nil {
		t.Fatal(err)
	}
	if !rt.Live(raw) {
		t.Fatal("globally rooted value was reclaimed")
	}

	table.Remove(ref)
	if err := rt.Collect(gcbind.GCFull); err != nil {
		t.Fatal(err)
	}
	if rt.Live(raw) {
		t.Fatal("value survived after its global root was removed")
	}
}

func TestTable_InsertNullOrClosed(t *testing.T) {
	rt := newRuntime(t)
	table := global.NewTable(rt)

	if ref := table.Insert(gcbind.RawNull); ref != 0 {
		t.Fatalf("inserting null returned ticket %d", ref)
	}

	if err := table.Close(); err != nil {
		t.Fatal(err)
	}
	raw, err := rt.Alloc("late")
	if err != nil {
		t.Fatal(err)
	}
	if ref := table.Insert(raw); ref != 0 {
		t.Fatalf("insert into closed table returned ticket %d", ref)
	}
}

type recordingObserver struct {
	events []global.Event
}

func (o *recordingObserver) OnRootEvent(e global.Event) {
	o.events = append(o.events, e)
}

func TestTable_Observers(t *testing.T) {
	rt := newRuntime(t)
	table := global.NewTable(rt)
	defer table.Close()

	obs := &recordingObserver{}
	table.Subscribe(obs)

	raw, err := rt.Alloc("watched")
	if err != nil {
		t.Fatal(err)
	}
	ref := table.Insert(raw)
	table.Remove(ref)

	if len(obs.events) != 2 {
		t.Fatalf("got %d events, want 2", len(obs.events))
	}
	if obs.events[0].Type != global.EventRooted || obs.events[0].Ref != ref {
		t.Errorf("first event = %+v", obs.events[0])
	}
	if obs.events[1].Type != global.EventUnrooted || obs.events[1].Raw != raw {
		t.Errorf("second event = %+v", obs.events[1])
	}

	table.Unsubscribe(obs)
	table.Insert(raw)
	if len(obs.events) != 2 {
		t.Fatal("unsubscribed observer kept receiving events")
	}
}

func TestTable_CloseUnregistersScanner(t *testing.T) {
	rt := newRuntime(t)
	table := global.NewTable(rt)

	raw, err := rt.Alloc("dropped at close")
	if err != nil {
		t.Fatal(err)
	}
	table.Insert(raw)

	if err := table.Close(); err != nil {
		t.Fatal(err)
	}
	if err := rt.Collect(gcbind.GCFull); err != nil {
		t.Fatal(err)
	}
	if rt.Live(raw) {
		t.Fatal("closed table still kept its roots alive")
	}
}
