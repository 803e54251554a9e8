package setter

import (
	"reflect"
	"testing"

	"github.com/AsherBond/lmstudio-go/internal/signal"
	"github.com/AsherBond/lmstudio-go/internal/wire"
)

type thing struct {
	N int `json:"n"`
}

func TestSetter_Set(t *testing.T) {
	var gotValue thing
	var gotTags []wire.WriteTag

	s := New[thing](func(fn func(thing) thing, tags []wire.WriteTag) error {
		gotValue = fn(thing{N: 0})
		gotTags = tags
		return nil
	}, nil)

	if err := s.Set(thing{N: 7}, "origin"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if gotValue.N != 7 {
		t.Errorf("gotValue.N = %d, want 7", gotValue.N)
	}
	if !reflect.DeepEqual(gotTags, []wire.WriteTag{"origin"}) {
		t.Errorf("gotTags = %v, want [origin]", gotTags)
	}
}

func TestSetter_WithUpdater(t *testing.T) {
	var gotValue thing

	s := New[thing](func(fn func(thing) thing, tags []wire.WriteTag) error {
		gotValue = fn(thing{N: 3})
		return nil
	}, nil)

	if err := s.WithUpdater(func(old thing) thing {
		old.N += 10
		return old
	}); err != nil {
		t.Fatalf("WithUpdater: %v", err)
	}
	if gotValue.N != 13 {
		t.Errorf("gotValue.N = %d, want 13", gotValue.N)
	}
}

func TestSetter_WithProducer(t *testing.T) {
	var gotValue thing

	s := New[thing](func(fn func(thing) thing, tags []wire.WriteTag) error {
		gotValue = fn(thing{N: 1})
		return nil
	}, nil)

	if err := s.WithProducer(func(draft *thing) {
		draft.N = 99
	}); err != nil {
		t.Fatalf("WithProducer: %v", err)
	}
	if gotValue.N != 99 {
		t.Errorf("gotValue.N = %d, want 99", gotValue.N)
	}
}

func TestSetter_WithPatchesBypassesTransform(t *testing.T) {
	transformCalled := false
	var gotPatches []wire.Patch

	s := New[thing](
		func(fn func(thing) thing, tags []wire.WriteTag) error {
			transformCalled = true
			return nil
		},
		func(patches []wire.Patch, tags []wire.WriteTag) error {
			gotPatches = patches
			return nil
		},
	)

	patches := []wire.Patch{{Op: "replace", Path: []any{"n"}, Value: 5}}
	if err := s.WithPatches(patches); err != nil {
		t.Fatalf("WithPatches: %v", err)
	}
	if transformCalled {
		t.Error("WithPatches should not invoke the value-transform primitive")
	}
	if !reflect.DeepEqual(gotPatches, patches) {
		t.Errorf("gotPatches = %v, want %v", gotPatches, patches)
	}
}

func TestSetter_WithTagsConcatenatesInEmissionOrder(t *testing.T) {
	var gotTags []wire.WriteTag

	base := New[thing](func(fn func(thing) thing, tags []wire.WriteTag) error {
		gotTags = tags
		return nil
	}, nil)

	derived := base.WithTags("outer").WithTags("inner")
	if err := derived.Set(thing{}, "call-site"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	want := []wire.WriteTag{"outer", "inner", "call-site"}
	if !reflect.DeepEqual(gotTags, want) {
		t.Errorf("gotTags = %v, want %v", gotTags, want)
	}
}

func TestForOWLSignal_SetDiffsAndWritesPatches(t *testing.T) {
	var recv func(thing, []wire.WriteTag)
	var sentPatches []wire.Patch

	owl := signal.NewOWLSignal[thing](func(onValue func(thing, []wire.WriteTag), onError func(error)) (signal.Writer, func()) {
		recv = onValue
		return func(p []wire.Patch, tags []wire.WriteTag) error {
			sentPatches = p
			return nil
		}, func() {}
	}, nil)

	unsub := owl.Subscribe(func(thing, []wire.WriteTag) {}, nil)
	defer unsub()

	recv(thing{N: 1}, nil)

	s := ForOWLSignal(owl)
	if err := s.Set(thing{N: 2}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if len(sentPatches) == 0 {
		t.Fatal("expected Set to produce and send at least one patch")
	}

	v, ok := owl.Get()
	if !ok || v.N != 2 {
		t.Fatalf("owl.Get() = (%+v, %v), want ({2}, true)", v, ok)
	}
}
