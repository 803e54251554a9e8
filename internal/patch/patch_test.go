package patch

import (
	"reflect"
	"testing"

	"github.com/AsherBond/lmstudio-go/internal/wire"
)

type counter struct {
	N int `json:"n"`
}

func TestApply_RootReplace(t *testing.T) {
	patches := []wire.Patch{{Op: "replace", Path: []any{}, Value: map[string]any{"n": float64(0)}}}

	result, err := Apply(map[string]any{}, patches)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	m, ok := result.(map[string]any)
	if !ok {
		t.Fatalf("expected map, got %T", result)
	}
	if m["n"] != float64(0) {
		t.Errorf("n = %v, want 0", m["n"])
	}
}

func TestApply_FieldReplace(t *testing.T) {
	patches := []wire.Patch{{Op: "replace", Path: []any{"n"}, Value: float64(1)}}

	result, err := Apply(map[string]any{"n": float64(0)}, patches)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	m := result.(map[string]any)
	if m["n"] != float64(1) {
		t.Errorf("n = %v, want 1", m["n"])
	}
}

func TestApplyTyped(t *testing.T) {
	patches := []wire.Patch{{Op: "replace", Path: []any{"n"}, Value: 42}}

	got, err := ApplyTyped(counter{N: 0}, patches)
	if err != nil {
		t.Fatalf("ApplyTyped: %v", err)
	}
	if got.N != 42 {
		t.Errorf("N = %d, want 42", got.N)
	}
}

func TestApply_SequentialPatchesMatchFinalState(t *testing.T) {
	v1, err := Apply(map[string]any{}, []wire.Patch{
		{Op: "replace", Path: []any{}, Value: map[string]any{"n": float64(0)}},
	})
	if err != nil {
		t.Fatalf("Apply step 1: %v", err)
	}

	v2, err := Apply(v1, []wire.Patch{
		{Op: "replace", Path: []any{"n"}, Value: float64(1)},
	})
	if err != nil {
		t.Fatalf("Apply step 2: %v", err)
	}

	want := map[string]any{"n": float64(1)}
	if !reflect.DeepEqual(v2, want) {
		t.Errorf("v2 = %v, want %v", v2, want)
	}
}

func TestProduce_ReplaysAsPatches(t *testing.T) {
	old := counter{N: 5}

	newVal, patches, err := Produce(old, func(draft *counter) {
		draft.N = 9
	})
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if newVal.N != 9 {
		t.Fatalf("newVal.N = %d, want 9", newVal.N)
	}
	if len(patches) == 0 {
		t.Fatal("expected at least one patch")
	}

	// Applying the patches to old must reproduce newVal bit-for-bit.
	replayed, err := ApplyTyped(old, patches)
	if err != nil {
		t.Fatalf("ApplyTyped(replay): %v", err)
	}
	if replayed != newVal {
		t.Errorf("replayed = %+v, want %+v", replayed, newVal)
	}
}

func TestDiff_NoChangeProducesNoPatches(t *testing.T) {
	patches, err := Diff(counter{N: 3}, counter{N: 3})
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if len(patches) != 0 {
		t.Errorf("expected no patches for identical values, got %v", patches)
	}
}

func TestJoinSplitPointerRoundtrip(t *testing.T) {
	path := []any{"items", float64(0), "name"}
	pointer := joinPointer(path)
	if pointer != "/items/0/name" {
		t.Fatalf("joinPointer = %q, want /items/0/name", pointer)
	}

	back := splitPointer(pointer)
	if len(back) != 3 || back[0] != "items" || back[2] != "name" {
		t.Errorf("splitPointer roundtrip mismatch: %v", back)
	}
}
