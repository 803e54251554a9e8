// Package setter implements the Setter Façade (§4.5): a uniform write
// surface — Set, WithUpdater, WithProducer, WithPatches — built on top
// of a writable signal's two primitive operations (transform the
// current value, or send a patch list directly), with write-tag
// propagation across multiple tag sources.
//
// Grounded on the closure-wrapping shape of the teacher's
// internal/mcp/bridge.go, which builds a uniform bridgeTool closure
// over several differently-shaped underlying tool calls; generalized
// here from "wrap one calling convention" to "wrap one primitive into
// four calling conventions over a generic T".
package setter

import (
	"github.com/AsherBond/lmstudio-go/internal/patch"
	"github.com/AsherBond/lmstudio-go/internal/signal"
	"github.com/AsherBond/lmstudio-go/internal/wire"
)

// Transform sends an update derived by running fn against the current
// value of T and forwarding the resulting patch list upstream.
type Transform[T any] func(fn func(old T) T, tags []wire.WriteTag) error

// WritePatches sends a patch list upstream directly, without an
// intervening value transform.
type WritePatches func(patches []wire.Patch, tags []wire.WriteTag) error

// Setter is the uniform write surface over a writable value of type T.
type Setter[T any] struct {
	transform    Transform[T]
	writePatches WritePatches
	baseTags     []wire.WriteTag
}

// New builds a Setter from its two primitives.
func New[T any](transform Transform[T], writePatches WritePatches) *Setter[T] {
	return &Setter[T]{transform: transform, writePatches: writePatches}
}

// ForOWLSignal builds a Setter bound to owl: value-based writes (Set,
// WithUpdater, WithProducer) diff the old and new value through the
// Patch Engine before handing patches to owl.Write; WithPatches hands
// its patch list to owl.Write untouched, so callers that already have
// an exact patch list (e.g. replaying a server-shaped edit) are not
// round-tripped through a diff.
func ForOWLSignal[T any](owl *signal.OWLSignal[T]) *Setter[T] {
	transform := func(fn func(old T) T, tags []wire.WriteTag) error {
		old, _ := owl.Get()
		newValue := fn(old)
		patches, err := patch.Diff(old, newValue)
		if err != nil {
			return err
		}
		return owl.Write(patches, tags)
	}
	return New[T](transform, owl.Write)
}

// WithTags returns a derived Setter whose writes carry tags appended
// after this Setter's own base tags. Multiple tag sources concatenate
// in emission order: a Setter built by chaining WithTags several times
// emits the outermost source's tags first.
func (s *Setter[T]) WithTags(tags ...wire.WriteTag) *Setter[T] {
	combined := make([]wire.WriteTag, 0, len(s.baseTags)+len(tags))
	combined = append(combined, s.baseTags...)
	combined = append(combined, tags...)
	return &Setter[T]{transform: s.transform, writePatches: s.writePatches, baseTags: combined}
}

// Set replaces the value outright.
func (s *Setter[T]) Set(value T, tags ...wire.WriteTag) error {
	return s.transform(func(T) T { return value }, s.concat(tags))
}

// WithUpdater replaces the value with the result of fn(old).
func (s *Setter[T]) WithUpdater(fn func(old T) T, tags ...wire.WriteTag) error {
	return s.transform(fn, s.concat(tags))
}

// WithProducer runs an in-place mutator against a copy of the current
// value (a structurally-shared draft) and writes the result.
func (s *Setter[T]) WithProducer(producerFn func(draft *T), tags ...wire.WriteTag) error {
	return s.transform(func(old T) T {
		draft := old
		producerFn(&draft)
		return draft
	}, s.concat(tags))
}

// WithPatches applies a patch list directly, bypassing the diff step.
func (s *Setter[T]) WithPatches(patches []wire.Patch, tags ...wire.WriteTag) error {
	return s.writePatches(patches, s.concat(tags))
}

func (s *Setter[T]) concat(tags []wire.WriteTag) []wire.WriteTag {
	if len(s.baseTags) == 0 {
		return tags
	}
	combined := make([]wire.WriteTag, 0, len(s.baseTags)+len(tags))
	combined = append(combined, s.baseTags...)
	combined = append(combined, tags...)
	return combined
}
