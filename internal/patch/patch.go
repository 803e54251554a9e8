// Package patch implements the Patch Engine (§4.3): applying a sequence
// of JSON-Patch-like structural operations to a value, and producing a
// patch sequence from a mutating producer function run against a
// before/after pair.
//
// Apply is grounded on _examples/linkerd-linkerd2, the one full example
// repo in the pack with a JSON Patch dependency
// (github.com/evanphx/json-patch, used by its admission-webhook
// injection tests): our []wire.Patch is translated into that library's
// wire format (JSON Pointer path strings instead of path-segment
// arrays) and applied through it, so the bytes produced are the same a
// Go server using the same library would produce.
//
// Produce is grounded on the other_examples manifests (estuary-flow,
// DataDog-datadog-agent) that name github.com/wI2L/jsondiff as the
// ecosystem's before/after RFC 6902 diff generator — no example repo in
// the teacher's own dependency tree covers structural diffing, so this
// is an enrichment pull rather than a teacher dependency.
package patch

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/wI2L/jsondiff"

	"github.com/AsherBond/lmstudio-go/internal/wire"
)

// Apply applies patches, in order, to doc and returns the resulting
// value decoded into the same shape as doc (a generic any tree: maps,
// slices, and scalars). A root replacement (path == []) replaces doc
// entirely.
func Apply(doc any, patches []wire.Patch) (any, error) {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("patch: encode document: %w", err)
	}

	opBytes, err := encodeOperations(patches)
	if err != nil {
		return nil, err
	}

	decoded, err := jsonpatch.DecodePatch(opBytes)
	if err != nil {
		return nil, fmt.Errorf("patch: decode patch list: %w", err)
	}

	applied, err := decoded.Apply(docBytes)
	if err != nil {
		return nil, fmt.Errorf("patch: apply: %w", err)
	}

	var result any
	if err := json.Unmarshal(applied, &result); err != nil {
		return nil, fmt.Errorf("patch: decode result: %w", err)
	}
	return result, nil
}

// ApplyTyped applies patches to old (of type T) and decodes the result
// back into T. Used by signal subscriptions, whose current value has a
// concrete Go type.
func ApplyTyped[T any](old T, patches []wire.Patch) (T, error) {
	var zero T
	result, err := Apply(old, patches)
	if err != nil {
		return zero, err
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return zero, fmt.Errorf("patch: re-encode result: %w", err)
	}
	var typed T
	if err := json.Unmarshal(raw, &typed); err != nil {
		return zero, fmt.Errorf("patch: decode typed result: %w", err)
	}
	return typed, nil
}

// Produce runs fn against a copy of old, then diffs old and the
// produced value to yield both the new value and the patch list that
// reproduces it. This is the Setter façade's withProducer mechanism
// (§4.5): a caller mutates a draft in place with ordinary Go code and
// never has to hand-construct patches.
func Produce[T any](old T, fn func(draft *T)) (T, []wire.Patch, error) {
	draft := old
	fn(&draft)
	patches, err := Diff(old, draft)
	if err != nil {
		var zero T
		return zero, nil, err
	}
	return draft, patches, nil
}

// Diff compares before and after (marshaled to JSON) and returns the
// RFC 6902 patch list that transforms before into after.
func Diff(before, after any) ([]wire.Patch, error) {
	d, err := jsondiff.Compare(before, after)
	if err != nil {
		return nil, fmt.Errorf("patch: diff: %w", err)
	}

	patches := make([]wire.Patch, 0, len(d))
	for _, op := range d {
		patches = append(patches, wire.Patch{
			Op:    string(op.Type),
			Path:  splitPointer(op.Path),
			Value: op.Value,
		})
	}
	return patches, nil
}

// encodeOperations translates our []wire.Patch (path as a segment
// array) into the JSON array of {op, path, value} objects
// evanphx/json-patch expects (path as an RFC 6901 JSON Pointer string).
func encodeOperations(patches []wire.Patch) ([]byte, error) {
	type wireOp struct {
		Op    string `json:"op"`
		Path  string `json:"path"`
		Value any    `json:"value,omitempty"`
	}

	ops := make([]wireOp, 0, len(patches))
	for _, p := range patches {
		ops = append(ops, wireOp{
			Op:    p.Op,
			Path:  joinPointer(p.Path),
			Value: p.Value,
		})
	}
	return json.Marshal(ops)
}

// joinPointer renders a path-segment array as an RFC 6901 JSON Pointer,
// escaping "~" and "/" per the spec (~0 and ~1 respectively).
func joinPointer(path []any) string {
	if len(path) == 0 {
		return ""
	}
	var b strings.Builder
	for _, seg := range path {
		b.WriteByte('/')
		b.WriteString(escapePointerSegment(segmentString(seg)))
	}
	return b.String()
}

// splitPointer reverses joinPointer, decoding a JSON Pointer string
// produced by wI2L/jsondiff back into our path-segment array. Numeric
// segments are decoded as float64 to match how the protocol's own
// array-index patches (§6.2) would unmarshal through encoding/json.
func splitPointer(pointer string) []any {
	if pointer == "" {
		return []any{}
	}
	parts := strings.Split(strings.TrimPrefix(pointer, "/"), "/")
	segments := make([]any, 0, len(parts))
	for _, p := range parts {
		unescaped := unescapePointerSegment(p)
		if n, err := strconv.ParseFloat(unescaped, 64); err == nil && isArrayIndex(unescaped) {
			segments = append(segments, n)
			continue
		}
		segments = append(segments, unescaped)
	}
	return segments
}

func isArrayIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func segmentString(seg any) string {
	switch v := seg.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func escapePointerSegment(s string) string {
	s = strings.ReplaceAll(s, "~", "~0")
	s = strings.ReplaceAll(s, "/", "~1")
	return s
}

func unescapePointerSegment(s string) string {
	s = strings.ReplaceAll(s, "~1", "/")
	s = strings.ReplaceAll(s, "~0", "~")
	return s
}
