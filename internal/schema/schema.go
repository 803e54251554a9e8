// Package schema implements the Schema Registry (§4.1), the backend
// interface's build-time catalog of endpoint descriptors, plus the
// Schema capability each descriptor's parameter/result/packet/data
// shapes are validated against.
//
// Grounded on the registration-then-lookup shape of the teacher's
// internal/tools.Registry (name -> handler, looked up by
// internal/mcp/bridge.go when bridging MCP tools), generalized from one
// kind of thing (tools) to four (rpc, channel, signal, writable signal).
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrDuplicateEndpoint is returned by every Add* method when name is
// already registered (Invariant R1).
var ErrDuplicateEndpoint = errors.New("schema: duplicate endpoint name")

// ErrNoSuchEndpoint is returned by lookups that find nothing.
var ErrNoSuchEndpoint = errors.New("schema: no such endpoint")

// Schema is the capability every parameter/return/packet/data shape is
// validated through. Implementations decode an arbitrary value (usually
// json.RawMessage or a generic map) into a canonical Go value, or
// report why it doesn't fit.
type Schema interface {
	// Validate decodes and validates value, returning the canonical
	// decoded value or an error describing the first problem found.
	Validate(value any) (any, error)
}

// sharedValidate is a single shared validator.Validate instance; it is safe
// for concurrent use and caches struct metadata internally.
var sharedValidate = validator.New(validator.WithRequiredStructEnabled())

// TypeSchema validates values by round-tripping them through JSON into
// T, then running struct-tag validation (govalidator's `validate:"..."`
// tags) when T is a struct. Use schema.For[T]() to build one.
type TypeSchema[T any] struct{}

// For builds a Schema for the given Go type.
func For[T any]() *TypeSchema[T] {
	return &TypeSchema[T]{}
}

// Validate implements Schema.
func (s *TypeSchema[T]) Validate(value any) (any, error) {
	raw, err := toRawMessage(value)
	if err != nil {
		return nil, fmt.Errorf("schema: encode value: %w", err)
	}

	var typed T
	if err := json.Unmarshal(raw, &typed); err != nil {
		return nil, fmt.Errorf("schema: decode value: %w", err)
	}

	if err := sharedValidate.Struct(typed); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			// T isn't a struct (or is a nil pointer) — no tag-based
			// rules to enforce, which is not itself a schema failure.
			return typed, nil
		}
		return nil, fmt.Errorf("schema: validation failed: %w", err)
	}

	return typed, nil
}

func toRawMessage(value any) (json.RawMessage, error) {
	if raw, ok := value.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(value)
}

// Kind discriminates the four endpoint families (§3).
type Kind int

const (
	KindRPC Kind = iota
	KindChannel
	KindSignal
	KindWritableSignal
)

func (k Kind) String() string {
	switch k {
	case KindRPC:
		return "rpc"
	case KindChannel:
		return "channel"
	case KindSignal:
		return "signal"
	case KindWritableSignal:
		return "writableSignal"
	default:
		return "unknown"
	}
}

// RPCEndpoint describes an rpc endpoint's schemas.
type RPCEndpoint struct {
	Parameter Schema
	Returns   Schema
}

// ChannelEndpoint describes a channel endpoint's schemas.
type ChannelEndpoint struct {
	CreationParameter Schema
	ToServerPacket    Schema
	ToClientPacket    Schema
}

// SignalEndpoint describes a (read-only or writable) signal endpoint's
// schemas. Writable signals reuse this shape — §4.1 notes only the
// creation parameter and data schema are kind-specific; the writable
// behavior lives entirely in the port and signal primitives.
type SignalEndpoint struct {
	CreationParameter Schema
	SignalData        Schema
}

// Descriptor is an immutable-after-registration endpoint descriptor (§3).
type Descriptor struct {
	Kind Kind
	Name string

	RPC            *RPCEndpoint
	Channel        *ChannelEndpoint
	Signal         *SignalEndpoint
	WritableSignal *SignalEndpoint
}

// Registry is the build-time assembly of endpoints — the backend
// interface (§4.1). Safe for concurrent reads after registration
// completes; registration itself is also safe for concurrent use,
// though in practice it happens once at startup before any port is
// constructed.
type Registry struct {
	mu        sync.RWMutex
	endpoints map[string]Descriptor
}

// NewRegistry creates an empty Schema Registry.
func NewRegistry() *Registry {
	return &Registry{endpoints: make(map[string]Descriptor)}
}

func (r *Registry) add(name string, d Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.endpoints[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateEndpoint, name)
	}
	r.endpoints[name] = d
	return nil
}

// AddRPCEndpoint registers an rpc endpoint.
func (r *Registry) AddRPCEndpoint(name string, parameter, returns Schema) error {
	return r.add(name, Descriptor{
		Kind: KindRPC,
		Name: name,
		RPC:  &RPCEndpoint{Parameter: parameter, Returns: returns},
	})
}

// AddChannelEndpoint registers a channel endpoint.
func (r *Registry) AddChannelEndpoint(name string, creationParameter, toServerPacket, toClientPacket Schema) error {
	return r.add(name, Descriptor{
		Kind: KindChannel,
		Name: name,
		Channel: &ChannelEndpoint{
			CreationParameter: creationParameter,
			ToServerPacket:    toServerPacket,
			ToClientPacket:    toClientPacket,
		},
	})
}

// AddSignalEndpoint registers a read-only signal endpoint.
func (r *Registry) AddSignalEndpoint(name string, creationParameter, signalData Schema) error {
	return r.add(name, Descriptor{
		Kind:   KindSignal,
		Name:   name,
		Signal: &SignalEndpoint{CreationParameter: creationParameter, SignalData: signalData},
	})
}

// AddWritableSignalEndpoint registers a writable signal endpoint.
func (r *Registry) AddWritableSignalEndpoint(name string, creationParameter, signalData Schema) error {
	return r.add(name, Descriptor{
		Kind:           KindWritableSignal,
		Name:           name,
		WritableSignal: &SignalEndpoint{CreationParameter: creationParameter, SignalData: signalData},
	})
}

// Lookup returns the descriptor registered under name, if any.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.endpoints[name]
	return d, ok
}
