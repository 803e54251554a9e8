// Package signal implements the Signal Primitives (§4.4): LazySignal, a
// lazily-subscribed observable of T, and OWLSignal, its optimistic
// writable extension.
//
// Grounded on the subscribe/unsubscribe bookkeeping of the teacher's
// internal/events bus (listener map keyed by a handle, removed on
// unsubscribe, with a last-listener-detaches teardown hook) and the
// reconnect-on-demand shape of internal/mqtt/publisher.go's
// autopaho-backed subscription. No example repo in the pack implements
// lazy upstream subscription as a generic primitive, so the bookkeeping
// here is hand-rolled on sync.Mutex rather than borrowed from a
// library — there is no ecosystem "lazy observable" dependency in the
// teacher's stack or the rest of the pack to reach for instead.
package signal

import (
	"sync"

	"github.com/AsherBond/lmstudio-go/internal/wire"
)

// Unsubscribe detaches a previously registered observer. Calling it
// more than once is a no-op.
type Unsubscribe func()

// UpstreamSubscribe is invoked exactly when the first observer attaches
// to a LazySignal, and must return a teardown func invoked exactly when
// the last observer detaches. onValue carries the write-tags attached
// to the update that produced it (§4.6.4: "deliver new value with
// tags"), even though most non-writable signal updates carry none.
type UpstreamSubscribe[T any] func(onValue func(T, []wire.WriteTag), onError func(error)) (teardown func())

// EqualsPredicate reports whether two values of T are equal for the
// purpose of suppressing redundant re-emission. A nil predicate treats
// every pushed value as a change.
type EqualsPredicate[T any] func(a, b T) bool

type observer[T any] struct {
	onValue func(T, []wire.WriteTag)
	onError func(error)
}

// LazySignal is an observable of T (§4.4) whose upstream subscription
// is created on first observer and torn down on last detach.
type LazySignal[T any] struct {
	mu sync.Mutex

	subscribeUpstream UpstreamSubscribe[T]
	equals            EqualsPredicate[T]

	observers map[uint64]*observer[T]
	nextID    uint64
	teardown  func()

	hasValue bool
	value    T
}

// NewLazySignal builds a LazySignal that calls subscribeUpstream on the
// first observer attach and its returned teardown on the last detach.
// A nil equals defaults to never suppressing re-emission (every pushed
// value is delivered), matching the spec's silence on a default
// predicate for non-comparable T.
func NewLazySignal[T any](subscribeUpstream UpstreamSubscribe[T], equals EqualsPredicate[T]) *LazySignal[T] {
	if equals == nil {
		equals = func(a, b T) bool { return false }
	}
	return &LazySignal[T]{
		subscribeUpstream: subscribeUpstream,
		equals:            equals,
		observers:         make(map[uint64]*observer[T]),
	}
}

// Get returns the current value and true, or the zero value of T and
// false if no value has arrived yet (the not-available case).
func (s *LazySignal[T]) Get() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.hasValue
}

// Subscribe attaches an observer, lazily starting the upstream
// subscription if this is the first one. The returned Unsubscribe
// detaches it, tearing down the upstream subscription if it was the
// last observer remaining.
func (s *LazySignal[T]) Subscribe(onValue func(T, []wire.WriteTag), onError func(error)) Unsubscribe {
	s.mu.Lock()

	id := s.nextID
	s.nextID++
	s.observers[id] = &observer[T]{onValue: onValue, onError: onError}

	first := len(s.observers) == 1
	if s.hasValue && onValue != nil {
		onValue(s.value, nil)
	}

	if first {
		sub := s.subscribeUpstream
		s.mu.Unlock()
		if sub != nil {
			teardown := sub(s.deliverValue, s.deliverError)
			s.mu.Lock()
			s.teardown = teardown
			s.mu.Unlock()
		}
	} else {
		s.mu.Unlock()
	}

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		last := len(s.observers) == 0
		teardown := s.teardown
		if last {
			s.teardown = nil
		}
		s.mu.Unlock()

		if last && teardown != nil {
			teardown()
		}
	}
}

// deliverValue is the listener passed to subscribeUpstream. It applies
// the equals predicate against the previously stored value and, on
// change, stores the new value and fans it out to every observer along
// with the tags that accompanied it.
func (s *LazySignal[T]) deliverValue(v T, tags []wire.WriteTag) {
	s.mu.Lock()
	if s.hasValue && s.equals(s.value, v) {
		s.mu.Unlock()
		return
	}
	s.value = v
	s.hasValue = true
	observers := make([]*observer[T], 0, len(s.observers))
	for _, o := range s.observers {
		observers = append(observers, o)
	}
	s.mu.Unlock()

	for _, o := range observers {
		if o.onValue != nil {
			o.onValue(v, tags)
		}
	}
}

// deliverError is the errorListener passed to subscribeUpstream.
func (s *LazySignal[T]) deliverError(err error) {
	s.mu.Lock()
	observers := make([]*observer[T], 0, len(s.observers))
	for _, o := range s.observers {
		observers = append(observers, o)
	}
	s.mu.Unlock()

	for _, o := range observers {
		if o.onError != nil {
			o.onError(err)
		}
	}
}

// observerCount reports the live observer count; exposed for tests.
func (s *LazySignal[T]) observerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.observers)
}
