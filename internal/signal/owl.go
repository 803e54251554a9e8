package signal

import (
	"errors"
	"sync"

	"github.com/AsherBond/lmstudio-go/internal/patch"
	"github.com/AsherBond/lmstudio-go/internal/wire"
)

// ErrNotSubscribed is returned by Write when no upstream session is
// active — either the signal has never been subscribed to, or its last
// observer has detached and torn the upstream session down.
var ErrNotSubscribed = errors.New("signal: not subscribed")

// Writer sends a locally-produced patch list upstream. It is supplied
// by the OWLUpstreamSubscribe closure at subscribe time and cleared at
// teardown, so Write fails with ErrNotSubscribed outside that window.
type Writer func(patches []wire.Patch, tags []wire.WriteTag) error

// OWLUpstreamSubscribe is invoked on first observer attach. It returns
// both the writer closure (installed for the lifetime of this upstream
// session) and the teardown func invoked on last detach — mirroring how
// the port's createWritableSignal captures the subscription's current
// subscribeId in both places at once (§4.6.5).
//
// onValue's caller (the port's writable-signal subscription record)
// applies and schema-validates an inbound update's patches itself,
// against Confirmed, and hands onValue the already-computed result —
// not the raw patches — so there is exactly one derivation of the new
// confirmed value, and committing it can't fail independently of the
// validation that already happened.
type OWLUpstreamSubscribe[T any] func(onValue func(newConfirmed T, tags []wire.WriteTag), onError func(error)) (writer Writer, teardown func())

type pendingWrite struct {
	patches []wire.Patch
	tags    []wire.WriteTag
}

// OWLSignal is the Optimistic Writable Lazy Signal (§4.4): a LazySignal
// extended with a setter and a pending-write queue. Writes apply
// locally first and are reconciled against confirmed server state as
// echoes arrive.
//
// Reconciliation policy (Open Question 1, decided): this implementation
// treats the oldest entry of pending as satisfied by the next inbound
// update while pending is non-empty — a plain FIFO-by-send-order
// policy. The spec is silent on echo-matching strategy beyond "the
// server echo is the reconciliation point"; FIFO is the simplest policy
// consistent with the single-executor, per-subscription FIFO delivery
// guarantee in §5, and matches how the teacher's internal/mqtt
// publisher correlates its own outbound QoS-1 publishes against
// inbound PUBACKs by send order rather than by payload inspection.
type OWLSignal[T any] struct {
	mu sync.Mutex

	subscribeUpstream OWLUpstreamSubscribe[T]
	equals            EqualsPredicate[T]

	observers map[uint64]*observer[T]
	nextID    uint64

	writer   Writer
	teardown func()

	hasConfirmed bool
	confirmed    T
	pending      []pendingWrite
}

// NewOWLSignal builds an OWLSignal over T.
func NewOWLSignal[T any](subscribeUpstream OWLUpstreamSubscribe[T], equals EqualsPredicate[T]) *OWLSignal[T] {
	if equals == nil {
		equals = func(a, b T) bool { return false }
	}
	return &OWLSignal[T]{
		subscribeUpstream: subscribeUpstream,
		equals:            equals,
		observers:         make(map[uint64]*observer[T]),
	}
}

// Get returns the current displayed value (confirmed state with any
// still-pending optimistic writes replayed on top) and whether a value
// is available yet.
func (s *OWLSignal[T]) Get() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked()
}

func (s *OWLSignal[T]) currentLocked() (T, bool) {
	if !s.hasConfirmed {
		var zero T
		return zero, false
	}
	value := s.confirmed
	for _, p := range s.pending {
		applied, err := patch.ApplyTyped(value, p.patches)
		if err != nil {
			// A malformed locally-produced patch can't be reconciled;
			// surface the confirmed baseline rather than panic.
			return s.confirmed, true
		}
		value = applied
	}
	return value, true
}

// Confirmed returns the last server-confirmed value alone, with no
// still-pending optimistic writes replayed on top — the baseline an
// inbound update's patches fold into, and the basis a writable-signal
// subscription schema-validates a pending update against before it is
// committed via receiveUpdate.
func (s *OWLSignal[T]) Confirmed() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasConfirmed {
		var zero T
		return zero, false
	}
	return s.confirmed, true
}

// Subscribe attaches an observer, lazily starting the upstream session
// on first attach and tearing it down on last detach.
func (s *OWLSignal[T]) Subscribe(onValue func(T, []wire.WriteTag), onError func(error)) Unsubscribe {
	s.mu.Lock()

	id := s.nextID
	s.nextID++
	s.observers[id] = &observer[T]{onValue: onValue, onError: onError}
	first := len(s.observers) == 1

	if v, ok := s.currentLocked(); ok && onValue != nil {
		onValue(v, nil)
	}

	if first {
		sub := s.subscribeUpstream
		s.mu.Unlock()
		if sub != nil {
			writer, teardown := sub(s.receiveUpdate, s.deliverError)
			s.mu.Lock()
			s.writer = writer
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
			s.writer = nil
		}
		s.mu.Unlock()

		if last && teardown != nil {
			teardown()
		}
	}
}

// Write is the raw optimistic-write primitive the Setter façade builds
// on (§4.5): it applies patches locally, queues them pending
// reconciliation, and forwards them upstream. It fails synchronously
// with ErrNotSubscribed if no upstream session is active.
func (s *OWLSignal[T]) Write(patches []wire.Patch, tags []wire.WriteTag) error {
	s.mu.Lock()
	if s.writer == nil {
		s.mu.Unlock()
		return ErrNotSubscribed
	}
	writer := s.writer
	s.pending = append(s.pending, pendingWrite{patches: patches, tags: tags})
	newValue, hasValue := s.currentLocked()
	observers := s.snapshotObservers()
	s.mu.Unlock()

	if hasValue {
		for _, o := range observers {
			if o.onValue != nil {
				o.onValue(newValue, tags)
			}
		}
	}

	return writer(patches, tags)
}

// receiveUpdate is the onValue callback passed to subscribeUpstream: the
// caller has already applied and schema-validated the inbound update
// against Confirmed, so this only commits newConfirmed and implements
// the reconciliation policy's bookkeeping — while writes are pending,
// the next inbound update is treated as the echo of the oldest one and
// drains it from the queue; once the queue is empty, inbound updates
// are genuine pushes. It cannot fail: the one place patches are applied
// to a value is the caller's validation step.
func (s *OWLSignal[T]) receiveUpdate(newConfirmed T, tags []wire.WriteTag) {
	s.mu.Lock()

	s.confirmed = newConfirmed
	s.hasConfirmed = true
	if len(s.pending) > 0 {
		s.pending = s.pending[1:]
	}

	value, _ := s.currentLocked()
	observers := s.snapshotObservers()
	s.mu.Unlock()

	for _, o := range observers {
		if o.onValue != nil {
			o.onValue(value, tags)
		}
	}
}

func (s *OWLSignal[T]) deliverError(err error) {
	s.mu.Lock()
	observers := s.snapshotObservers()
	s.mu.Unlock()
	for _, o := range observers {
		if o.onError != nil {
			o.onError(err)
		}
	}
}

// snapshotObservers must be called with mu held; it returns a copy safe
// to range over after unlocking.
func (s *OWLSignal[T]) snapshotObservers() []*observer[T] {
	observers := make([]*observer[T], 0, len(s.observers))
	for _, o := range s.observers {
		observers = append(observers, o)
	}
	return observers
}
