package signal

import (
	"errors"
	"testing"

	"github.com/AsherBond/lmstudio-go/internal/wire"
)

func TestLazySignal_SubscribeTriggersUpstreamOnce(t *testing.T) {
	subscribeCount := 0
	var storedOnValue func(int, []wire.WriteTag)

	s := NewLazySignal[int](func(onValue func(int, []wire.WriteTag), onError func(error)) func() {
		subscribeCount++
		storedOnValue = onValue
		return func() {}
	}, nil)

	unsub1 := s.Subscribe(func(int, []wire.WriteTag) {}, nil)
	unsub2 := s.Subscribe(func(int, []wire.WriteTag) {}, nil)

	if subscribeCount != 1 {
		t.Fatalf("subscribeCount = %d, want 1 (lazy: only first observer triggers upstream)", subscribeCount)
	}

	storedOnValue(5, nil)
	v, ok := s.Get()
	if !ok || v != 5 {
		t.Fatalf("Get() = (%v, %v), want (5, true)", v, ok)
	}

	unsub1()
	unsub2()
}

func TestLazySignal_TeardownOnLastDetach(t *testing.T) {
	torndown := false

	s := NewLazySignal[int](func(onValue func(int, []wire.WriteTag), onError func(error)) func() {
		return func() { torndown = true }
	}, nil)

	unsub1 := s.Subscribe(func(int, []wire.WriteTag) {}, nil)
	unsub2 := s.Subscribe(func(int, []wire.WriteTag) {}, nil)

	unsub1()
	if torndown {
		t.Fatal("teardown fired before last observer detached")
	}
	unsub2()
	if !torndown {
		t.Fatal("teardown did not fire after last observer detached")
	}
}

func TestLazySignal_ResubscribeAfterTeardownRetainsValue(t *testing.T) {
	var storedOnValue func(int, []wire.WriteTag)
	subscribeCount := 0

	s := NewLazySignal[int](func(onValue func(int, []wire.WriteTag), onError func(error)) func() {
		subscribeCount++
		storedOnValue = onValue
		return func() {}
	}, nil)

	unsub := s.Subscribe(func(int, []wire.WriteTag) {}, nil)
	storedOnValue(42, nil)
	unsub()

	var delivered int
	s.Subscribe(func(v int, _ []wire.WriteTag) { delivered = v }, nil)

	if subscribeCount != 2 {
		t.Fatalf("subscribeCount = %d, want 2 (fresh upstream session on resubscribe)", subscribeCount)
	}
	if delivered != 42 {
		t.Fatalf("delivered = %d, want 42 (retained value delivered immediately)", delivered)
	}
}

func TestLazySignal_EqualsPredicateSuppressesDuplicate(t *testing.T) {
	var storedOnValue func(int, []wire.WriteTag)
	deliveries := 0

	s := NewLazySignal[int](func(onValue func(int, []wire.WriteTag), onError func(error)) func() {
		storedOnValue = onValue
		return func() {}
	}, func(a, b int) bool { return a == b })

	s.Subscribe(func(int, []wire.WriteTag) { deliveries++ }, nil)

	storedOnValue(1, nil)
	storedOnValue(1, nil)
	storedOnValue(2, nil)

	if deliveries != 2 {
		t.Fatalf("deliveries = %d, want 2 (duplicate 1 suppressed)", deliveries)
	}
}

func TestLazySignal_TagsPropagateToObserver(t *testing.T) {
	var storedOnValue func(int, []wire.WriteTag)
	var gotTags []wire.WriteTag

	s := NewLazySignal[int](func(onValue func(int, []wire.WriteTag), onError func(error)) func() {
		storedOnValue = onValue
		return func() {}
	}, nil)

	s.Subscribe(func(_ int, tags []wire.WriteTag) { gotTags = tags }, nil)
	storedOnValue(1, []wire.WriteTag{"origin"})

	if len(gotTags) != 1 || gotTags[0] != "origin" {
		t.Errorf("gotTags = %v, want [origin]", gotTags)
	}
}

func TestLazySignal_GetNotAvailableBeforeFirstValue(t *testing.T) {
	s := NewLazySignal[int](func(onValue func(int, []wire.WriteTag), onError func(error)) func() {
		return func() {}
	}, nil)

	_, ok := s.Get()
	if ok {
		t.Fatal("expected Get() to report not-available before any value arrives")
	}
}

func TestLazySignal_ErrorDeliveredToObservers(t *testing.T) {
	var storedOnError func(error)
	var gotErr error

	s := NewLazySignal[int](func(onValue func(int, []wire.WriteTag), onError func(error)) func() {
		storedOnError = onError
		return func() {}
	}, nil)

	s.Subscribe(func(int, []wire.WriteTag) {}, func(err error) { gotErr = err })

	boom := errors.New("boom")
	storedOnError(boom)

	if !errors.Is(gotErr, boom) {
		t.Fatalf("gotErr = %v, want %v", gotErr, boom)
	}
}
