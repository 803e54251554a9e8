package port

import (
	"fmt"

	"github.com/AsherBond/lmstudio-go/internal/patch"
	"github.com/AsherBond/lmstudio-go/internal/schema"
	"github.com/AsherBond/lmstudio-go/internal/signal"
	"github.com/AsherBond/lmstudio-go/internal/stackcapture"
	"github.com/AsherBond/lmstudio-go/internal/wire"
)

// CreateSignal implements createSignal (§4.6.4): it returns a
// LazySignal whose upstream subscription — allocating a subscribeId,
// emitting signalSubscribe, and installing the OpenSignalSubscription
// record — happens lazily, exactly when the first observer attaches.
func CreateSignal[T any](p *Port, name string, param any, stack string) (*signal.LazySignal[T], error) {
	desc, ok := p.registry.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoSuchEndpoint, name)
	}
	if desc.Kind != schema.KindSignal {
		return nil, fmt.Errorf("%w: %q is a %s endpoint", ErrWrongEndpointKind, name, desc.Kind)
	}

	validatedParam, err := desc.Signal.CreationParameter.Validate(param)
	if err != nil {
		return nil, fmt.Errorf("port: invalid creation parameter for %q: %w", name, err)
	}
	rawParam, err := marshalOrNil(validatedParam)
	if err != nil {
		return nil, fmt.Errorf("port: encode creation parameter for %q: %w", name, err)
	}
	stack = stackcapture.Resolve(stack, 1)

	var sig *signal.LazySignal[T]
	upstream := func(onValue func(T, []wire.WriteTag), onError func(error)) func() {
		id := p.allocSignalID()

		rec := &openSignalSubscription{
			endpoint: name,
			stack:    stack,
			receiveUpdate: func(patches []wire.Patch, tags []wire.WriteTag) error {
				current, _ := sig.Get()
				newValue, err := patch.ApplyTyped(current, patches)
				if err != nil {
					return fmt.Errorf("apply patches: %w", err)
				}
				validated, err := desc.Signal.SignalData.Validate(newValue)
				if err != nil {
					return fmt.Errorf("signalData schema: %w", err)
				}
				typed, ok := validated.(T)
				if !ok {
					return fmt.Errorf("signalData decoded to %T, not the expected type", validated)
				}
				onValue(typed, tags)
				return nil
			},
			receiveError: onError,
		}
		p.installSignalSubscription(id, rec)
		p.send(wire.Frame{Type: wire.TypeSignalSubscribe, Endpoint: name, SubscribeID: id, CreationParameter: rawParam})

		return func() {
			p.removeSignalSubscription(id)
			p.send(wire.Frame{Type: wire.TypeSignalUnsubscribe, SubscribeID: id})
		}
	}

	sig = signal.NewLazySignal[T](upstream, nil)
	return sig, nil
}

// onSignalUpdate handles an inbound signalUpdate frame (§4.6.4).
func (p *Port) onSignalUpdate(f wire.Frame) {
	p.mu.Lock()
	rec, ok := p.openSignals[f.SubscribeID]
	p.mu.Unlock()
	if !ok {
		p.communicationWarning(fmt.Sprintf("signalUpdate for unknown subscribeId %d", f.SubscribeID))
		return
	}
	if err := rec.receiveUpdate(f.Patches, f.Tags); err != nil {
		p.communicationWarning(fmt.Sprintf("signal %q: %v", rec.endpoint, err))
	}
}

// onSignalError handles an inbound signalError frame: terminal (P2).
func (p *Port) onSignalError(f wire.Frame) {
	rec, ok := p.removeSignalSubscription(f.SubscribeID)
	if !ok {
		p.communicationWarning(fmt.Sprintf("signalError for unknown subscribeId %d", f.SubscribeID))
		return
	}
	if f.Error == nil {
		rec.receiveError(fmt.Errorf("port: signalError for %q carried no error payload", rec.endpoint))
		return
	}
	rec.receiveError(p.deserialize(f.Error, rec.stack))
}
