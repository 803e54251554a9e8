package port

import (
	"fmt"

	"github.com/AsherBond/lmstudio-go/internal/patch"
	"github.com/AsherBond/lmstudio-go/internal/schema"
	"github.com/AsherBond/lmstudio-go/internal/setter"
	"github.com/AsherBond/lmstudio-go/internal/signal"
	"github.com/AsherBond/lmstudio-go/internal/stackcapture"
	"github.com/AsherBond/lmstudio-go/internal/wire"
)

// CreateWritableSignal implements createWritableSignal (§4.6.5): same
// lazy subscription protocol as CreateSignal, plus an upstream-writer
// closure captured alongside the subscribeId so writes fail fast with
// signal.ErrNotSubscribed once the upstream session tears down.
func CreateWritableSignal[T any](p *Port, name string, param any, stack string) (*signal.OWLSignal[T], *setter.Setter[T], error) {
	desc, ok := p.registry.Lookup(name)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrNoSuchEndpoint, name)
	}
	if desc.Kind != schema.KindWritableSignal {
		return nil, nil, fmt.Errorf("%w: %q is a %s endpoint", ErrWrongEndpointKind, name, desc.Kind)
	}

	validatedParam, err := desc.WritableSignal.CreationParameter.Validate(param)
	if err != nil {
		return nil, nil, fmt.Errorf("port: invalid creation parameter for %q: %w", name, err)
	}
	rawParam, err := marshalOrNil(validatedParam)
	if err != nil {
		return nil, nil, fmt.Errorf("port: encode creation parameter for %q: %w", name, err)
	}
	stack = stackcapture.Resolve(stack, 1)

	var owl *signal.OWLSignal[T]
	upstream := func(onValue func(T, []wire.WriteTag), onError func(error)) (signal.Writer, func()) {
		id := p.allocWritableSignalID()

		rec := &openWritableSignalSubscription{
			endpoint: name,
			stack:    stack,
			receiveUpdate: func(patches []wire.Patch, tags []wire.WriteTag) error {
				base, _ := owl.Confirmed()
				newValue, err := patch.ApplyTyped(base, patches)
				if err != nil {
					return fmt.Errorf("apply patches: %w", err)
				}
				if _, err := desc.WritableSignal.SignalData.Validate(newValue); err != nil {
					return fmt.Errorf("signalData schema: %w", err)
				}
				onValue(newValue, tags)
				return nil
			},
			receiveError: onError,
		}
		p.installWritableSignalSubscription(id, rec)
		p.send(wire.Frame{Type: wire.TypeWritableSignalSubscribe, Endpoint: name, SubscribeID: id, CreationParameter: rawParam})

		writer := signal.Writer(func(patches []wire.Patch, tags []wire.WriteTag) error {
			return p.send(wire.Frame{Type: wire.TypeWritableSignalUpdateOut, SubscribeID: id, Patches: patches, Tags: tags})
		})
		teardown := func() {
			p.removeWritableSignalSubscription(id)
			p.send(wire.Frame{Type: wire.TypeWritableSignalUnsubscribe, SubscribeID: id})
		}
		return writer, teardown
	}

	owl = signal.NewOWLSignal[T](upstream, nil)
	return owl, setter.ForOWLSignal(owl), nil
}

// onWritableSignalUpdate handles an inbound writableSignalUpdate frame
// (§4.6.5): both genuine server pushes and echoes of the client's own
// writes arrive here; OWLSignal's reconciliation policy distinguishes
// them (see internal/signal's FIFO policy documentation).
func (p *Port) onWritableSignalUpdate(f wire.Frame) {
	p.mu.Lock()
	rec, ok := p.openWritableSignals[f.SubscribeID]
	p.mu.Unlock()
	if !ok {
		p.communicationWarning(fmt.Sprintf("writableSignalUpdate for unknown subscribeId %d", f.SubscribeID))
		return
	}
	if err := rec.receiveUpdate(f.Patches, f.Tags); err != nil {
		p.communicationWarning(fmt.Sprintf("writable signal %q: %v", rec.endpoint, err))
	}
}

// onWritableSignalError handles an inbound writableSignalError frame:
// terminal (P2).
func (p *Port) onWritableSignalError(f wire.Frame) {
	rec, ok := p.removeWritableSignalSubscription(f.SubscribeID)
	if !ok {
		p.communicationWarning(fmt.Sprintf("writableSignalError for unknown subscribeId %d", f.SubscribeID))
		return
	}
	if f.Error == nil {
		rec.receiveError(fmt.Errorf("port: writableSignalError for %q carried no error payload", rec.endpoint))
		return
	}
	rec.receiveError(p.deserialize(f.Error, rec.stack))
}
