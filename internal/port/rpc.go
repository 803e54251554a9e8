package port

import (
	"encoding/json"
	"fmt"

	"github.com/AsherBond/lmstudio-go/internal/schema"
	"github.com/AsherBond/lmstudio-go/internal/stackcapture"
	"github.com/AsherBond/lmstudio-go/internal/wire"
)

type rpcOutcome struct {
	result json.RawMessage
	err    error
}

// CallRPC implements callRpc (§4.6.2). P is the parameter type, R the
// result type; both are validated against the endpoint's registered
// schemas. It blocks until the matching rpcResult/rpcError arrives or
// the transport errors — the one user-facing suspension point named in
// §5.
func CallRPC[P any, R any](p *Port, name string, param P, stack string) (R, error) {
	var zero R

	desc, ok := p.registry.Lookup(name)
	if !ok {
		return zero, fmt.Errorf("%w: %q", ErrNoSuchEndpoint, name)
	}
	if desc.Kind != schema.KindRPC {
		return zero, fmt.Errorf("%w: %q is a %s endpoint", ErrWrongEndpointKind, name, desc.Kind)
	}

	validated, err := desc.RPC.Parameter.Validate(param)
	if err != nil {
		return zero, fmt.Errorf("port: invalid parameter for %q: %w", name, err)
	}

	id := p.allocCallID()
	stack = stackcapture.Resolve(stack, 1)

	outcome := make(chan rpcOutcome, 1)
	p.installRPC(id, &ongoingRPC{
		endpoint: name,
		returns:  desc.RPC.Returns,
		stack:    stack,
		resolve:  func(raw json.RawMessage) { outcome <- rpcOutcome{result: raw} },
		reject:   func(err error) { outcome <- rpcOutcome{err: err} },
	})

	raw, err := json.Marshal(validated)
	if err != nil {
		p.removeRPC(id)
		return zero, fmt.Errorf("port: encode parameter for %q: %w", name, err)
	}

	if err := p.send(wire.Frame{Type: wire.TypeRPCCall, Endpoint: name, CallID: id, Parameter: raw}); err != nil {
		p.removeRPC(id)
		return zero, err
	}

	result := <-outcome
	if result.err != nil {
		return zero, result.err
	}

	var decoded R
	if err := json.Unmarshal(result.result, &decoded); err != nil {
		return zero, fmt.Errorf("port: decode result for %q: %w", name, err)
	}
	return decoded, nil
}

// onRPCResult handles an inbound rpcResult frame.
func (p *Port) onRPCResult(f wire.Frame) {
	rec, ok := p.removeRPC(f.CallID)
	if !ok {
		p.communicationWarning(fmt.Sprintf("rpcResult for unknown callId %d", f.CallID))
		return
	}

	validated, err := rec.returns.Validate(f.Result)
	if err != nil {
		rec.reject(fmt.Errorf("port: invalid result for %q: %w", rec.endpoint, err))
		return
	}
	raw, err := json.Marshal(validated)
	if err != nil {
		rec.reject(fmt.Errorf("port: re-encode result for %q: %w", rec.endpoint, err))
		return
	}
	rec.resolve(raw)
}

// onRPCError handles an inbound rpcError frame.
func (p *Port) onRPCError(f wire.Frame) {
	rec, ok := p.removeRPC(f.CallID)
	if !ok {
		p.communicationWarning(fmt.Sprintf("rpcError for unknown callId %d", f.CallID))
		return
	}
	if f.Error == nil {
		rec.reject(fmt.Errorf("port: rpcError for %q carried no error payload", rec.endpoint))
		return
	}
	rec.reject(p.deserialize(f.Error, rec.stack))
}
