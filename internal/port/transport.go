// Package port implements the Client Port (§4.6): the per-transport
// multiplexer that issues identifiers, validates every payload against
// the Schema Registry, demultiplexes inbound frames to the right
// in-flight record, drives RPC/channel/signal lifecycles, tracks
// liveness of open communications, and performs protocol-sanity checks
// that never raise to user code but surface as communication warnings.
//
// Grounded on the teacher's internal/mcp/client.go (send/nextID
// request-response bookkeeping) and internal/homeassistant/websocket.go
// (the pending-request map plus single readLoop dispatch goroutine),
// generalized from one in-flight table to the four independent ones
// §3 names, and from one ID counter to three (Invariant R2). Uses
// log/slog the way those two teacher files do.
package port

import "github.com/AsherBond/lmstudio-go/internal/wire"

// Transport is the Frame Transport contract (§4.2) as consumed by the
// port: send frames in FIFO order, and learn of the port's open/idle
// edge transitions so an idle-shutdown policy can act on them. The
// onMessage/onError halves of the contract are callbacks the port
// itself supplies to Factory, not methods on this interface.
type Transport interface {
	// Send delivers frame to the peer. Implementations must preserve
	// call order (per-transport FIFO, §5).
	Send(frame wire.Frame) error

	// HavingNoOpenCommunication is called at most once per 0-transition
	// of the port's open-communications count.
	HavingNoOpenCommunication()

	// HavingOneOrMoreOpenCommunication is called at most once per
	// 0→≥1 transition of the port's open-communications count.
	HavingOneOrMoreOpenCommunication()
}

// Factory constructs a Transport, wiring onMessage/onError as the
// callbacks the transport must invoke (on its own goroutine or event
// loop) whenever a frame arrives or the connection terminally fails.
// Construction never blocks (§4.6.1); the transport may still be
// connecting when Factory returns.
type Factory func(onMessage func(wire.Frame), onError func(error)) Transport
