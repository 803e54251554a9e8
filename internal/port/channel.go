package port

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/AsherBond/lmstudio-go/internal/schema"
	"github.com/AsherBond/lmstudio-go/internal/stackcapture"
	"github.com/AsherBond/lmstudio-go/internal/wire"
)

// Channel is the user-facing bidirectional object createChannel
// returns (§4.6.3): send(packet), and observable onMessage/onClose/
// onError, plus per-send acknowledgements.
type Channel struct {
	port           *Port
	id             uint64
	endpoint       string
	toServerPacket schema.Schema

	mu          sync.Mutex
	nextAckID   uint64
	pendingAcks map[uint64]chan error

	onMessage func(json.RawMessage)
	onClose   func()
	onError   func(error)
}

// CreateChannel implements createChannel (§4.6.3). onMessage may be
// nil; it can also be set or replaced later via Channel.OnMessage.
func CreateChannel[P any](p *Port, name string, param P, onMessage func(json.RawMessage), stack string) (*Channel, error) {
	desc, ok := p.registry.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoSuchEndpoint, name)
	}
	if desc.Kind != schema.KindChannel {
		return nil, fmt.Errorf("%w: %q is a %s endpoint", ErrWrongEndpointKind, name, desc.Kind)
	}

	validated, err := desc.Channel.CreationParameter.Validate(param)
	if err != nil {
		return nil, fmt.Errorf("port: invalid creation parameter for %q: %w", name, err)
	}

	id := p.allocCallID()
	stack = stackcapture.Resolve(stack, 1)

	ch := &Channel{
		port:           p,
		id:             id,
		endpoint:       name,
		toServerPacket: desc.Channel.ToServerPacket,
		pendingAcks:    make(map[uint64]chan error),
		onMessage:      onMessage,
	}
	p.installChannel(id, &openChannelRecord{endpoint: name, stack: stack, channel: ch})

	raw, err := json.Marshal(validated)
	if err != nil {
		p.removeChannel(id)
		return nil, fmt.Errorf("port: encode creation parameter for %q: %w", name, err)
	}
	if err := p.send(wire.Frame{Type: wire.TypeChannelCreate, Endpoint: name, ChannelID: id, CreationParameter: raw}); err != nil {
		p.removeChannel(id)
		return nil, err
	}

	return ch, nil
}

// OnMessage sets the inbound message handler.
func (c *Channel) OnMessage(fn func(json.RawMessage)) {
	c.mu.Lock()
	c.onMessage = fn
	c.mu.Unlock()
}

// OnClose sets the close handler, invoked on inbound channelClose.
func (c *Channel) OnClose(fn func()) {
	c.mu.Lock()
	c.onClose = fn
	c.mu.Unlock()
}

// OnError sets the error handler, invoked on inbound channelError or
// on transport-error propagation (§4.6.7).
func (c *Channel) OnError(fn func(error)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

// Send validates packet against the endpoint's toServerPacket schema,
// emits it with a fresh ackId, and blocks until the matching
// channelAck arrives, the channel closes/errors, or ctx is done.
func (c *Channel) Send(ctx context.Context, packet any) error {
	validated, err := c.toServerPacket.Validate(packet)
	if err != nil {
		return fmt.Errorf("port: invalid packet for channel %q: %w", c.endpoint, err)
	}
	raw, err := json.Marshal(validated)
	if err != nil {
		return fmt.Errorf("port: encode packet for channel %q: %w", c.endpoint, err)
	}

	ackCh := make(chan error, 1)
	c.mu.Lock()
	ackID := c.nextAckID
	c.nextAckID++
	c.pendingAcks[ackID] = ackCh
	c.mu.Unlock()

	if err := c.port.send(wire.Frame{Type: wire.TypeChannelSendOut, ChannelID: c.id, Message: raw, AckID: ackID}); err != nil {
		c.mu.Lock()
		delete(c.pendingAcks, ackID)
		c.mu.Unlock()
		return err
	}

	select {
	case err := <-ackCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Channel) deliverMessage(raw json.RawMessage) {
	c.mu.Lock()
	fn := c.onMessage
	c.mu.Unlock()
	if fn != nil {
		fn(raw)
	}
}

func (c *Channel) deliverAck(ackID uint64, err error) {
	c.mu.Lock()
	ch, ok := c.pendingAcks[ackID]
	if ok {
		delete(c.pendingAcks, ackID)
	}
	c.mu.Unlock()
	if ok {
		ch <- err
	}
}

func (c *Channel) deliverClose() {
	c.mu.Lock()
	fn := c.onClose
	pending := c.drainPendingAcksLocked()
	c.mu.Unlock()
	c.failPending(pending, fmt.Errorf("port: channel %q closed", c.endpoint))
	if fn != nil {
		fn()
	}
}

func (c *Channel) deliverError(err error) {
	c.mu.Lock()
	fn := c.onError
	pending := c.drainPendingAcksLocked()
	c.mu.Unlock()
	c.failPending(pending, err)
	if fn != nil {
		fn(err)
	}
}

// drainPendingAcksLocked must be called with mu held.
func (c *Channel) drainPendingAcksLocked() []chan error {
	pending := make([]chan error, 0, len(c.pendingAcks))
	for id, ch := range c.pendingAcks {
		pending = append(pending, ch)
		delete(c.pendingAcks, id)
	}
	return pending
}

func (c *Channel) failPending(pending []chan error, err error) {
	for _, ch := range pending {
		ch <- err
	}
}

// onChannelSendIn handles an inbound channelSend frame (server→client
// message on an existing channel).
func (p *Port) onChannelSendIn(f wire.Frame) {
	rec, ok := p.lookupChannel(f.ChannelID)
	if !ok {
		p.communicationWarning(fmt.Sprintf("channelSend for unknown channelId %d", f.ChannelID))
		return
	}

	desc, _ := p.registry.Lookup(rec.endpoint)
	if desc.Channel != nil && desc.Channel.ToClientPacket != nil {
		validated, err := desc.Channel.ToClientPacket.Validate(f.Message)
		if err != nil {
			p.communicationWarning(fmt.Sprintf("channel %q: inbound message failed schema validation: %v", rec.endpoint, err))
			return
		}
		raw, err := json.Marshal(validated)
		if err != nil {
			p.communicationWarning(fmt.Sprintf("channel %q: re-encode inbound message: %v", rec.endpoint, err))
			return
		}
		rec.channel.deliverMessage(raw)
		return
	}
	rec.channel.deliverMessage(f.Message)
}

// onChannelAck handles an inbound channelAck frame.
func (p *Port) onChannelAck(f wire.Frame) {
	rec, ok := p.lookupChannel(f.ChannelID)
	if !ok {
		p.communicationWarning(fmt.Sprintf("channelAck for unknown channelId %d", f.ChannelID))
		return
	}
	rec.channel.deliverAck(f.AckID, nil)
}

// onChannelClose handles an inbound channelClose frame: terminal,
// removes the record (P2).
func (p *Port) onChannelClose(f wire.Frame) {
	rec, ok := p.removeChannel(f.ChannelID)
	if !ok {
		p.communicationWarning(fmt.Sprintf("channelClose for unknown channelId %d", f.ChannelID))
		return
	}
	rec.channel.deliverClose()
}

// onChannelError handles an inbound channelError frame: terminal,
// removes the record (P2).
func (p *Port) onChannelError(f wire.Frame) {
	rec, ok := p.removeChannel(f.ChannelID)
	if !ok {
		p.communicationWarning(fmt.Sprintf("channelError for unknown channelId %d", f.ChannelID))
		return
	}
	if f.Error == nil {
		rec.channel.deliverError(fmt.Errorf("port: channelError for %q carried no error payload", rec.endpoint))
		return
	}
	rec.channel.deliverError(p.deserialize(f.Error, rec.stack))
}
