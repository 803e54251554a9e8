// Package wire defines the on-the-wire message shapes exchanged between
// the client port and the local application server: frames, patches,
// write tags, and serialized errors. It mirrors internal/mcp/jsonrpc.go
// from the teacher codebase — one flattened struct per message family,
// `omitempty` on everything that isn't universal — scaled from JSON-RPC's
// two shapes (Request/Response) up to the ten frame kinds the protocol
// needs.
package wire

import "encoding/json"

// Frame kinds sent from the client to the server.
const (
	TypeRPCCall                     = "rpcCall"
	TypeChannelCreate                = "channelCreate"
	TypeChannelSendOut               = "channelSend"
	TypeSignalSubscribe              = "signalSubscribe"
	TypeSignalUnsubscribe            = "signalUnsubscribe"
	TypeWritableSignalSubscribe      = "writableSignalSubscribe"
	TypeWritableSignalUnsubscribe    = "writableSignalUnsubscribe"
	TypeWritableSignalUpdateOut      = "writableSignalUpdate"
	TypeCommunicationWarningOut      = "communicationWarning"
	TypeKeepAlive                    = "keepAlive"
)

// Frame kinds received from the server.
const (
	TypeRPCResult                 = "rpcResult"
	TypeRPCError                  = "rpcError"
	TypeChannelSendIn             = "channelSend"
	TypeChannelAck                = "channelAck"
	TypeChannelClose              = "channelClose"
	TypeChannelError              = "channelError"
	TypeSignalUpdate              = "signalUpdate"
	TypeSignalError               = "signalError"
	TypeWritableSignalUpdateIn    = "writableSignalUpdate"
	TypeWritableSignalError       = "writableSignalError"
	TypeCommunicationWarningIn    = "communicationWarning"
	TypeKeepAliveAck              = "keepAliveAck"
)

// WriteTag is a small label (string or integer) attached to a write so
// its origin is identifiable by observers. Multiple tag sources
// concatenate in emission order (§4.5).
type WriteTag = any

// Patch is one JSON-Patch-like structural edit operation (§6.2).
// Path is empty for a root replacement.
type Patch struct {
	Op    string `json:"op"`
	Path  []any  `json:"path"`
	Value any    `json:"value,omitempty"`
}

// SerializedError is the opaque, server-produced error shape (§6.4).
// The port never interprets it; it is handed to a user-supplied
// ErrorDeserializer.
type SerializedError struct {
	Title       string          `json:"title"`
	Cause       string          `json:"cause,omitempty"`
	Suggestion  string          `json:"suggestion,omitempty"`
	ErrorData   json.RawMessage `json:"errorData,omitempty"`
	DisplayData json.RawMessage `json:"displayData,omitempty"`
	Stack       string          `json:"stack,omitempty"`
	RootTitle   string          `json:"rootTitle,omitempty"`
}

// Frame is a tagged union over every inbound and outbound message shape.
// Type selects which of the remaining fields are meaningful; unused
// fields are omitted from the wire representation.
type Frame struct {
	Type string `json:"type"`

	// rpcCall / rpcResult / rpcError
	Endpoint  string           `json:"endpoint,omitempty"`
	CallID    uint64           `json:"callId,omitempty"`
	Parameter json.RawMessage  `json:"parameter,omitempty"`
	Result    json.RawMessage  `json:"result,omitempty"`
	Error     *SerializedError `json:"error,omitempty"`

	// channelCreate / channelSend / channelAck / channelClose / channelError
	ChannelID         uint64          `json:"channelId,omitempty"`
	CreationParameter json.RawMessage `json:"creationParameter,omitempty"`
	Message           json.RawMessage `json:"message,omitempty"`
	AckID             uint64          `json:"ackId,omitempty"`

	// signalSubscribe / signalUpdate / writableSignal* / signalError
	SubscribeID uint64     `json:"subscribeId,omitempty"`
	Patches     []Patch    `json:"patches,omitempty"`
	Tags        []WriteTag `json:"tags,omitempty"`

	// communicationWarning
	Warning string `json:"warning,omitempty"`
}
