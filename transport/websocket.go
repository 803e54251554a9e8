// Package transport implements the Frame Transport contract (§4.2) over
// three concrete carriers: WebSocket, a newline-delimited-JSON IPC pipe,
// and MQTT. Each satisfies port.Transport and is built by a port.Factory.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"golang.org/x/net/proxy"

	"github.com/AsherBond/lmstudio-go/internal/port"
	"github.com/AsherBond/lmstudio-go/internal/wire"
)

// WebSocketConfig configures the WebSocket transport.
type WebSocketConfig struct {
	// URL is the server's websocket endpoint, e.g. "ws://127.0.0.1:1234/llm_chat".
	URL string
	// ProxyURL, if set, dials through a SOCKS5 proxy (e.g. "socks5://127.0.0.1:1080").
	ProxyURL string
	// Logger receives connection lifecycle logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// WebSocket is a port.Transport over a gorilla/websocket connection.
// It dials once, up front, and then reads frames on its own goroutine,
// handing each to onMessage; a read error is terminal and reported once
// through onError, mirroring the teacher's WSClient.readLoop.
type WebSocket struct {
	conn   *websocket.Conn
	connMu sync.Mutex
	logger *slog.Logger

	onMessage func(wire.Frame)
	onError   func(error)

	closeOnce sync.Once
}

// DialWebSocket connects to cfg.URL and returns a port.Factory that wires
// the resulting connection to a Port. Dialing happens here, not inside
// the returned factory, so a connection failure surfaces immediately
// rather than as a deferred onError call.
func DialWebSocket(ctx context.Context, cfg WebSocketConfig) (port.Factory, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dialer := websocket.Dialer{
		ReadBufferSize:  1024 * 1024,
		WriteBufferSize: 64 * 1024,
	}
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("transport: parse proxy url: %w", err)
		}
		socksDialer, err := proxy.FromURL(proxyURL, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("transport: build socks5 dialer: %w", err)
		}
		dialer.NetDialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
			return socksDialer.Dial(network, addr)
		}
	}

	logger.Info("connecting to application server", "url", cfg.URL)
	conn, _, err := dialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial websocket: %w", err)
	}
	conn.SetReadLimit(100 * 1024 * 1024)

	return func(onMessage func(wire.Frame), onError func(error)) port.Transport {
		ws := &WebSocket{conn: conn, logger: logger, onMessage: onMessage, onError: onError}
		go ws.readLoop()
		return ws
	}, nil
}

// Send implements port.Transport.
func (w *WebSocket) Send(f wire.Frame) error {
	w.connMu.Lock()
	defer w.connMu.Unlock()
	if err := w.conn.WriteJSON(f); err != nil {
		return fmt.Errorf("transport: write frame: %w", err)
	}
	return nil
}

// HavingNoOpenCommunication implements port.Transport. The WebSocket
// transport keeps the connection open regardless — idle-shutdown policy,
// if any, belongs to the caller wrapping this transport, not to the
// transport itself.
func (w *WebSocket) HavingNoOpenCommunication() {
	w.logger.Debug("port has no open communications")
}

// HavingOneOrMoreOpenCommunication implements port.Transport.
func (w *WebSocket) HavingOneOrMoreOpenCommunication() {
	w.logger.Debug("port has one or more open communications")
}

// Close closes the underlying connection. Safe to call more than once.
func (w *WebSocket) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.connMu.Lock()
		err = w.conn.Close()
		w.connMu.Unlock()
	})
	return err
}

func (w *WebSocket) readLoop() {
	for {
		var f wire.Frame

		w.connMu.Lock()
		conn := w.conn
		w.connMu.Unlock()

		if err := conn.ReadJSON(&f); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				w.logger.Info("websocket closed normally")
				w.onError(fmt.Errorf("transport: connection closed"))
				return
			}
			w.logger.Error("websocket read error, connection lost", "error", err)
			w.onError(fmt.Errorf("transport: read frame: %w", err))
			return
		}
		w.onMessage(f)
	}
}
