package transport

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/AsherBond/lmstudio-go/internal/port"
	"github.com/AsherBond/lmstudio-go/internal/wire"
)

// IPC is a port.Transport over newline-delimited JSON frames carried on
// an arbitrary io.ReadWriteCloser — a Unix domain socket or a named pipe
// to a local application server process, generalized from the teacher's
// subprocess-stdio framing (internal/mcp/stdio.go) to a peer connection
// that is dialed by the caller rather than spawned by this package.
type IPC struct {
	conn    io.ReadWriteCloser
	writeMu sync.Mutex
	reader  *bufio.Reader
	logger  *slog.Logger

	onMessage func(wire.Frame)
	onError   func(error)

	closeOnce sync.Once
}

// IPCConfig configures the IPC transport.
type IPCConfig struct {
	// Logger receives transport diagnostics. Defaults to slog.Default().
	Logger *slog.Logger

	// Reader, if set, is the *bufio.Reader the read loop consumes frames
	// from, instead of one freshly wrapped around conn. Pass the same
	// reader a pre-connection handshake (e.g. auth.Perform) already read
	// its response from, so any protocol bytes that reader buffered past
	// the handshake response aren't silently dropped by a second,
	// independent reader layered over the same conn.
	Reader *bufio.Reader
}

// NewIPC wraps an already-connected io.ReadWriteCloser as a port.Factory.
// conn is owned by the resulting transport and closed by its Close method.
func NewIPC(conn io.ReadWriteCloser, cfg IPCConfig) port.Factory {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reader := cfg.Reader
	if reader == nil {
		reader = bufio.NewReaderSize(conn, 1<<20)
	}
	return func(onMessage func(wire.Frame), onError func(error)) port.Transport {
		ipc := &IPC{
			conn:      conn,
			reader:    reader,
			logger:    logger,
			onMessage: onMessage,
			onError:   onError,
		}
		go ipc.readLoop()
		return ipc
	}
}

// Send implements port.Transport: one frame, one newline-delimited JSON line.
func (t *IPC) Send(f wire.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("transport: encode frame: %w", err)
	}
	data = append(data, '\n')

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.conn.Write(data); err != nil {
		return fmt.Errorf("transport: write frame: %w", err)
	}
	return nil
}

// HavingNoOpenCommunication implements port.Transport.
func (t *IPC) HavingNoOpenCommunication() {
	t.logger.Debug("port has no open communications")
}

// HavingOneOrMoreOpenCommunication implements port.Transport.
func (t *IPC) HavingOneOrMoreOpenCommunication() {
	t.logger.Debug("port has one or more open communications")
}

// Close closes the underlying connection. Safe to call more than once.
func (t *IPC) Close() error {
	var err error
	t.closeOnce.Do(func() {
		err = t.conn.Close()
	})
	return err
}

func (t *IPC) readLoop() {
	for {
		line, err := t.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				t.logger.Info("ipc connection closed")
			} else {
				t.logger.Error("ipc read error, connection lost", "error", err)
			}
			t.onError(fmt.Errorf("transport: read frame: %w", err))
			return
		}

		var f wire.Frame
		if err := json.Unmarshal(line, &f); err != nil {
			t.logger.Warn("skipping malformed ipc frame", "error", err, "line", string(line))
			continue
		}
		t.onMessage(f)
	}
}
