package transport

import (
	"net"
	"testing"
	"time"

	"github.com/AsherBond/lmstudio-go/internal/wire"
)

func TestIPC_SendWritesNewlineDelimitedFrame(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	received := make(chan wire.Frame, 1)
	factory := NewIPC(client, IPCConfig{})
	tr := factory(func(f wire.Frame) { received <- f }, func(error) {}).(*IPC)
	defer tr.Close()

	done := make(chan struct{})
	go func() {
		buf := make([]byte, 4096)
		n, err := server.Read(buf)
		if err != nil {
			t.Errorf("server read: %v", err)
			return
		}
		if buf[n-1] != '\n' {
			t.Errorf("expected newline-terminated frame, got %q", buf[:n])
		}
		close(done)
	}()

	if err := tr.Send(wire.Frame{Type: wire.TypeRPCCall, Endpoint: "add", CallID: 1}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for server to read frame")
	}
}

func TestIPC_ReadLoopDeliversInboundFrames(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	received := make(chan wire.Frame, 1)
	factory := NewIPC(client, IPCConfig{})
	tr := factory(func(f wire.Frame) { received <- f }, func(error) {}).(*IPC)
	defer tr.Close()

	go func() {
		server.Write([]byte(`{"type":"rpcResult","callId":1,"result":5}` + "\n"))
	}()

	select {
	case f := <-received:
		if f.Type != wire.TypeRPCResult || f.CallID != 1 {
			t.Fatalf("unexpected frame: %+v", f)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for inbound frame")
	}
}

func TestIPC_ReadErrorReportedOnce(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	errCh := make(chan error, 1)
	factory := NewIPC(client, IPCConfig{})
	tr := factory(func(wire.Frame) {}, func(err error) { errCh <- err }).(*IPC)
	defer tr.Close()

	server.Close()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected a non-nil error")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for onError")
	}

	select {
	case err := <-errCh:
		t.Fatalf("onError called a second time: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}
