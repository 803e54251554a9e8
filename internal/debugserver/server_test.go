package debugserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AsherBond/lmstudio-go/internal/port"
	"github.com/AsherBond/lmstudio-go/internal/schema"
	"github.com/AsherBond/lmstudio-go/internal/wire"
)

type fakeTransport struct{}

func (fakeTransport) Send(wire.Frame) error             { return nil }
func (fakeTransport) HavingNoOpenCommunication()        {}
func (fakeTransport) HavingOneOrMoreOpenCommunication() {}

func newTestPort() *port.Port {
	registry := schema.NewRegistry()
	factory := func(onMessage func(wire.Frame), onError func(error)) port.Transport {
		return fakeTransport{}
	}
	return port.New(registry, factory, port.Options{})
}

func TestHandleStatus_ReportsPortCounters(t *testing.T) {
	p := newTestPort()
	s := New("127.0.0.1:0", p, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	s.handleStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rec.Code)
	}

	var snap statusSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if snap.OpenCommunicationCount != 0 {
		t.Errorf("OpenCommunicationCount = %d, want 0", snap.OpenCommunicationCount)
	}
	if snap.WarningCount != 0 {
		t.Errorf("WarningCount = %d, want 0", snap.WarningCount)
	}
}

func TestHandleIndex_RendersHTMLPage(t *testing.T) {
	p := newTestPort()
	s := New("127.0.0.1:0", p, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	s.handleIndex(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct == "" {
		t.Error("expected a Content-Type header")
	}
	if rec.Body.Len() == 0 {
		t.Fatal("expected a non-empty HTML body")
	}
}

func TestRenderMarkdown_ConvertsToHTML(t *testing.T) {
	out := renderMarkdown("**bold** suggestion")
	if out == "" {
		t.Fatal("expected non-empty rendered output")
	}
}
