// Package debugserver provides a tiny observational HTTP page over a
// running Port: its live open-communications count, the communication
// warning counter, and the last few warning texts. It reads the port's
// already-public counters and never touches its in-flight tables, so
// it stays squarely a collaborator rather than part of the core (§4.6).
//
// Grounded on internal/api/server.go's Server struct / http.Server
// lifecycle and its writeJSON helper.
package debugserver

import (
	"bytes"
	"context"
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/yuin/goldmark"

	"github.com/AsherBond/lmstudio-go/internal/port"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response,
// which is not actionable but worth tracking for debugging.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the diagnostics HTTP server.
type Server struct {
	addr      string
	port      *port.Port
	startedAt time.Time
	logger    *slog.Logger
	server    *http.Server
}

// New constructs a diagnostics Server observing p. listen is the
// address to bind, e.g. "127.0.0.1:8337".
func New(listen string, p *port.Port, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:      listen,
		port:      p,
		startedAt: time.Now(),
		logger:    logger,
	}
}

// Start begins serving the diagnostics page. It blocks until the
// server stops, mirroring net/http.Server.ListenAndServe.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleIndex)
	mux.HandleFunc("GET /status", s.handleStatus)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.logger.Info("starting debug server", "address", s.addr)
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// statusSnapshot is the JSON/HTML-rendered view of the port's state.
type statusSnapshot struct {
	Uptime                 string   `json:"uptime"`
	OpenCommunicationCount int      `json:"open_communication_count"`
	WarningCount           int      `json:"warning_count"`
	RecentWarnings         []string `json:"recent_warnings"`
}

func (s *Server) snapshot() statusSnapshot {
	return statusSnapshot{
		Uptime:                 humanize.RelTime(s.startedAt, time.Now(), "", ""),
		OpenCommunicationCount: s.port.OpenCommunicationCount(),
		WarningCount:           s.port.WarningCount(),
		RecentWarnings:         s.port.RecentWarnings(),
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.snapshot(), s.logger)
}

// indexTemplate renders the snapshot as a minimal HTML page, with each
// recent warning text run through goldmark as markdown.
var indexTemplate = template.Must(template.New("index").Parse(`<!doctype html>
<title>lmsclient diagnostics</title>
<h1>lmsclient diagnostics</h1>
<p>up {{.Uptime}}</p>
<p>open communications: {{.OpenCommunicationCount}}</p>
<p>communication warnings: {{.WarningCount}}</p>
<ul>
{{range .RenderedWarnings}}<li>{{.}}</li>
{{end}}
</ul>
`))

type indexView struct {
	statusSnapshot
	RenderedWarnings []template.HTML
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot()
	view := indexView{statusSnapshot: snap}
	for _, warning := range snap.RecentWarnings {
		view.RenderedWarnings = append(view.RenderedWarnings, renderMarkdown(warning))
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, view); err != nil {
		s.logger.Debug("failed to render debug page", "error", err)
	}
}

// renderMarkdown converts a warning text to HTML via goldmark's default
// renderer, which does not pass raw HTML in its input through.
func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String())
}
