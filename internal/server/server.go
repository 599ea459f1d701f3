// Package server exposes the highlighting engine over HTTP.
//
// Endpoints:
//
//	POST /v1/html       render one batch frame to per-line HTML
//	GET  /v1/languages  registered languages and scope names
//	GET  /healthz       liveness
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/netutil"

	"github.com/prismd/prismd/internal/config"
	"github.com/prismd/prismd/internal/engine"
	"github.com/prismd/prismd/internal/errors"
	"github.com/prismd/prismd/internal/logging"
	"github.com/prismd/prismd/internal/protocol"
	"github.com/prismd/prismd/internal/registry"
)

// FrameContentType marks binary batch frames on both directions.
const FrameContentType = "application/x-prismd-frame"

// Server owns the HTTP listener and routes requests into the coordinator.
type Server struct {
	cfg         *config.Config
	coordinator *engine.Coordinator
	registry    *registry.Table
	log         logging.Logger

	httpServer *http.Server

	mu       sync.Mutex
	listener net.Listener
	shutdown bool
}

// New wires a server around an already-constructed coordinator.
func New(cfg *config.Config, coord *engine.Coordinator, reg *registry.Table, log logging.Logger) *Server {
	if log == nil {
		log = logging.Nop()
	}
	s := &Server{
		cfg:         cfg,
		coordinator: coord,
		registry:    reg,
		log:         log.WithComponent("server"),
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/html", s.handleHTML)
	mux.HandleFunc("GET /v1/languages", s.handleLanguages)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	var h http.Handler = mux
	if s.cfg.Telemetry.Enabled {
		h = s.telemetry(h)
	}
	h = s.requestLogging(h)
	return h
}

// Start binds the listener and serves until Shutdown or a listener
// error. It blocks.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if s.cfg.Server.MaxConns > 0 {
		ln = netutil.LimitListener(ln, s.cfg.Server.MaxConns)
	}

	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		ln.Close()
		return fmt.Errorf("server already shut down")
	}
	s.listener = ln
	s.mu.Unlock()

	s.log.Info(ctx, "listening", "addr", ln.Addr().String())
	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Addr reports the bound address, or empty before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown drains in-flight requests. Safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.shutdown = true
	s.mu.Unlock()

	s.log.Info(ctx, "shutting down")
	return s.httpServer.Shutdown(ctx)
}

// handleHTML decodes one batch frame, runs it, and writes the response
// frame. Decoded file contents alias the body buffer, which stays pinned
// until Process returns.
func (s *Server) handleHTML(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.cfg.Server.MaxRequestBytes
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeRequestError(w, r, errors.PayloadTooLarge(tooLarge.Limit+1, maxBytes))
			return
		}
		s.writeRequestError(w, r, errors.MalformedFrame("reading request body", err))
		return
	}

	req, err := protocol.DecodeRequest(body, protocol.Limits{
		MaxRequestBytes: maxBytes,
		MaxFileBytes:    s.cfg.Server.MaxFileBytes,
	})
	if err != nil {
		s.writeRequestError(w, r, err)
		return
	}

	resp, err := s.coordinator.Process(r.Context(), req)
	if err != nil {
		s.writeRequestError(w, r, err)
		return
	}

	frame := protocol.EncodeResponse(resp)
	w.Header().Set("Content-Type", FrameContentType)
	w.Header().Set("Content-Length", fmt.Sprint(len(frame)))
	if _, err := w.Write(frame); err != nil {
		s.log.Warn(r.Context(), err, "writing response frame")
	}
}

type languagesResponse struct {
	Languages []string `json:"languages"`
	Scopes    []string `json:"scopes"`
}

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	ids := s.registry.Languages()
	out := languagesResponse{
		Languages: make([]string, 0, len(ids)),
		Scopes:    s.registry.ScopeNames(),
	}
	for _, id := range ids {
		out.Languages = append(out.Languages, id.String())
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		s.log.Warn(r.Context(), err, "encoding languages response")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintln(w, `{"status":"ok"}`)
}

// writeRequestError maps a whole-request rejection to a 4xx JSON body.
func (s *Server) writeRequestError(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.CodeMalformedFrame
	status := http.StatusBadRequest
	var re *errors.RequestError
	if errors.As(err, &re) {
		code = re.Code
		if re.Code == errors.CodePayloadTooLarge || re.Code == errors.CodeFileTooLarge {
			status = http.StatusRequestEntityTooLarge
		}
	}
	s.log.Warn(r.Context(), err, "request rejected", "code", code)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":  code,
		"error": err.Error(),
	})
}
