/**
 * HTTP server for the textread service
 *
 * Routes:
 * - POST /ocr, POST /api/text_read/read_text_by_image
 * - POST /api/auth/*
 * - GET /health
 */

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/adverant/nexus/textread-service/internal/logging"
	"github.com/adverant/nexus/textread-service/internal/processor"
)

// Pinger is a dependency the health check can probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatsReporter is an optional Pinger extension; its pool statistics are
// included in the health body.
type StatsReporter interface {
	Stats() map[string]interface{}
}

// ServerConfig holds everything the router needs
type ServerConfig struct {
	Addr            string
	Processor       processor.ImageProcessorInterface
	Auth            AuthService // nil leaves the account routes unmounted
	TempDir         string
	MaxUploadSize   int64
	SecureCookies   bool
	HealthChecks    map[string]Pinger
	PipelineTimeout time.Duration // bounds one OCR request, see processor.CascadeBudget
	WriteTimeout    time.Duration // defaults to PipelineTimeout plus a response margin
	Logger          *logging.Logger
}

// Server wraps http.Server with the service routes
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	ocr        *OCRHandler
	logger     *logging.Logger
}

// responseMargin is the part of a write timeout left for writing the response
func responseMargin(timeout time.Duration) time.Duration {
	if m := timeout / 10; m < 10*time.Second {
		return m
	}
	return 10 * time.Second
}

// NewServer builds the router and middleware chain
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("HTTPServer")
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Minute
		if cfg.PipelineTimeout > 0 {
			cfg.WriteTimeout = cfg.PipelineTimeout + responseMargin(cfg.PipelineTimeout)
		}
	}

	mux := http.NewServeMux()

	// the handler gives up before the write deadline so a 502 still reaches the client
	ocr := NewOCRHandler(cfg.Processor, cfg.TempDir, cfg.MaxUploadSize, logger.Named("OCRHandler")).
		WithDeadline(cfg.WriteTimeout - responseMargin(cfg.WriteTimeout))
	mux.Handle("/ocr", ocr)
	mux.Handle("/api/text_read/read_text_by_image", ocr)

	if cfg.Auth != nil {
		NewAuthHandlers(cfg.Auth, cfg.SecureCookies, logger.Named("AuthHandlers")).Register(mux)
	}

	mux.Handle("/health", NewHealthHandler(cfg.HealthChecks))

	var handler http.Handler = mux
	handler = withCORS(handler)
	handler = withRecover(logger, handler)
	handler = withAccessLog(logger, handler)
	handler = withRequestID(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       time.Minute,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       2 * time.Minute,
		},
		handler: handler,
		ocr:     ocr,
		logger:  logger,
	}, nil
}

// Handler exposes the full middleware chain
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens in the background. Listener errors go to errCh.
func (s *Server) Start(errCh chan<- error) {
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// HealthHandler pings every registered dependency
type HealthHandler struct {
	checks  map[string]Pinger
	timeout time.Duration
}

// NewHealthHandler creates the /health handler
func NewHealthHandler(checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{checks: checks, timeout: 5 * time.Second}
}

type healthResponse struct {
	Status string                            `json:"status"`
	Checks map[string]string                 `json:"checks"`
	Stats  map[string]map[string]interface{} `json:"stats,omitempty"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeJSON(w, http.StatusMethodNotAllowed, healthResponse{Status: "error"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp := healthResponse{Status: "healthy", Checks: map[string]string{}, Stats: map[string]map[string]interface{}{}}
	status := http.StatusOK
	for name, p := range h.checks {
		if sr, ok := p.(StatsReporter); ok {
			resp.Stats[name] = sr.Stats()
		}
		if err := p.Ping(ctx); err != nil {
			resp.Checks[name] = fmt.Sprintf("%s health check failed: %v", name, err)
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	writeJSON(w, status, resp)
}
