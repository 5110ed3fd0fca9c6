package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"buttonrec/internal/api"
	"buttonrec/internal/logging"
	"buttonrec/internal/metrics"
	"buttonrec/internal/session"
)

// backend is what the HTTP surface needs from the daemon.
type backend interface {
	StatusResponse() api.StatusResponse
	RequestStart(ctx context.Context) error
	RequestStop(ctx context.Context) error
}

type apiServer struct {
	bind   string
	logger *slog.Logger

	listener net.Listener
	server   *http.Server
}

func newAPIServer(bind string, handler http.Handler, logger *slog.Logger) *apiServer {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil
	}
	return &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api-server"),
		server: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// newAPIHandler routes the status and control endpoints. Each route is also
// served without the /api prefix for the bundled web page. metricsPath is
// empty when the Prometheus endpoint is disabled.
func newAPIHandler(b backend, metricsPath string, logger *slog.Logger) http.Handler {
	h := &apiHandlers{backend: b, logger: logging.NewComponentLogger(logger, "api")}

	g := gin.New()
	g.Use(gin.Recovery())
	for _, prefix := range []string{"/api", ""} {
		group := g.Group(prefix)
		group.GET("/status", h.handleStatus)
		group.POST("/start", h.handleStart)
		group.POST("/stop", h.handleStop)
	}
	if metricsPath != "" {
		g.GET(metricsPath, gin.WrapH(metrics.Handler()))
	}
	return g
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// addr returns the bound address once the server is listening.
func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

type apiHandlers struct {
	backend backend
	logger  *slog.Logger
}

func (h *apiHandlers) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, h.backend.StatusResponse())
}

func (h *apiHandlers) handleStart(c *gin.Context) {
	h.control(c, "start", h.backend.RequestStart)
}

func (h *apiHandlers) handleStop(c *gin.Context) {
	h.control(c, "stop", h.backend.RequestStop)
}

// control answers 202 once the controller has accepted the request. The
// recording or the final write continues in the background.
func (h *apiHandlers) control(c *gin.Context, verb string, fn func(context.Context) error) {
	err := fn(c.Request.Context())
	state := h.backend.StatusResponse().State
	switch {
	case err == nil:
		writeJSON(c, http.StatusAccepted, api.ControlResponse{
			Accepted: true,
			State:    state,
			Message:  verb + " accepted",
		})
	case errors.Is(err, session.ErrConflict), errors.Is(err, session.ErrErrorState):
		writeJSON(c, http.StatusConflict, api.ErrorResponse{Error: err.Error(), State: state})
	case errors.Is(err, session.ErrNotRunning):
		writeJSON(c, http.StatusServiceUnavailable, api.ErrorResponse{Error: err.Error(), State: state})
	default:
		h.logger.Warn("control request failed",
			logging.String("request", verb),
			logging.Error(err),
			logging.String(logging.FieldEventType, "control_failed"),
			logging.String(logging.FieldErrorHint, "check the capture and encode tool logs"),
			logging.String(logging.FieldImpact, "recording did not start"),
		)
		writeJSON(c, http.StatusInternalServerError, api.ErrorResponse{Error: err.Error(), State: state})
	}
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}
