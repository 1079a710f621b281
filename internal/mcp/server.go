package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/homeworks-core/internal/bridges/homeworks"
	"github.com/nerrad567/homeworks-core/internal/infrastructure/config"
	"github.com/nerrad567/homeworks-core/internal/infrastructure/logging"
	"github.com/nerrad567/homeworks-core/internal/infrastructure/mqtt"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Engine is the protocol client surface the server needs: stats for
// metrics, connection state for health, and event subscription for the
// WebSocket stream.
type Engine interface {
	Stats() homeworks.Stats
	IsConnected() bool
	Subscribe(filter homeworks.Filter) *homeworks.Subscription
	Unsubscribe(sub *homeworks.Subscription)
}

// EntityCounter reports the device database size for metrics.
type EntityCounter interface {
	Count() int
}

// Deps holds the dependencies required by the tool server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Logger     *logging.Logger
	Dispatcher *Dispatcher
	Engine     Engine
	Database   EntityCounter // optional, metrics only
	MQTT       *mqtt.Client  // optional, metrics only
	Version    string
}

// Server is the HTTP tool server: the JSON-RPC endpoint, health and
// metrics, and the WebSocket event stream.
//
// Thread Safety: all methods are safe for concurrent use.
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	logger     *logging.Logger
	dispatcher *Dispatcher
	engine     Engine
	database   EntityCounter
	mqtt       *mqtt.Client
	version    string
	startTime  time.Time

	server *http.Server
	hub    *Hub
	sub    *homeworks.Subscription
	cancel context.CancelFunc
}

// NewServer creates the tool server. It is not listening until Start.
func NewServer(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("mcp: logger is required")
	}
	if deps.Dispatcher == nil {
		return nil, errors.New("mcp: dispatcher is required")
	}
	if deps.Engine == nil {
		return nil, errors.New("mcp: engine is required")
	}

	return &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		logger:     deps.Logger,
		dispatcher: deps.Dispatcher,
		engine:     deps.Engine,
		database:   deps.Database,
		mqtt:       deps.MQTT,
		version:    deps.Version,
		startTime:  time.Now(),
	}, nil
}

// Start begins listening for HTTP connections. The WebSocket hub starts
// here and is fed from the engine's event registry.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	s.sub = s.engine.Subscribe(nil)
	go s.relayEvents()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("tool server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("tool server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the server: in-flight requests get up to
// ten seconds, then remaining connections are dropped.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}
	if s.sub != nil {
		s.engine.Unsubscribe(s.sub)
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("tool server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down tool server: %w", err)
	}
	return nil
}

// HealthCheck verifies the server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("tool server health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return errors.New("mcp: tool server not started")
	}
	return nil
}

// relayEvents feeds unsolicited device events to WebSocket clients. The
// subscription channel closes on Unsubscribe, ending the loop.
func (s *Server) relayEvents() {
	for e := range s.sub.C() {
		s.hub.BroadcastEvent(e)
	}
}

// handleRPC is the JSON-RPC endpoint. One request per HTTP POST.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, newErrorResponse(nil, CodeParseError, "parse error: "+err.Error()))
		return
	}

	resp := s.dispatcher.HandleRequest(r.Context(), &req)
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleHealth reports liveness plus the processor link state.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   s.version,
		"processor": s.engine.IsConnected(),
	})
}
