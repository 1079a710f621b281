package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nerrad567/homeworks-core/internal/bridges/homeworks"
	"github.com/nerrad567/homeworks-core/internal/infrastructure/config"
	"github.com/nerrad567/homeworks-core/internal/infrastructure/logging"
)

// fakeEngine satisfies Engine with a real event registry so WebSocket
// subscriptions behave like the protocol client's.
type fakeEngine struct {
	registry  *homeworks.Registry
	connected bool
	stats     homeworks.Stats
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		registry:  homeworks.NewRegistry(16),
		connected: true,
		stats: homeworks.Stats{
			Connected:      true,
			CommandsSent:   12,
			RepliesMatched: 10,
			EventsReceived: 34,
		},
	}
}

func (f *fakeEngine) Stats() homeworks.Stats { return f.stats }
func (f *fakeEngine) IsConnected() bool      { return f.connected }

func (f *fakeEngine) Subscribe(filter homeworks.Filter) *homeworks.Subscription {
	return f.registry.Subscribe(filter)
}

func (f *fakeEngine) Unsubscribe(sub *homeworks.Subscription) {
	f.registry.Unsubscribe(sub.ID())
}

// testServer wires a Server around the fake engine without listening on
// a real port. The hub runs so WebSocket and metrics paths work.
func testServer(t *testing.T) (*Server, *fakeEngine) {
	t.Helper()

	engine := newFakeEngine()

	reg := NewToolRegistry()
	reg.mustRegister(stubTool("echo"), stubHandler("hello", nil))
	dispatcher := testDispatcher(reg, nil)

	srv, err := NewServer(Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS: config.WebSocketConfig{
			SendBuffer:   16,
			PingInterval: 30,
			PongTimeout:  10,
		},
		Logger:     logging.Discard(),
		Dispatcher: dispatcher,
		Engine:     engine,
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv.hub = NewHub(srv.wsCfg, srv.logger)
	go srv.hub.Run(ctx)

	return srv, engine
}

func TestNewServer_RequiresDeps(t *testing.T) {
	tests := []struct {
		name string
		deps Deps
	}{
		{"missing logger", Deps{Dispatcher: testDispatcher(NewToolRegistry(), nil), Engine: newFakeEngine()}},
		{"missing dispatcher", Deps{Logger: logging.Discard(), Engine: newFakeEngine()}},
		{"missing engine", Deps{Logger: logging.Discard(), Dispatcher: testDispatcher(NewToolRegistry(), nil)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewServer(tt.deps); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("body = %v, want status ok version test", resp)
	}
	if resp["processor"] != true {
		t.Errorf("processor = %v, want true", resp["processor"])
	}
}

func TestHealth_ProcessorDown(t *testing.T) {
	srv, engine := testServer(t)
	engine.connected = false
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["processor"] != false {
		t.Errorf("processor = %v, want false", resp["processor"])
	}
}

func TestMetrics(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var metrics SystemMetrics
	if err := json.Unmarshal(w.Body.Bytes(), &metrics); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !metrics.Engine.Connected {
		t.Error("engine.connected = false, want true")
	}
	if metrics.Engine.CommandsSent != 12 {
		t.Errorf("commands_sent = %d, want 12", metrics.Engine.CommandsSent)
	}
	if metrics.Runtime.Goroutines < 1 {
		t.Error("expected at least one goroutine")
	}
	if metrics.MQTT != nil {
		t.Error("mqtt block should be absent when no client is wired")
	}
}

func TestRPC_Initialize(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	body := `{"jsonrpc":"2.0","id":1,"method":"initialize"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp struct {
		JSONRPC string           `json:"jsonrpc"`
		ID      json.RawMessage  `json:"id"`
		Result  InitializeResult `json:"result"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Result.ProtocolVersion != protocolVersion {
		t.Errorf("protocolVersion = %q, want %q", resp.Result.ProtocolVersion, protocolVersion)
	}
	if string(resp.ID) != "1" {
		t.Errorf("id = %s, want 1", resp.ID)
	}
}

func TestRPC_ToolsCall(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	body := `{"jsonrpc":"2.0","id":"a","method":"tools/call","params":{"name":"echo"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/mcp", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp struct {
		Result CallToolResult `json:"result"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Result.Content) != 1 || resp.Result.Content[0].Text != "hello" {
		t.Errorf("content = %+v, want one hello block", resp.Result.Content)
	}
}

func TestRPC_ParseError(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/mcp", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != CodeParseError {
		t.Fatalf("expected parse error, got %+v", resp)
	}
}

func TestRPC_NotificationReturnsNoContent(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	body := `{"jsonrpc":"2.0","method":"notifications/initialized"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/mcp", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if w.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", w.Body.String())
	}
}

func TestRequestID_Generated(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want client-123", got)
	}
}

func TestNotFound(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestBodySizeLimit(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	oversized := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo","arguments":{"pad":"` +
		strings.Repeat("x", maxRequestBodySize+1) + `"}}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/mcp", strings.NewReader(oversized))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != CodeParseError {
		t.Fatalf("expected parse error for oversized body, got %+v", resp)
	}
}
