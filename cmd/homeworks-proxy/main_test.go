package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/homeworks-core/internal/infrastructure/logging"
	"github.com/nerrad567/homeworks-core/internal/mcp"
)

func TestLoadProxyConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxy.yaml")
	content := `
forward:
  timeout: 15
  servers:
    lighting:
      url: "http://localhost:8060/api/v1/mcp"
    audio:
      url: "http://localhost:8061/api/v1/mcp"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadProxyConfig(path)
	if err != nil {
		t.Fatalf("loadProxyConfig: %v", err)
	}
	if cfg.Forward.Timeout != 15 {
		t.Errorf("timeout = %d, want 15", cfg.Forward.Timeout)
	}
	if len(cfg.Forward.Servers) != 2 {
		t.Errorf("server count = %d, want 2", len(cfg.Forward.Servers))
	}
	if got := cfg.Forward.Servers["lighting"].URL; got != "http://localhost:8060/api/v1/mcp" {
		t.Errorf("lighting url = %q", got)
	}
}

func TestLoadProxyConfig_Missing(t *testing.T) {
	if _, err := loadProxyConfig("/nonexistent/proxy.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestRun_RequiresURLOrConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := run(ctx, nil); err == nil {
		t.Error("expected error with no flags")
	}
}

func TestBridge_RelaysRequests(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req mcp.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("remote decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		//nolint:errcheck // Test server write
		json.NewEncoder(w).Encode(mcp.Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  "pong:" + req.Method,
		})
	}))
	t.Cleanup(remote.Close)

	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize"}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
	}, "\n") + "\n"

	var out bytes.Buffer
	f := mcp.NewForwarder("remote", remote.URL, time.Second)
	if err := bridge(context.Background(), f, strings.NewReader(input), &out, logging.Discard()); err != nil {
		t.Fatalf("bridge: %v", err)
	}

	var responses []mcp.Response
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var resp mcp.Response
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			t.Fatalf("output %q: %v", scanner.Text(), err)
		}
		responses = append(responses, resp)
	}

	// The notification is relayed but produces no output line.
	if len(responses) != 2 {
		t.Fatalf("response count = %d, want 2", len(responses))
	}
	if responses[0].Result != "pong:initialize" || responses[1].Result != "pong:tools/list" {
		t.Errorf("results = %v, %v", responses[0].Result, responses[1].Result)
	}
}

func TestBridge_ParseError(t *testing.T) {
	var out bytes.Buffer
	f := mcp.NewForwarder("remote", "http://127.0.0.1:1/rpc", time.Second)

	input := "{bad json\n"
	if err := bridge(context.Background(), f, strings.NewReader(input), &out, logging.Discard()); err != nil {
		t.Fatalf("bridge: %v", err)
	}

	var resp mcp.Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != mcp.CodeParseError {
		t.Errorf("response = %+v, want parse error", resp)
	}
}
