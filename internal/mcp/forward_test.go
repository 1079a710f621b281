package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// newDownstream runs a minimal JSON-RPC tool server whose responses come
// from the handler. The handler receives the decoded request.
func newDownstream(t *testing.T, handle func(req Request) Response) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("downstream decode: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		//nolint:errcheck // Test server write
		json.NewEncoder(w).Encode(handle(req))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestForwarder_PreservesCallerID(t *testing.T) {
	srv := newDownstream(t, func(req Request) Response {
		// A sloppy downstream that echoes a different id.
		return Response{JSONRPC: jsonRPCVersion, ID: json.RawMessage(`"other"`), Result: "done"}
	})

	f := NewForwarder("lighting", srv.URL, time.Second)
	resp := f.Forward(context.Background(), &Request{
		JSONRPC: jsonRPCVersion,
		ID:      json.RawMessage("42"),
		Method:  "tools/call",
	})

	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	if string(resp.ID) != "42" {
		t.Errorf("id = %s, want 42", resp.ID)
	}
	if resp.Result != "done" {
		t.Errorf("result = %v, want done", resp.Result)
	}
}

func TestForwarder_Unreachable(t *testing.T) {
	f := NewForwarder("dead", "http://127.0.0.1:1/rpc", 500*time.Millisecond)

	resp := f.Forward(context.Background(), &Request{
		JSONRPC: jsonRPCVersion,
		ID:      json.RawMessage("1"),
		Method:  "ping",
	})

	if resp.Error == nil || resp.Error.Code != CodeInternalError {
		t.Fatalf("expected internal error, got %+v", resp)
	}
	if string(resp.ID) != "1" {
		t.Errorf("id = %s, want 1", resp.ID)
	}
}

func TestForwarder_DownstreamStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	f := NewForwarder("flaky", srv.URL, time.Second)
	resp := f.Forward(context.Background(), &Request{
		JSONRPC: jsonRPCVersion,
		ID:      json.RawMessage("1"),
		Method:  "ping",
	})

	if resp.Error == nil || resp.Error.Code != CodeInternalError {
		t.Fatalf("expected internal error, got %+v", resp)
	}
}

func TestForwardTable_Route(t *testing.T) {
	lighting := NewForwarder("lighting", "http://localhost:9000", 0)
	table := NewForwardTable(lighting)

	tests := []struct {
		name      string
		toolName  string
		wantOK    bool
		wantRest  string
	}{
		{"known prefix", "lighting/set_output_level", true, "set_output_level"},
		{"nested tool name", "lighting/zones/all", true, "zones/all"},
		{"unknown prefix", "hvac/set_temperature", false, ""},
		{"no slash", "set_output_level", false, ""},
		{"empty rest", "lighting/", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, rest, ok := table.Route(tt.toolName)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if f != lighting {
				t.Error("routed to wrong forwarder")
			}
			if rest != tt.wantRest {
				t.Errorf("rest = %q, want %q", rest, tt.wantRest)
			}
		})
	}
}

func TestForwardTable_NilIsEmpty(t *testing.T) {
	var table *ForwardTable
	if !table.Empty() {
		t.Error("nil table must report empty")
	}
	if _, _, ok := table.Route("a/b"); ok {
		t.Error("nil table must not route")
	}
	if tools, errs := table.ListTools(context.Background()); tools != nil || errs != nil {
		t.Error("nil table must list nothing")
	}
}

func TestForwardTable_ListToolsPrefixesNames(t *testing.T) {
	srv := newDownstream(t, func(req Request) Response {
		if req.Method != "tools/list" {
			t.Errorf("method = %q, want tools/list", req.Method)
		}
		return Response{
			JSONRPC: jsonRPCVersion,
			ID:      req.ID,
			Result:  ToolsListResult{Tools: []Tool{stubTool("set_level"), stubTool("get_level")}},
		}
	})

	table := NewForwardTable(NewForwarder("lighting", srv.URL, time.Second))
	tools, errs := table.ListTools(context.Background())
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(tools) != 2 {
		t.Fatalf("tool count = %d, want 2", len(tools))
	}
	names := map[string]bool{}
	for _, tool := range tools {
		names[tool.Name] = true
	}
	if !names["lighting/set_level"] || !names["lighting/get_level"] {
		t.Errorf("tools = %v, want lighting/ prefixed names", names)
	}
}

func TestForwardTable_ListToolsPartialFailure(t *testing.T) {
	srv := newDownstream(t, func(req Request) Response {
		return Response{
			JSONRPC: jsonRPCVersion,
			ID:      req.ID,
			Result:  ToolsListResult{Tools: []Tool{stubTool("set_level")}},
		}
	})

	table := NewForwardTable(
		NewForwarder("lighting", srv.URL, time.Second),
		NewForwarder("dead", "http://127.0.0.1:1/rpc", 500*time.Millisecond),
	)

	tools, errs := table.ListTools(context.Background())
	if len(tools) != 1 || tools[0].Name != "lighting/set_level" {
		t.Errorf("tools = %v, want [lighting/set_level]", tools)
	}
	if len(errs) != 1 {
		t.Errorf("error count = %d, want 1", len(errs))
	}
}

func TestDispatcher_ForwardsNamespacedCall(t *testing.T) {
	srv := newDownstream(t, func(req Request) Response {
		var params CallToolParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			t.Errorf("downstream params: %v", err)
		}
		// The prefix must be stripped before the call goes downstream.
		if params.Name != "set_output_level" {
			t.Errorf("downstream tool = %q, want set_output_level", params.Name)
		}
		return Response{JSONRPC: jsonRPCVersion, ID: req.ID, Result: textResult("ok")}
	})

	table := NewForwardTable(NewForwarder("lighting", srv.URL, time.Second))
	d := testDispatcher(NewToolRegistry(), table)

	resp := d.HandleRequest(context.Background(),
		rpcRequest(`"abc"`, "tools/call",
			`{"name":"lighting/set_output_level","arguments":{"iid":5,"level":50}}`))

	if resp == nil || resp.Error != nil {
		t.Fatalf("forwarded call failed: %+v", resp)
	}
	if string(resp.ID) != `"abc"` {
		t.Errorf("id = %s, want \"abc\"", resp.ID)
	}
}
