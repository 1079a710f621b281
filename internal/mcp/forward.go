package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// defaultForwardTimeout bounds one forwarded invocation when the config
// does not set its own.
const defaultForwardTimeout = 30 * time.Second

// Forwarder relays JSON-RPC requests to one downstream tool server over
// HTTP. The caller's request id is preserved end to end; the timeout is
// enforced here regardless of what the downstream does.
type Forwarder struct {
	name    string
	url     string
	client  *http.Client
	timeout time.Duration
}

// NewForwarder creates a forwarder for the downstream server at url.
// Zero timeout means the default.
func NewForwarder(name, url string, timeout time.Duration) *Forwarder {
	if timeout <= 0 {
		timeout = defaultForwardTimeout
	}
	return &Forwarder{
		name:    name,
		url:     url,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Name returns the forwarder's route prefix.
func (f *Forwarder) Name() string { return f.name }

// Forward sends the request downstream and returns the downstream's
// response. Transport failures become internal-error responses carrying
// the original id, so one dead downstream never breaks the framing.
func (f *Forwarder) Forward(ctx context.Context, req *Request) *Response {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return newErrorResponse(req.ID, CodeInternalError,
			fmt.Sprintf("forward %s: encoding request: %v", f.name, err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return newErrorResponse(req.ID, CodeInternalError,
			fmt.Sprintf("forward %s: building request: %v", f.name, err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := f.client.Do(httpReq)
	if err != nil {
		return newErrorResponse(req.ID, CodeInternalError,
			fmt.Sprintf("forward %s: %v", f.name, err))
	}
	defer httpResp.Body.Close() //nolint:errcheck // Read-only body

	if httpResp.StatusCode != http.StatusOK {
		return newErrorResponse(req.ID, CodeInternalError,
			fmt.Sprintf("forward %s: downstream status %d", f.name, httpResp.StatusCode))
	}

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return newErrorResponse(req.ID, CodeInternalError,
			fmt.Sprintf("forward %s: decoding response: %v", f.name, err))
	}

	// The downstream echoes the id we sent, which is the caller's own.
	resp.JSONRPC = jsonRPCVersion
	resp.ID = req.ID
	return &resp
}

// ListTools queries the downstream's tool catalogue.
func (f *Forwarder) ListTools(ctx context.Context) ([]Tool, error) {
	id, err := json.Marshal(uuid.NewString())
	if err != nil {
		return nil, err
	}

	resp := f.Forward(ctx, &Request{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Method:  "tools/list",
	})
	if resp.Error != nil {
		return nil, fmt.Errorf("mcp: listing tools on %s: %s", f.name, resp.Error.Message)
	}

	// Result was decoded into any; round-trip through JSON to type it.
	raw, err := json.Marshal(resp.Result)
	if err != nil {
		return nil, err
	}
	var result ToolsListResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("mcp: decoding tool list from %s: %w", f.name, err)
	}
	return result.Tools, nil
}

// ForwardTable routes namespaced tool names to downstream servers. A
// tool "lighting/set_output_level" routes to the server registered as
// "lighting" with the downstream tool name "set_output_level".
type ForwardTable struct {
	servers map[string]*Forwarder
}

// NewForwardTable creates a table over the given forwarders.
func NewForwardTable(servers ...*Forwarder) *ForwardTable {
	t := &ForwardTable{servers: make(map[string]*Forwarder, len(servers))}
	for _, f := range servers {
		t.servers[f.name] = f
	}
	return t
}

// Empty reports whether no downstream servers are configured.
func (t *ForwardTable) Empty() bool {
	return t == nil || len(t.servers) == 0
}

// Route splits a namespaced tool name and returns the forwarder plus the
// downstream tool name. Returns false when the name carries no known
// server prefix.
func (t *ForwardTable) Route(toolName string) (*Forwarder, string, bool) {
	if t == nil {
		return nil, "", false
	}
	prefix, rest, found := strings.Cut(toolName, "/")
	if !found || rest == "" {
		return nil, "", false
	}
	f, ok := t.servers[prefix]
	if !ok {
		return nil, "", false
	}
	return f, rest, true
}

// ListTools aggregates every downstream's catalogue under its prefix.
// A downstream that cannot be reached contributes nothing; the error is
// reported to the caller for logging but does not fail the aggregate.
func (t *ForwardTable) ListTools(ctx context.Context) ([]Tool, []error) {
	if t == nil {
		return nil, nil
	}

	var tools []Tool
	var errs []error
	for name, f := range t.servers {
		downstream, err := f.ListTools(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, tool := range downstream {
			tool.Name = name + "/" + tool.Name
			tools = append(tools, tool)
		}
	}
	return tools, errs
}
