package mcp

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/nerrad567/homeworks-core/internal/infrastructure/logging"
)

// Dispatcher routes JSON-RPC requests to the tool registry and to
// downstream servers. It is transport-agnostic: the HTTP server and the
// stdio transport both feed it one request at a time.
type Dispatcher struct {
	registry *ToolRegistry
	forward  *ForwardTable
	info     ServerInfo
	logger   *logging.Logger
}

// NewDispatcher creates a dispatcher. forward may be nil when no
// downstream servers are configured.
func NewDispatcher(registry *ToolRegistry, forward *ForwardTable, info ServerInfo, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Dispatcher{
		registry: registry,
		forward:  forward,
		info:     info,
		logger:   logger,
	}
}

// HandleRequest processes one request and returns the response, or nil
// for notifications.
func (d *Dispatcher) HandleRequest(ctx context.Context, req *Request) *Response {
	if req.JSONRPC != jsonRPCVersion {
		if req.IsNotification() {
			return nil
		}
		return newErrorResponse(req.ID, CodeInvalidRequest, "unsupported jsonrpc version")
	}

	switch req.Method {
	case "initialize":
		return newResponse(req.ID, InitializeResult{
			ProtocolVersion: protocolVersion,
			Capabilities:    Capabilities{Tools: ToolsCapability{}},
			ServerInfo:      d.info,
		})

	case "notifications/initialized", "notifications/cancelled":
		return nil

	case "ping":
		return newResponse(req.ID, struct{}{})

	case "tools/list":
		return d.handleToolsList(ctx, req)

	case "tools/call":
		return d.handleToolsCall(ctx, req)

	default:
		if req.IsNotification() {
			d.logger.Debug("ignoring unknown notification", "method", req.Method)
			return nil
		}
		return newErrorResponse(req.ID, CodeMethodNotFound, "method not found: "+req.Method)
	}
}

func (d *Dispatcher) handleToolsList(ctx context.Context, req *Request) *Response {
	tools := d.registry.List()

	downstream, errs := d.forward.ListTools(ctx)
	for _, err := range errs {
		d.logger.Warn("downstream tool listing failed", "error", err)
	}
	tools = append(tools, downstream...)

	return newResponse(req.ID, ToolsListResult{Tools: tools})
}

func (d *Dispatcher) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return newErrorResponse(req.ID, CodeInvalidParams, "invalid tools/call params: "+err.Error())
	}
	if params.Name == "" {
		return newErrorResponse(req.ID, CodeInvalidParams, "tool name is required")
	}

	// Namespaced names route downstream with the prefix stripped and the
	// caller's id preserved.
	if f, rest, ok := d.forward.Route(params.Name); ok {
		return d.forwardCall(ctx, req, f, rest, params.Arguments)
	}

	result, err := d.registry.Call(ctx, params.Name, params.Arguments)
	if err != nil {
		if errors.Is(err, ErrUnknownTool) {
			return newErrorResponse(req.ID, CodeInvalidParams, err.Error())
		}
		// Tool failures are in-band results, not protocol errors.
		d.logger.Warn("tool invocation failed", "tool", params.Name, "error", err)
		return newResponse(req.ID, errorResult(err.Error()))
	}

	text, err := renderResult(result)
	if err != nil {
		return newErrorResponse(req.ID, CodeInternalError, "encoding tool result: "+err.Error())
	}
	return newResponse(req.ID, textResult(text))
}

func (d *Dispatcher) forwardCall(ctx context.Context, req *Request, f *Forwarder, tool string, args json.RawMessage) *Response {
	params, err := json.Marshal(CallToolParams{Name: tool, Arguments: args})
	if err != nil {
		return newErrorResponse(req.ID, CodeInternalError, "encoding forwarded params: "+err.Error())
	}

	return f.Forward(ctx, &Request{
		JSONRPC: jsonRPCVersion,
		ID:      req.ID,
		Method:  "tools/call",
		Params:  params,
	})
}

// renderResult turns a handler's return value into tool output text.
// Strings pass through; everything else is marshalled as JSON.
func renderResult(result any) (string, error) {
	switch v := result.(type) {
	case nil:
		return "ok", nil
	case string:
		return v, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}
