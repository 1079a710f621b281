package mcp

import "encoding/json"

// JSON-RPC 2.0 framing for the tool surface. Requests arrive over HTTP
// POST or stdio; each is an independent unit of work.

// jsonRPCVersion is the only protocol version accepted.
const jsonRPCVersion = "2.0"

// protocolVersion is the tool-protocol revision reported by initialize.
const protocolVersion = "2024-11-05"

// Standard JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Request is a JSON-RPC 2.0 request. The ID is kept raw so it round-trips
// unchanged whether the caller used a number or a string; a nil ID marks
// a notification, which produces no response.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request carries no id.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

// Response is a JSON-RPC 2.0 response. Exactly one of Result and Error
// is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return e.Message }

// newResponse builds a success response preserving the request id.
func newResponse(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: jsonRPCVersion, ID: id, Result: result}
}

// newErrorResponse builds an error response preserving the request id.
func newErrorResponse(id json.RawMessage, code int, message string) *Response {
	return &Response{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	}
}

// InitializeResult is the reply to the initialize method.
type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    Capabilities `json:"capabilities"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
}

// Capabilities advertises what the server supports.
type Capabilities struct {
	Tools ToolsCapability `json:"tools"`
}

// ToolsCapability is the tools capability block.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ServerInfo identifies the server implementation.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Tool describes one invocable tool.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ToolsListResult is the reply to tools/list.
type ToolsListResult struct {
	Tools []Tool `json:"tools"`
}

// CallToolParams are the parameters of tools/call.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// CallToolResult is the reply to tools/call. Tool failures are reported
// in-band with IsError set; protocol failures use the JSON-RPC error
// object instead.
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Content is one piece of tool output.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// textResult wraps a string in the standard single-text-content result.
func textResult(text string) *CallToolResult {
	return &CallToolResult{Content: []Content{{Type: "text", Text: text}}}
}

// errorResult wraps a tool failure message in an in-band error result.
func errorResult(text string) *CallToolResult {
	return &CallToolResult{
		Content: []Content{{Type: "text", Text: text}},
		IsError: true,
	}
}
