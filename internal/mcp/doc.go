// Package mcp exposes the lighting processor as a JSON-RPC tool server.
//
// This package provides:
//   - A transport-agnostic Dispatcher implementing the tool protocol
//     (initialize, ping, tools/list, tools/call)
//   - Local tool tables for device control and catalogue queries
//   - Forwarding of namespaced tool calls to downstream tool servers
//   - An HTTP server (chi) with health, metrics, and a WebSocket
//     event stream
//   - A stdio transport for hosts that launch servers as subprocesses
//
// # Architecture
//
// The Dispatcher owns request routing and knows nothing about
// transports; the HTTP server and the stdio transport both hand it one
// Request at a time and write whatever Response comes back. Local tools
// are plain functions registered in a ToolRegistry. Tool names carrying
// a "server/" prefix are routed to the matching downstream server from
// the forward table, with the prefix stripped and the caller's request
// id preserved.
//
// # Error Taxonomy
//
// Protocol failures (malformed JSON, unknown tool, bad params) become
// JSON-RPC error objects. Tool execution failures are in-band results
// with IsError set, so hosts can surface them to the model rather than
// treating the call as transport-broken.
//
// # Graceful Degradation
//
// The server runs without MQTT and without a warm device catalogue;
// the affected tools return in-band errors while the rest keep working.
package mcp
