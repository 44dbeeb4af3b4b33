// Package worker runs the analysis engine behind a JSON-RPC 2.0 boundary.
//
// The engine lives in a separate process (ProcessSpawner) or on its own
// goroutine connected by pipes (InProcessSpawner). Either way only plain
// data crosses the boundary: every message is a Content-Length framed JSON
// object, and every result is checked against its message schema before it
// is decoded.
//
// # Architecture
//
//	┌──────────┐  Content-Length framed JSON-RPC  ┌──────────┐
//	│  Client  │ ───────────────────────────────> │  Serve   │
//	│(Transport)│ <─────────────────────────────── │ (Engine) │
//	└──────────┘                                  └──────────┘
//
// Client implements Engine on top of a Transport. Serve dispatches incoming
// requests to any Engine implementation and writes the responses back.
//
// # Ordering
//
// The transport gives no ordering guarantee between concurrent calls.
// Responses are matched to requests by id and may arrive in any order.
package worker
