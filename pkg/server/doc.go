// Package server mirrors a live dom tree to remote viewers over WebSocket.
//
// A Mirror listens to every mutation under one root and, at the end of each
// settle of the runtime that owns the tree, sends the collected mutations to
// all viewers as one sequenced FrameMutations batch. New viewers first
// receive a FrameSnapshot, or the missed batches when they reconnect with
// the last sequence number they applied and the history still holds them.
//
// # Routes
//
//	GET  /                 page with the current markup
//	GET  /ws?since=N       WebSocket mutation stream
//	GET  /snapshot         current markup
//	GET  /snapshots        archived snapshots (JSON)
//	POST /snapshots        archive the current markup
//	GET  /snapshots/{key}  one archived snapshot
//	GET  /metrics          Prometheus metrics
//	GET  /healthz          liveness
//
// The tree belongs to the runtime goroutine. Handlers that need to read it
// post work with reactive.Runtime.Post, so the runtime must be driven by
// Runtime.Run while the server is up.
package server
