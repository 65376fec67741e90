// Package main is the entry point of the browser source service.
//
// The service renders web pages off-screen as video sources. Each source
// owns a headless browser whose frames are composited onto a software
// canvas at the canvas frame rate. Pages talk to the host through the
// script bridge and receive events from the control API.
//
// Architecture:
//
//	HTTP API / vendor socket → source plugin → engine manager (UI queue)
//	                                         → headless browser ⇄ renderer (goja)
//
// The server provides:
//   - REST API for source management, input and page events
//   - WebSocket vendor requests (emit_event)
//   - PNG snapshots of sources and the canvas
//   - Prometheus metrics
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Source definitions file (YAML, TOML or JSON)
//
// Usage:
//
//	go run ./cmd/server -port 8000 -sources sources.yaml
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
