// Package main is the entry point for the chat gateway server.
//
// The server proxies WebSocket chat sessions onto a streaming
// text-generation model:
//
//	Browser (SDK) ⇄ Gateway (WebSocket) → Model API (SSE)
//
// It provides:
//   - REST session provisioning with API-key auth and rate limiting
//   - The per-session WebSocket endpoint with heartbeat and reconnect
//   - Streaming generation with cancellation and follow-up extraction
//   - Prometheus metrics and an idle-session sweeper
//
// Configuration comes from environment variables (12-factor), with CLI
// flags overriding. SIGINT and SIGTERM trigger graceful shutdown.
//
// Usage:
//
//	# Production mode
//	./server -port 3001
//
//	# Development mode (colored logs)
//	./server -dev
package main
