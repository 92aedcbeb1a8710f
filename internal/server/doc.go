// Package server assembles the gateway: REST provisioning, the WebSocket
// endpoint, metrics, and the session idle sweeper, behind one http.Server
// with graceful shutdown.
package server
