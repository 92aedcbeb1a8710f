// Package config provides 12-factor configuration management for the gateway.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override port and host for development flexibility.
//
// Configuration Sections:
//   - Server: HTTP server and WebSocket path settings
//   - Auth: REST provisioning API key/secret
//   - LLM: text-generation provider settings
//   - Session: lifecycle timeouts and sweep cadence
//   - FollowUp: follow-up question generation defaults
//   - Logging: log level and output format
//   - RateLimit: per-IP rate limiting configuration
//
// Environment Variables:
//   - PORT, HOST, WS_PATH
//   - API_KEY, API_SECRET
//   - GOOGLE_API_KEY, DEFAULT_MODEL, LLM_BASE_URL, MAX_TOKENS, TEMPERATURE
//   - SESSION_TIMEOUT, SESSION_SWEEP_INTERVAL, WS_HEARTBEAT_INTERVAL
//   - FOLLOWUP_ENABLED, FOLLOWUP_COUNT
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
package config
