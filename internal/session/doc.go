// Package session implements the server-side session registry.
//
// A Session binds an optional live socket to conversation history, an
// uploaded context object, custom instructions, and accumulated token usage.
// The Store owns the lifecycle: create (replacing any prior session under the
// same id), socket attachment (prior socket closed before the new one becomes
// active), explicit reset, destroy, and the periodic idle-expiry sweep.
//
// Invariants:
//   - a session has at most one active-generation handle at any time
//   - history is append-only except on explicit clear/reset
//   - token totals only increase
//   - a replaced socket is closed before the session forgets it
package session
