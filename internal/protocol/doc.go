// Package protocol defines the typed JSON messages exchanged over a chat
// session socket.
//
// Every frame is an envelope {"type": ..., "payload": {...}}. Client→server
// messages are decoded into concrete payload structs via Decode; server→client
// messages are built as structs and serialized via Encode. Messages are
// immutable once constructed.
//
// The package is a pure data contract: it performs shape validation only and
// has no session behavior.
package protocol
