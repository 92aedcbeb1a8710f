/*
Package ws implements the WebSocket side of the gateway: connection upgrade
and binding, frame dispatch, and the streaming orchestrator.

A connection attaches to a pre-provisioned session named in the socket path.
The read loop feeds frames to the Router, which validates them against
session state; user turns hand off to the Orchestrator, which runs the
provider call on its own goroutine and pushes stream/complete/error frames
back through the session's socket.

At most one generation runs per session. The cancellation handle installed
at stream start is the mutual-exclusion gate; abort cancels it, and late
callbacks from a superseded generation are dropped by comparing handle
identity.
*/
package ws
