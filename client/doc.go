/*
Package client is the Go SDK for the chat gateway.

A Client manages the WebSocket lifecycle: connect, keep-alive ping, and
exponential-backoff reconnection after unexpected closure. Server-pushed
frames are mirrored into a Conversation (the ordered message log with
streaming coalescing and token accounting) and surfaced as typed events.

	result, err := client.Provision(ctx, client.ProvisionOptions{
		BaseURL: "https://chat.example.com",
		APIKey:  key, APISecret: secret,
	})
	c := client.New(client.Options{URL: result.WebsocketURL})
	if err := c.Connect(); err != nil { ... }

	go func() {
		for ev := range c.Events() {
			switch ev := ev.(type) {
			case client.StreamEvent:
				render(ev.Chunk)
			case client.CompleteEvent:
				done(ev.Content, ev.Suggestions)
			}
		}
	}()

	id, _ := c.SendMessage("hello")

Conversation snapshots can be persisted through a Storage (in-memory or
gzipped file) and restored across restarts.
*/
package client
