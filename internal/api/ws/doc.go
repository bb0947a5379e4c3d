// Package ws provides the WebSocket endpoint editors connect to.
//
// Each connection joins the collaboration hub as one participant. A read
// pump decodes inbound envelopes and publishes them to the hub; a write
// pump drains the participant's outbound queue.
//
// Frames (both directions) are JSON envelopes:
//
//	{"kind":"message","message":{...}}
//	{"kind":"welcome","welcome":{"user_id":"alice",...}}
//	{"kind":"presence","presence":{"users":[...],"joined":"bob"}}
//	{"kind":"notification","notification":{...}}
//	{"kind":"error","error":"node is locked by another user"}
//
// Participants only send "message" frames. Inbound traffic is rate limited
// per connection; frames over the limit are dropped.
//
// Example Usage:
//
//	handler := ws.NewHandler(hub, metrics, logger, ws.DefaultConfig())
//	router.GET("/stream", handler.HandleConnection)
package ws
