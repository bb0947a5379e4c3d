// Package client connects an editor to a LiveBP collaboration hub.
//
// A Client publishes wire previews, node operations, lock requests and
// blueprint notices, and mirrors the hub's lock table so callers can check
// CanModifyNode before editing. Wire previews are throttled locally to the
// hub's rate. Dial is guarded by a circuit breaker so an unreachable hub is
// not hammered by reconnect loops.
//
// Example:
//
//	c, err := client.Dial(ctx, "ws://localhost:8080/stream", "alice")
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//	c.OnNodeOperation(func(op protocol.NodeOperation, msg protocol.Message) {
//		apply(op)
//	})
package client
