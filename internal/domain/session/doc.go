// Package session implements the collaboration hub.
//
// A Hub is one collaboration session. Participants join with a display
// name and receive a welcome with their user id, the connected users and
// the current locks. Everything a participant publishes goes through the
// same pipeline:
//
//  1. validation of the message and its payload
//  2. per-user throttling of wire previews and heartbeats, and removal of
//     identical consecutive previews
//  3. lock enforcement for node operations, lock requests and releases
//  4. blueprint path filtering and open blueprint tracking
//  5. journaling and relay to every other participant
//
// Lock changes, presence and notifications are pushed to participants
// through bounded outbound queues. A full queue drops the envelope.
//
// Example Usage:
//
//	hub, err := session.New(session.Options{Settings: cfg.Settings})
//	go hub.Run(ctx)
//	p, err := hub.Join("alice")
//	for env := range p.Outbound() {
//		// write env to the connection
//	}
package session
