// Package protocol defines the collaboration data model and its codecs.
//
// Structural payloads (node operations, locks, blueprint notices) are JSON.
// Wire previews, which are sent at up to 60 Hz while a wire is dragged, are a
// positional MessagePack array. Graph-side identifiers are GUIDs.
package protocol
