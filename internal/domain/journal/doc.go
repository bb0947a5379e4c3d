// Package journal keeps the history of messages relayed by the hub: a
// bounded in-memory window, optional SQLite persistence and a compressed
// NDJSON export.
package journal
