// Package http implements the hub's admin API: the operator surface for
// inspecting and steering a collaboration session. Every route lives under
// /api and answers JSON of the form {"success": bool, ...}; the performance
// report and the journal export are the exceptions (plain text and zstd
// NDJSON respectively).
package http
