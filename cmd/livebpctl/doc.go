// Command livebpctl controls a running LiveBP collaboration hub over its
// admin API.
//
// Usage:
//
//	livebpctl [-server URL] [-timeout D] [-retries N] <command> [args]
//
//	livebpctl locks -user alice
//	livebpctl selftest stress
//	livebpctl export -o journal.ndjson.zst
//
// The server defaults to $LIVEBP_SERVER, then http://localhost:8000. Reads
// are retried on connection errors and 5xx replies, writes only on 429.
// Every request carries a fresh X-Trace-ID header.
package main
