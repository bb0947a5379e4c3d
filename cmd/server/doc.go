// Command server runs the LiveBP collaboration hub.
//
// Editor instances connect to /stream over WebSocket; operators use the
// admin API under /api (or livebpctl) and scrape /metrics.
//
// Configuration:
//   - Environment variables (12-factor), optionally from a .env file
//   - A collaboration settings file in YAML or TOML (LIVEBP_SETTINGS)
//   - CLI flags (override env vars)
//
// Usage:
//
//	./server -port 8000 -settings livebp.yaml -journal /var/lib/livebp/journal.db
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
