// Package middleware provides the admin API's HTTP middleware.
//
//   - CORS: cross-origin access for browser dashboards, exposing the trace
//     headers.
//   - RateLimit: per-IP token buckets; idle clients are forgotten and
//     exempt prefixes (the WebSocket stream, /metrics) pass untouched.
//   - GlobalRateLimit: one bucket shared by every client.
//
// Rejected requests get 429 with a Retry-After header.
package middleware
