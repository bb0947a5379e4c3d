// Package server assembles the hub process: the collaboration session, its
// journal, the WebSocket endpoint, the admin API and the Prometheus
// endpoint, behind one gin router.
package server
