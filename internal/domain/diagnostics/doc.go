// Package diagnostics is the hub's built-in self-test suite.
//
// Checks exercise the protocol codecs, the throttler, the lock manager and
// the performance monitor in-process on a simulated clock, so they are
// deterministic and safe to run against a live hub. StressTest pushes a
// configurable volume of messages from simulated users through the same
// components.
package diagnostics
