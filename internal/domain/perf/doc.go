/*
Package perf measures collaboration performance for a session.

A Monitor keeps bounded histories of latency, named timings and frame
times, and counts messages and errors. Values are optionally mirrored to
a Sink such as the Prometheus collector in the monitoring package.
Report renders a plain text summary that the hub exposes through the
admin API and the livebpctl report command.
*/
package perf
