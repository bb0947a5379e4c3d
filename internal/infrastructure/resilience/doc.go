/*
Package resilience provides the circuit breaker that guards the hub's
fragile edges: client dials to an unreachable hub and journal writes to a
failing SQLite store.

	breaker := resilience.New("journal-store", resilience.Settings{
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c resilience.Counts) bool { return c.ConsecutiveFailures >= 5 },
	})

	err := breaker.Do(func() error { return store.Insert(ctx, entry) })
	conn, err := resilience.Execute(breaker, dial)

States:

	Closed --[ReadyToTrip]-> Open --[Timeout]-> Half-Open --[MaxRequests successes]-> Closed
	                                              |
	                                          [failure] -> Open

Allow and the done callback it returns split a request in two when the call
cannot be wrapped in a closure. Results reported after a state change are
ignored.
*/
package resilience
