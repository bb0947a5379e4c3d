// Package locks is the authoritative node lock table of a collaboration
// session.
//
// A node is either free, locked by one user until an expiry time, or free
// with queued requests (Pending). Requests for a held node wait in FIFO
// order and are granted when the holder releases or the lock expires.
// Every transition is delivered to subscribers so the hub can broadcast it.
//
// Example Usage:
//
//	mgr := locks.NewManager(logger)
//	mgr.Subscribe(func(c locks.Change) { broadcast(c.Lock) })
//	if mgr.RequestLock(nodeID, "alice", 0) {
//	    // alice may edit
//	}
package locks
