package picking

import "sync/atomic"

// Gate is a non-blocking busy flag. A second TryAcquire while the gate is
// held fails immediately; there is no queue.
type Gate struct {
	busy atomic.Bool
}

// TryAcquire takes the gate if it is free and reports whether it did.
func (g *Gate) TryAcquire() bool {
	return g.busy.CompareAndSwap(false, true)
}

// Release frees the gate. Callers defer it right after a successful
// TryAcquire so a panic or error cannot leave the gate held.
func (g *Gate) Release() {
	g.busy.Store(false)
}

// Busy reports whether the gate is currently held.
func (g *Gate) Busy() bool {
	return g.busy.Load()
}
