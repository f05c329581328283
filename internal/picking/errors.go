// Package picking implements the single-order picking session: loading a
// Bling sales order into scan counters, accepting barcode scans, and
// reconciling the counters into one stock-out movement.
package picking

import "errors"

// Sentinel errors returned by Session. Use errors.Is to check.
var (
	// ErrBusy means the session cannot take the call right now: LoadOrder
	// while another load runs, or Scan and Finalize while a finalize is
	// posting its stock movement. Scans are refused then so the counters
	// match the movement being posted. Callers retry rather than queue.
	ErrBusy = errors.New("picking: busy")
	// ErrOrderNotFound means no sales order matches the requested number.
	ErrOrderNotFound = errors.New("picking: order not found")
	// ErrOrderInvalid means the order has no pickable lines.
	ErrOrderInvalid = errors.New("picking: order has no valid items")
	// ErrNoOrder means scan or finalize was called with no order loaded.
	ErrNoOrder = errors.New("picking: no order loaded")
	// ErrNotInOrder means the scanned code resolves to no product of the order.
	ErrNotInOrder = errors.New("picking: code does not belong to the order")
	// ErrQuantityExceeded means the product was already scanned in full.
	ErrQuantityExceeded = errors.New("picking: quantity exceeded")
)
