// Package lifecycle holds process-wide shutdown state shared by main and /health.
package lifecycle

import "sync/atomic"

var shuttingDown atomic.Bool

// SetShuttingDown marks the proxy as draining. While set, /health answers 503
// "shutting-down" so load balancers stop routing weather lookups here.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

func IsShuttingDown() bool {
	return shuttingDown.Load()
}
