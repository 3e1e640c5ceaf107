package logging

import (
	"context"
	"time"
)

// DetachContext returns a context that survives cancellation of its parent.
// Session persistence and incident recording must complete even when the
// turn deadline has already fired.
func DetachContext(parent context.Context) context.Context {
	return context.WithoutCancel(parent)
}

// DetachContextWithTimeout detaches from the parent and applies a fresh
// deadline, so a late write still cannot hang forever.
func DetachContextWithTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), timeout)
}
