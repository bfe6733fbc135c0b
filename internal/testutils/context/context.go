// Package context gives contexts bound to tests.
package context

import (
	"context"
	"testing"
	"time"
)

// WithTest returns ctx with the deadline of t, and cancels it on cleanup of t.
//
// The deadline is 1 second before test's deadline, to be able to clean-up resources.
func WithTest(ctx context.Context, t *testing.T) context.Context {
	dctx, cancel := context.WithCancel(ctx)
	if deadline, ok := t.Deadline(); ok {
		cancel()
		dctx, cancel = context.WithDeadline(ctx, deadline.Add(-time.Second))
	}
	t.Cleanup(cancel)
	return dctx
}
