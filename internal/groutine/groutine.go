// Package groutine launches named, pprof-labeled goroutines so goroutine
// profiles can identify which task a goroutine belongs to. The module's
// background goroutines (the device health loop, the scheduler trigger,
// run-on-start and batch tasks, Lua script runs) are started through Go;
// device tasks run on the scheduler's worker pool, and bridge calls run on
// the calling goroutine.
package groutine

import (
	"context"
	"runtime/pprof"
)

type ctxKey string

const nameKey ctxKey = "fleet_goroutine_name"

// Go starts fn in a new goroutine labeled name for pprof, propagating
// parentCtx (context.Background() if nil).
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	labels := pprof.Labels("fleet_goroutine", name)
	go pprof.Do(parentCtx, labels, func(ctx context.Context) {
		fn(context.WithValue(ctx, nameKey, name))
	})
}

// Name returns the label given to Go for the goroutine owning ctx, or "".
func Name(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(nameKey).(string); ok {
		return v
	}
	return ""
}
