// Package groutine starts named goroutines. The name is attached both as a
// pprof label, so long-running workers such as the measurement samplers can
// be told apart in goroutine profiles, and as a context value readable via
// GetName.
package groutine

import (
	"context"
	"runtime/pprof"
)

type ctxKey string

const goroutineNameKey ctxKey = "goroutine_name"

// Go runs fn on a new goroutine labelled with name. The context passed to fn
// derives from parentCtx (context.Background() when nil), so cancellation
// propagates through unchanged.
//
//	groutine.Go(ctx, "sampler-/Meas/ECG/200", func(ctx context.Context) {
//	    // work until ctx is done
//	})
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	labels := pprof.Labels("goroutine_name", name)

	go pprof.Do(parentCtx, labels, func(ctx context.Context) {
		ctx = context.WithValue(ctx, goroutineNameKey, name)
		fn(ctx)
	})
}

// GetName returns the name the goroutine was started with, or "" when the
// context did not come from Go.
func GetName(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(goroutineNameKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
