// Package groutine starts goroutines with a pprof label so relay workers
// and pump loops are identifiable in profiles and stack dumps.
package groutine

import (
	"context"
	"runtime/pprof"
)

// Go runs fn on a new goroutine labeled with the given name. A nil
// parentCtx means context.Background().
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	go pprof.Do(parentCtx, pprof.Labels("goroutine_name", name), fn)
}
