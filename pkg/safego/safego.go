// Package safego runs detached goroutines that cannot take the process down.
package safego

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/anonto42/nano-midea/social/pkg/logger"
)

// Go runs fn in a new goroutine. A panic inside fn is recovered and logged with its
// stack trace under the given name. It returns immediately.
func Go(ctx context.Context, log logger.Logger, name string, fn func()) {
	go Run(ctx, log, name, fn)
}

// Run executes fn on the calling goroutine with the same panic protection as Go.
// It reports whether fn returned normally.
func Run(ctx context.Context, log logger.Logger, name string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logCtx := ctx
			if logCtx == nil || logCtx.Err() != nil {
				logCtx = context.Background()
			}
			log.Error(logCtx, fmt.Sprintf("Panic recovered in goroutine: %s", name),
				"panic_info", fmt.Sprintf("%v", r),
				"stacktrace", string(debug.Stack()),
			)
			ok = false
		}
	}()
	fn()
	return true
}
