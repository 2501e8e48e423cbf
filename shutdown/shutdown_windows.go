//go:build windows

package shutdown

import (
	"context"
	"os"
	"os/signal"
)

// Context returns a copy of parent that is canceled on Ctrl+C.
func Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	go func() {
		<-ctx.Done()
		stop()
	}()
	return ctx, stop
}
