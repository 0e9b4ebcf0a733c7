// internal/browser/session/context_utils.go
package session

import (
	"context"
	"time"
)

// CombineContext returns a context carrying the values of primary (the CDP
// tab context) that is cancelled when either primary or op is done. Every
// chromedp call needs the tab values, while the caller's deadline lives on op.
func CombineContext(primary, op context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)
	go func() {
		select {
		case <-op.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}

type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                   { return nil }
func (valueOnlyContext) Err() error                              { return nil }

// Detach keeps the values of ctx but drops its cancellation and deadline. The
// driver connection is rooted in a detached context so that an interrupted
// command can still close the session cleanly.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
