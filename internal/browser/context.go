// internal/browser/context.go
package browser

import "context"

// CombineContext returns a context derived from parentCtx that is also
// canceled when secondaryCtx finishes. chromedp actions must run on the
// session context to reach the right target, but they still have to honor
// the incoming request deadline; this ties the two together.
func CombineContext(parentCtx, secondaryCtx context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(parentCtx)

	go func() {
		select {
		case <-secondaryCtx.Done():
			cancel()
		case <-combinedCtx.Done():
			// Already canceled (likely from the parent), so exit.
		}
	}()

	return combinedCtx, cancel
}
