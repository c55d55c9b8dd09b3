package provider

import "context"

// Waiter is implemented by providers whose Shutdown finishes tearing down
// in the background. Wait blocks until the last teardown is complete or ctx
// is done.
type Waiter interface {
	Wait(ctx context.Context) error
}

// Wait waits for p's background teardown when p implements Waiter.
func Wait(ctx context.Context, p Provider) error {
	w, ok := p.(Waiter)
	if !ok {
		return nil
	}
	return w.Wait(ctx)
}
