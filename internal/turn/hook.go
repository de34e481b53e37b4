package turn

import "context"

type branchReadyKey struct{}

// WithBranchReadyHook returns a context that arranges for hook to be
// called with a new branch's id the moment it exists, before Start,
// Edit, Retry, or ErrorRetry broadcast anything on it. The SSE surface
// (C8) needs this: it cannot attach a subscriber to a branch it cannot
// yet name, and without the hook the branch's first events (A, 0) would
// race its own Attach call. Send and Confirm never need it since their
// branch id is supplied by the caller up front.
func WithBranchReadyHook(ctx context.Context, hook func(branchID string)) context.Context {
	return context.WithValue(ctx, branchReadyKey{}, hook)
}

// branchReady invokes the context's hook, if any, with branchID.
func branchReady(ctx context.Context, branchID string) {
	if hook, ok := ctx.Value(branchReadyKey{}).(func(string)); ok && hook != nil {
		hook(branchID)
	}
}
