package satellite

import "context"

// acquisitionContext pairs the stop signal and completion channel for the
// background goroutine running Hooks.DoRun during the RUN state. At most
// one is active at a time; it is created on entry to RUN and consumed by
// stop/interrupt/failure.
type acquisitionContext struct {
	cancel context.CancelFunc
	done   chan error
}

// newAcquisitionContext returns an acquisitionContext plus the context that
// must be passed to Hooks.DoRun; cancelling it (via stop/fail) is the
// signal DoRun is expected to observe.
func newAcquisitionContext() (*acquisitionContext, context.Context) {
	ctx, cancel := context.WithCancel(context.Background())
	return &acquisitionContext{cancel: cancel, done: make(chan error, 1)}, ctx
}
