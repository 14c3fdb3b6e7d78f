package satellite

import (
	"context"

	"github.com/constellation-daq/constellation-go/internal/config"
)

// Hooks are the device-specific callbacks a concrete satellite
// implementation supplies. Each corresponds to one of the Python base
// class's overridable do_* methods; DefaultHooks gives every one of them
// the same trivial behavior the upstream base class does.
type Hooks interface {
	DoInitializing(cfg *config.Config) (string, error)
	DoLaunching(payload any) (string, error)
	DoReconfigure(cfg *config.Config) (string, error)
	DoLanding(payload any) (string, error)
	DoStopping(payload any) (string, error)
	DoStarting(runID string) (string, error)
	// DoRun is the acquisition event loop. It runs on a dedicated goroutine
	// for the duration of the RUN state and must return promptly once ctx
	// is cancelled.
	DoRun(ctx context.Context, runID string) (string, error)
	DoInterrupting() (string, error)
	FailGracefully() (string, error)
}

// DefaultHooks implements Hooks with the same do-nothing behavior as the
// upstream base Satellite class. Embed it in a device-specific type and
// override only the methods that need real behavior.
type DefaultHooks struct{}

func (DefaultHooks) DoInitializing(*config.Config) (string, error) { return "Initialized.", nil }
func (DefaultHooks) DoLaunching(any) (string, error)               { return "Launched.", nil }
func (DefaultHooks) DoReconfigure(*config.Config) (string, error)  { return "Reconfigured.", nil }
func (DefaultHooks) DoLanding(any) (string, error)                 { return "Landed.", nil }
func (DefaultHooks) DoStopping(any) (string, error)                { return "Acquisition stopped.", nil }
func (DefaultHooks) DoStarting(string) (string, error)             { return "Finished preparations, starting.", nil }

func (DefaultHooks) DoRun(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "Finished acquisition.", nil
}

func (DefaultHooks) DoInterrupting() (string, error) { return "Interrupted.", nil }
func (DefaultHooks) FailGracefully() (string, error) { return "Failed gracefully.", nil }
