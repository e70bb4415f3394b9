package types

import "context"

// Hooks defines callbacks for coupler lifecycle events.
//
// All hooks are optional. They run synchronously on the calling rank's
// goroutine, in the order the events happen, so a hook observes the setup
// sequence exactly as it unfolds. Hook errors are logged and never abort setup.
//
// Example:
//
//	hooks := &redev.Hooks{
//	    OnStateChanged: func(ctx context.Context, from, to redev.State) error {
//	        log.Printf("setup %s -> %s", from, to)
//	        return nil
//	    },
//	}
type Hooks struct {
	// OnStateChanged is called after every coupler state transition.
	OnStateChanged func(ctx context.Context, from, to State) error

	// OnError is called once when setup fails, with the stage error.
	OnError func(ctx context.Context, err error) error
}
