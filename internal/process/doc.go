// Package process provides the node's restart primitive.
//
// A sensor that worked and then keeps failing is usually a wedged bus that
// only a full reinitialisation clears, so the collect stage escalates to
// Manager.Restart once a channel exceeds its fail limit.
//
//	mgr := process.NewManager(process.Config{
//	    Mode: process.Mode(cfg.Scheduler.RestartMode),
//	    BeforeRestart: func(ctx context.Context) error {
//	        return closeStores(ctx)
//	    },
//	})
//	opts := policy.Options{Restarter: mgr}
//
// In ModeExec the process re-executes itself with the same arguments; in
// ModeExit it exits with ExitCodeRestart and the supervisor starts it again.
// A failed re-exec falls back to exiting.
package process
