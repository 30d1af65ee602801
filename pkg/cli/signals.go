package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// SetupSignalHandler creates a context that is canceled on SIGINT or SIGTERM.
// The returned cancel function releases the signal registration.
func SetupSignalHandler() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// ReloadSignals delivers one value per SIGHUP until ctx is done. The channel
// is closed when ctx ends.
func ReloadSignals(ctx context.Context) <-chan struct{} {
	out := make(chan struct{}, 1)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGHUP)

	go func() {
		defer close(out)
		defer signal.Stop(sigChan)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigChan:
				select {
				case out <- struct{}{}:
				default:
					// A reload is already pending.
				}
			}
		}
	}()

	return out
}
