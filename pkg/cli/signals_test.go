package cli

import (
	"context"
	"syscall"
	"testing"
	"time"
)

func TestSetupSignalHandler(t *testing.T) {
	ctx, cancel := SetupSignalHandler()
	defer cancel()

	select {
	case <-ctx.Done():
		t.Error("Context should not be cancelled initially")
	case <-time.After(10 * time.Millisecond):
	}

	cancel()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Error("Expected context to be cancelled by cancel()")
	}
}

func TestSetupSignalHandler_SIGTERM(t *testing.T) {
	ctx, cancel := SetupSignalHandler()
	defer cancel()

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("Failed to send SIGTERM: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Error("Expected context to be cancelled by SIGTERM")
	}
}

func TestReloadSignals(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reloads := ReloadSignals(ctx)

	// Let the goroutine register before signalling.
	time.Sleep(10 * time.Millisecond)
	if err := syscall.Kill(syscall.Getpid(), syscall.SIGHUP); err != nil {
		t.Fatalf("Failed to send SIGHUP: %v", err)
	}

	select {
	case <-reloads:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected a reload notification")
	}

	cancel()
	select {
	case _, ok := <-reloads:
		if ok {
			// Drain a pending notification; the next receive sees the close.
			<-reloads
		}
	case <-time.After(2 * time.Second):
		t.Error("Expected channel to close after cancel")
	}
}
