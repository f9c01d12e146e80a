package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// interruptExitCode is the shell convention for termination by SIGINT.
const interruptExitCode = 130

// errInterrupted is the cancellation cause of the shutdown context.
var errInterrupted = errors.New("interrupted")

// shutdownContext returns a context canceled with errInterrupted on the
// first SIGINT or SIGTERM. A second signal exits immediately.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancelCause(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)
		relaySignals(parent.Done(), sigCh, cancel, logger, os.Exit)
	}()

	return ctx
}

// relaySignals turns the first signal into a cancellation and the second
// into exit(interruptExitCode). It returns when done closes first.
func relaySignals(
	done <-chan struct{}, sigCh <-chan os.Signal, cancel context.CancelCauseFunc,
	logger *slog.Logger, exit func(int),
) {
	select {
	case sig := <-sigCh:
		logger.Info("stopping, signal again to quit immediately", slog.String("signal", sig.String()))
		cancel(fmt.Errorf("%w by %s", errInterrupted, sig))
	case <-done:
		return
	}

	select {
	case sig := <-sigCh:
		logger.Warn("quitting without cleanup", slog.String("signal", sig.String()))
		exit(interruptExitCode)
	case <-done:
	}
}

// interrupted reports whether ctx was canceled by a shutdown signal.
func interrupted(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), errInterrupted)
}
