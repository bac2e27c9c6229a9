package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// SignalCause is the cancellation cause recorded when a signal stops rtbox.
type SignalCause struct {
	Signal syscall.Signal
}

func (s *SignalCause) Error() string {
	return fmt.Sprintf("interrupted by %s", s.Signal)
}

// WithSignals returns a context canceled by the first of sigs to arrive,
// with a SignalCause naming it. Calling stop releases the handler.
func WithSignals(parent context.Context, sigs ...os.Signal) (ctx context.Context, stop context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)

	done := make(chan struct{})
	go func() {
		select {
		case sig := <-ch:
			if s, ok := sig.(syscall.Signal); ok {
				cancel(&SignalCause{Signal: s})
				return
			}
			cancel(nil)
		case <-done:
		}
	}()

	return ctx, func() {
		signal.Stop(ch)
		close(done)
		cancel(nil)
	}
}
