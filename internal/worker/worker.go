// Package worker runs a change-feed consumer next to a periodic fallback
// pass. The fallback is the backstop for lost change messages: with no
// documented delivery guarantee from the broker, a ticker-driven full
// refresh bounds how stale any consumer can get.
package worker

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"kharcha/internal/feed"
)

// Handler reacts to one change message.
type Handler func(ctx context.Context, msg *feed.ChangeMessage) error

type Worker struct {
	feed     *feed.Client // nil: fallback ticker only
	handler  Handler
	fallback func(ctx context.Context) error
	interval time.Duration
	onDown   func(err error)
}

// New builds a worker. fallback and onDown may be nil; onDown is invoked
// when the feed fails in a way reconnecting cannot fix.
func New(feedClient *feed.Client, handler Handler, fallback func(ctx context.Context) error, interval time.Duration, onDown func(error)) *Worker {
	return &Worker{
		feed:     feedClient,
		handler:  handler,
		fallback: fallback,
		interval: interval,
		onDown:   onDown,
	}
}

// Run blocks until the context is canceled, consuming change messages and
// firing the periodic fallback.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if w.feed != nil {
		g.Go(func() error {
			err := w.feed.Consume(ctx, w.handler)
			if err != nil && ctx.Err() == nil {
				slog.ErrorContext(ctx, "Change feed consumption failed", "error", err)
				if w.onDown != nil {
					w.onDown(err)
				}
				return err
			}
			return nil
		})
	} else {
		slog.InfoContext(ctx, "No change feed configured, relying on periodic refresh only")
	}

	if w.fallback != nil && w.interval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(w.interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if err := w.fallback(ctx); err != nil {
						slog.ErrorContext(ctx, "Periodic refresh failed", "error", err)
					}
				}
			}
		})
	}

	return g.Wait()
}
