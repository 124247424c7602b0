package watcher

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/caspianhq/caspian/internal/events"
	"github.com/caspianhq/caspian/internal/health"
)

// RunHealthInvalidator listens for repository-set changes and refreshes
// the health cache. The limiter bounds how often a sweep can run, so a
// storm of change events collapses into a few sweeps; queued events that
// arrive while waiting are drained and served by the same sweep.
// Blocks until ctx is canceled.
func RunHealthInvalidator(ctx context.Context, bus *events.Bus, cache *health.Cache, sweepsPerSecond int) {
	limiter := rate.NewLimiter(rate.Limit(sweepsPerSecond), 1)
	ch := bus.Subscribe(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if event.Kind != events.KindRepositoriesChanged {
				continue
			}

			if err := limiter.Wait(ctx); err != nil {
				return
			}
			drainRepositoryEvents(ch)

			if err := cache.Invalidate(ctx); err != nil {
				slog.Error("health sweep failed", "error", err)
			}
		}
	}
}

// drainRepositoryEvents discards queued events so one sweep covers them.
func drainRepositoryEvents(ch <-chan events.Event) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
