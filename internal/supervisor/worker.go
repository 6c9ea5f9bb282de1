package supervisor

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/netguardpro/netguard/internal/appmetrics"
)

// runLoop implements the do-work -> sleep(interval) -> repeat shape
// every worker in the system follows (§5 "Scheduling model"). It
// consults ctx at the top of each iteration and on the interval wait,
// so shutdown completes without waiting out a full cycle.
func runLoop(ctx context.Context, name string, interval time.Duration, cycle func(context.Context) error) error {
	log.Info().Str("worker", name).Dur("interval", interval).Msg("supervisor: worker starting")

	runOnce := func() {
		defer func() {
			if p := recover(); p != nil {
				appmetrics.CollectorCycleErrors.WithLabelValues(name).Inc()
				log.Error().Interface("panic", p).Str("worker", name).Msg("supervisor: cycle panicked, will retry next interval")
			}
		}()
		err := appmetrics.ObserveCycle(name, func() error { return cycle(ctx) })
		if err != nil {
			appmetrics.CollectorCycleErrors.WithLabelValues(name).Inc()
			log.Error().Err(err).Str("worker", name).Msg("supervisor: cycle failed, will retry next interval")
		}
	}

	runOnce()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("worker", name).Msg("supervisor: worker stopping")
			return nil
		case <-ticker.C:
			runOnce()
		}
	}
}
