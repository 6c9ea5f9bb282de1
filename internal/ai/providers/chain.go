package providers

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/netguardpro/netguard/internal/ai/circuit"
	"github.com/netguardpro/netguard/internal/appmetrics"
)

// Chain dispatches a request across Provider entries in priority order,
// stopping at the first one that returns a parseable response so at
// most one provider call succeeds per cycle. Each provider is guarded
// by its own breaker so a provider stuck open doesn't delay every cycle
// behind it.
type Chain struct {
	entries []chainEntry
	log     zerolog.Logger
}

type chainEntry struct {
	provider Provider
	breaker  *circuit.Breaker
}

// NewChain builds a dispatch chain from providers in the given priority
// order. Providers without credentials are kept in the chain, but
// Dispatch skips them (Configured() is false) without logging them or
// recording an Attempt.
func NewChain(log zerolog.Logger, ps ...Provider) *Chain {
	entries := make([]chainEntry, 0, len(ps))
	for _, p := range ps {
		entries = append(entries, chainEntry{
			provider: p,
			breaker:  circuit.NewBreaker("ai."+p.Name(), circuit.DefaultConfig()),
		})
	}
	return &Chain{entries: entries, log: log}
}

// Attempt records one provider's outcome within a dispatch cycle, for
// callers (the aggregator) that need to persist per-attempt detail to
// ai_analysis / alert_history-style audit trails.
type Attempt struct {
	Provider string
	Err      error
}

// Dispatch tries each configured, closed-or-half-open provider in order
// and returns the first successful Response. It returns every attempt
// made, including providers skipped because their breaker is open
// (providers without credentials are not recorded), so the caller can
// log the fallback trail,
// and the final error is non-nil only if every provider failed or none
// were configured; the caller still records a history row in that case.
func (c *Chain) Dispatch(ctx context.Context, req Request) (Response, []Attempt, error) {
	var attempts []Attempt

	for _, entry := range c.entries {
		if !entry.provider.Configured() {
			continue
		}
		if !entry.breaker.Allow() {
			attempts = append(attempts, Attempt{Provider: entry.provider.Name(), Err: circuit.ErrCircuitOpen})
			appmetrics.AIProviderAttempts.WithLabelValues(entry.provider.Name(), "skipped").Inc()
			c.log.Warn().Str("provider", entry.provider.Name()).Msg("skipping provider: circuit open")
			continue
		}

		resp, err := entry.provider.Complete(ctx, req)
		if err != nil {
			entry.breaker.RecordFailureWithCategory(err, circuit.CategorizeError(err))
			attempts = append(attempts, Attempt{Provider: entry.provider.Name(), Err: err})
			appmetrics.AIProviderAttempts.WithLabelValues(entry.provider.Name(), "failure").Inc()
			c.log.Warn().Err(err).Str("provider", entry.provider.Name()).Msg("ai provider call failed, falling through")
			continue
		}

		entry.breaker.RecordSuccess()
		attempts = append(attempts, Attempt{Provider: entry.provider.Name()})
		appmetrics.AIProviderAttempts.WithLabelValues(entry.provider.Name(), "success").Inc()
		return resp, attempts, nil
	}

	if len(attempts) == 0 {
		return Response{}, attempts, fmt.Errorf("ai: no provider configured")
	}
	return Response{}, attempts, fmt.Errorf("ai: all %d configured providers failed", len(attempts))
}
