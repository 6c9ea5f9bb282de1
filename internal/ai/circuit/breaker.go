// Package circuit implements the failure-isolation breaker that guards
// each entry in the AI provider dispatch chain (§4.9). Gemini, Groq and
// OpenRouter each get their own breaker so a provider stuck failing
// trips open and stops being tried ahead of the providers behind it in
// priority order, instead of burning the cycle's 60s dispatch budget on
// a provider that keeps timing out.
package circuit

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// State is the breaker's lifecycle state.
type State int

const (
	// StateClosed allows every request through.
	StateClosed State = iota
	// StateOpen blocks every request until the backoff elapses.
	StateOpen
	// StateHalfOpen allows a single probe request to test recovery.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrorCategory classifies a provider failure so the breaker can decide
// whether it's worth tripping on. AI provider APIs (Gemini/Groq/
// OpenRouter) return 4xx errors that retrying a different provider
// won't fix, so those shouldn't count against the breaker the same way
// a timed-out connection should.
type ErrorCategory int

const (
	// ErrorCategoryTransient is a retryable failure (timeout, 5xx, connection reset).
	ErrorCategoryTransient ErrorCategory = iota
	// ErrorCategoryRateLimit means the provider is throttling; trip immediately.
	ErrorCategoryRateLimit
	// ErrorCategoryInvalid means the request itself is malformed; won't succeed on retry.
	ErrorCategoryInvalid
	// ErrorCategoryFatal means the API key is bad or out of credit; needs operator action.
	ErrorCategoryFatal
)

// Config tunes a breaker's trip/recovery thresholds.
type Config struct {
	FailureThreshold  int
	SuccessThreshold  int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// DefaultConfig returns the thresholds used for every provider breaker
// in the dispatch chain.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:  3,
		SuccessThreshold:  2,
		InitialBackoff:    time.Second,
		MaxBackoff:        5 * time.Minute,
		BackoffMultiplier: 2.0,
	}
}

// Breaker gates calls to one AI provider.
type Breaker struct {
	config Config
	state  State
	name   string

	consecutiveFailures  int
	consecutiveSuccesses int

	currentBackoff        time.Duration
	openedAt              time.Time
	halfOpenProbeInFlight bool
}

// NewBreaker creates a breaker for the named provider ("ai.gemini",
// "ai.groq", "ai.openrouter").
func NewBreaker(name string, config Config) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 3
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = time.Second
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 5 * time.Minute
	}
	if config.BackoffMultiplier <= 0 {
		config.BackoffMultiplier = 2.0
	}

	return &Breaker{
		config:         config,
		state:          StateClosed,
		name:           name,
		currentBackoff: config.InitialBackoff,
	}
}

// State returns the breaker's current lifecycle state.
func (b *Breaker) State() State {
	return b.state
}

// Allow reports whether the chain should try this provider this cycle.
// Transitions open → half-open once the backoff has elapsed.
func (b *Breaker) Allow() bool {
	switch b.state {
	case StateClosed:
		return true

	case StateOpen:
		if time.Since(b.openedAt) >= b.currentBackoff {
			b.state = StateHalfOpen
			b.halfOpenProbeInFlight = true
			log.Info().Str("breaker", b.name).Msg("circuit breaker half-open, probing provider")
			return true
		}
		return false

	case StateHalfOpen:
		if b.halfOpenProbeInFlight {
			return false
		}
		b.halfOpenProbeInFlight = true
		return true

	default:
		return true
	}
}

// RecordSuccess reports a successful provider call.
func (b *Breaker) RecordSuccess() {
	b.consecutiveFailures = 0
	b.consecutiveSuccesses++

	if b.state == StateHalfOpen {
		b.halfOpenProbeInFlight = false
		if b.consecutiveSuccesses >= b.config.SuccessThreshold {
			b.state = StateClosed
			b.currentBackoff = b.config.InitialBackoff
			log.Info().Str("breaker", b.name).Msg("circuit breaker recovered, closing")
		}
	}
}

// RecordFailureWithCategory reports a failed provider call. Invalid and
// fatal errors (bad API key, malformed request) never trip the breaker
// since a backoff won't fix them; the chain's Dispatch still falls
// through to the next provider on the same cycle.
func (b *Breaker) RecordFailureWithCategory(err error, category ErrorCategory) {
	switch category {
	case ErrorCategoryInvalid, ErrorCategoryFatal:
		if b.state == StateHalfOpen {
			b.halfOpenProbeInFlight = false
		}
		log.Warn().Str("breaker", b.name).Err(err).Str("category", "non-transient").
			Msg("circuit breaker ignoring non-transient error")
		return

	case ErrorCategoryRateLimit:
		b.consecutiveFailures = b.config.FailureThreshold

	default:
		b.consecutiveSuccesses = 0
		b.consecutiveFailures++
	}

	switch b.state {
	case StateClosed:
		if b.consecutiveFailures >= b.config.FailureThreshold {
			b.tripCircuit(err)
		}

	case StateHalfOpen:
		b.halfOpenProbeInFlight = false
		b.currentBackoff = time.Duration(float64(b.currentBackoff) * b.config.BackoffMultiplier)
		if b.currentBackoff > b.config.MaxBackoff {
			b.currentBackoff = b.config.MaxBackoff
		}
		b.tripCircuit(err)
	}
}

func (b *Breaker) tripCircuit(err error) {
	b.state = StateOpen
	b.openedAt = time.Now()
	b.halfOpenProbeInFlight = false

	log.Warn().
		Str("breaker", b.name).
		Dur("backoff", b.currentBackoff).
		Int("failures", b.consecutiveFailures).
		Err(err).
		Msg("circuit breaker tripped, provider taken out of rotation")
}

type circuitOpenError struct{}

func (e circuitOpenError) Error() string {
	return "circuit breaker is open"
}

// ErrCircuitOpen is returned by Chain.Dispatch for a provider the
// breaker is currently blocking.
var ErrCircuitOpen error = circuitOpenError{}

// CategorizeError maps an AI provider HTTP/transport error onto an
// ErrorCategory so RecordFailureWithCategory knows whether it's worth
// tripping the breaker.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryTransient
	}

	errStr := strings.ToLower(err.Error())

	switch {
	case containsAny(errStr, "rate limit", "429", "too many requests", "quota exceeded"):
		return ErrorCategoryRateLimit
	case containsAny(errStr, "400", "bad request", "invalid", "malformed"):
		return ErrorCategoryInvalid
	case containsAny(errStr, "401", "403", "unauthorized", "forbidden", "api key"):
		return ErrorCategoryFatal
	case containsAny(errStr, "402", "insufficient balance", "payment required", "credit"):
		return ErrorCategoryFatal
	default:
		return ErrorCategoryTransient
	}
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
