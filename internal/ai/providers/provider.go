// Package providers implements the multi-provider LLM dispatch chain
// described in spec §4.9/§6: a simple ordered list of adapters sharing
// one request/response contract, each wrapped by its own circuit
// breaker, so the aggregator can fall through Gemini → Groq →
// OpenRouter (and any additional configured fallbacks) until one
// returns a parseable response.
package providers

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNoAPIKey signals a provider was skipped because it has no
// configured credential — not a failure worth tripping its breaker.
var ErrNoAPIKey = errors.New("provider: no api key configured")

// Request is the provider-neutral chat request built by the aggregator.
type Request struct {
	// Prompt is the full rendered natural-language document (§4.9 step 2).
	Prompt string
	// Temperature and MaxOutputTokens mirror the fixed budget from §6.
	Temperature     float32
	MaxOutputTokens int
	// JSONResponse requests response_format=json where the provider's
	// API supports it; providers that don't support it fall back to
	// prompt-level JSON instructions only.
	JSONResponse bool
}

// Response carries the raw text returned by the provider plus enough
// provenance for §8 scenario 6 ("raw-response provenance is Groq").
type Response struct {
	Provider string
	Model    string
	RawText  string
}

// Provider is implemented by each LLM adapter.
type Provider interface {
	// Name identifies the provider for logging and ai_analysis provenance.
	Name() string
	// Configured reports whether the provider has the credentials it
	// needs to be attempted at all.
	Configured() bool
	// Complete sends req and returns the raw response text. Implementations
	// must respect ctx's deadline (each adapter caps its own call at
	// DefaultTimeout; the aggregator bounds the whole dispatch).
	Complete(ctx context.Context, req Request) (Response, error)
}

// DefaultTimeout is the per-provider call budget from §4.9 step 3.
const DefaultTimeout = 60 * time.Second

// callWithTimeout is a small helper adapters use so every provider
// enforces the same budget regardless of the parent context's deadline.
func callWithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, timeout)
}

// httpStatusError wraps a non-2xx HTTP response with enough context for
// circuit.CategorizeError to classify it (rate-limit/auth/invalid/transient).
type httpStatusError struct {
	provider string
	status   int
	body     string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("%s: http %d: %s", e.provider, e.status, e.body)
}
