package providers

import "github.com/rs/zerolog"

// Keys carries the per-provider credentials loaded from ai_config.json
// (§6: api_keys.gemini_api_key / .groq_api_key / .openrouter_api_key).
type Keys struct {
	Gemini     string
	Groq       string
	OpenRouter string
}

// BuildChain constructs the default priority chain from §4.9: Gemini 2.0
// Flash, then Groq Llama 3.3 70B, then OpenRouter DeepSeek R1. order, if
// non-empty, overrides the default priority with a caller-supplied
// provider-name list (the `providers[]` config key).
func BuildChain(log zerolog.Logger, keys Keys, order []string) *Chain {
	httpClient := NewResolvingHTTPClient()

	gemini := NewGeminiProvider(keys.Gemini)
	gemini.HTTPClient = httpClient
	groq := NewGroqProvider(keys.Groq)
	groq.HTTPClient = httpClient
	openrouter := NewOpenRouterProvider(keys.OpenRouter)
	openrouter.HTTPClient = httpClient

	byName := map[string]Provider{
		"gemini":     gemini,
		"groq":       groq,
		"openrouter": openrouter,
	}

	names := order
	if len(names) == 0 {
		names = []string{"gemini", "groq", "openrouter"}
	}

	ordered := make([]Provider, 0, len(names))
	for _, name := range names {
		if p, ok := byName[name]; ok {
			ordered = append(ordered, p)
		}
	}
	return NewChain(log, ordered...)
}
