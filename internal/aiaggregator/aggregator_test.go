package aiaggregator

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/netguardpro/netguard/internal/ai/providers"
	"github.com/netguardpro/netguard/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// stubProvider is a fake providers.Provider for exercising the
// aggregator's Cycle without a network call.
type stubProvider struct {
	name       string
	configured bool
	text       string
	err        error
}

func (p *stubProvider) Name() string       { return p.name }
func (p *stubProvider) Configured() bool   { return p.configured }
func (p *stubProvider) Complete(ctx context.Context, req providers.Request) (providers.Response, error) {
	if p.err != nil {
		return providers.Response{}, p.err
	}
	return providers.Response{Provider: p.name, RawText: p.text}, nil
}

const validAnalysisJSON = `{
	"threat_level": "low",
	"network_health_score": 92,
	"summary": "network looks healthy",
	"threats_detected": [],
	"network_insights": {},
	"device_analysis": {},
	"recommendations": []
}`

func TestParseResponse_AcceptsValidSchemaCaseInsensitiveThreatLevel(t *testing.T) {
	r, err := parseResponse(validAnalysisJSON)
	require.NoError(t, err)
	require.Equal(t, "LOW", r.ThreatLevel)
	require.Equal(t, 92, r.NetworkHealthScore)
}

func TestParseResponse_StripsMarkdownFence(t *testing.T) {
	fenced := "```json\n" + validAnalysisJSON + "\n```"
	r, err := parseResponse(fenced)
	require.NoError(t, err)
	require.Equal(t, "LOW", r.ThreatLevel)
}

func TestParseResponse_RejectsUnknownThreatLevel(t *testing.T) {
	_, err := parseResponse(`{"threat_level":"SEVERE","network_health_score":10,"summary":"x"}`)
	require.Error(t, err)
}

func TestParseResponse_RejectsOutOfRangeScore(t *testing.T) {
	_, err := parseResponse(`{"threat_level":"LOW","network_health_score":150,"summary":"x"}`)
	require.Error(t, err)
}

func TestParseResponse_RejectsEmptySummary(t *testing.T) {
	_, err := parseResponse(`{"threat_level":"LOW","network_health_score":10,"summary":"   "}`)
	require.Error(t, err)
}

func TestParseResponse_RejectsMalformedJSON(t *testing.T) {
	_, err := parseResponse(`not json at all`)
	require.Error(t, err)
}

func TestCycle_SuccessfulDispatchWritesOneSuccessfulRow(t *testing.T) {
	s := openTestStore(t)
	chain := providers.NewChain(zerolog.Nop(), &stubProvider{name: "gemini", configured: true, text: validAnalysisJSON})
	agg := New(s, chain, time.Millisecond)

	require.NoError(t, agg.Cycle(context.Background()))

	var count, success int
	var provider string
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM ai_analysis`).Scan(&count))
	require.Equal(t, 1, count, "invariant: exactly one ai_analysis row per cycle")
	require.NoError(t, s.DB().QueryRow(`SELECT success, provider FROM ai_analysis LIMIT 1`).Scan(&success, &provider))
	require.Equal(t, 1, success)
	require.Equal(t, "gemini", provider)
}

func TestCycle_AllProvidersFailStillWritesOneRow(t *testing.T) {
	s := openTestStore(t)
	chain := providers.NewChain(zerolog.Nop(),
		&stubProvider{name: "gemini", configured: true, err: errors.New("503 upstream unavailable")})
	agg := New(s, chain, time.Millisecond)

	require.NoError(t, agg.Cycle(context.Background()))

	var count, success int
	var errMsg string
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM ai_analysis`).Scan(&count))
	require.Equal(t, 1, count, "invariant: a failed cycle must still record a history row")
	require.NoError(t, s.DB().QueryRow(`SELECT success, error_message FROM ai_analysis LIMIT 1`).Scan(&success, &errMsg))
	require.Equal(t, 0, success)
	require.NotEmpty(t, errMsg)
}

func TestCycle_NoProviderConfiguredStillWritesOneFailureRow(t *testing.T) {
	s := openTestStore(t)
	chain := providers.NewChain(zerolog.Nop(), &stubProvider{name: "gemini", configured: false})
	agg := New(s, chain, time.Millisecond)

	require.NoError(t, agg.Cycle(context.Background()))

	var count, success int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM ai_analysis`).Scan(&count))
	require.Equal(t, 1, count)
	require.NoError(t, s.DB().QueryRow(`SELECT success FROM ai_analysis LIMIT 1`).Scan(&success))
	require.Equal(t, 0, success)
}

func TestCycle_SchemaMismatchRecordsRawResponseWithoutDerivedWrites(t *testing.T) {
	s := openTestStore(t)
	chain := providers.NewChain(zerolog.Nop(),
		&stubProvider{name: "groq", configured: true, text: `{"not_the_expected_shape": true}`})
	agg := New(s, chain, time.Millisecond)

	require.NoError(t, agg.Cycle(context.Background()))

	var count, success int
	var raw string
	var threatLevel *string
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM ai_analysis`).Scan(&count))
	require.Equal(t, 1, count)
	require.NoError(t, s.DB().QueryRow(`SELECT success, raw_response, threat_level FROM ai_analysis LIMIT 1`).
		Scan(&success, &raw, &threatLevel))
	require.Equal(t, 0, success)
	require.Contains(t, raw, "not_the_expected_shape")
	require.Nil(t, threatLevel, "a schema mismatch must not populate the derived threat_level column")
}

func TestCycle_FallsThroughToSecondProviderOnFirstFailure(t *testing.T) {
	s := openTestStore(t)
	chain := providers.NewChain(zerolog.Nop(),
		&stubProvider{name: "gemini", configured: true, err: errors.New("rate limited")},
		&stubProvider{name: "groq", configured: true, text: validAnalysisJSON},
	)
	agg := New(s, chain, time.Millisecond)

	require.NoError(t, agg.Cycle(context.Background()))

	var provider string
	require.NoError(t, s.DB().QueryRow(`SELECT provider FROM ai_analysis LIMIT 1`).Scan(&provider))
	require.Equal(t, "groq", provider, "invariant: at most one provider call succeeds per cycle, and dispatch stops there")
}
