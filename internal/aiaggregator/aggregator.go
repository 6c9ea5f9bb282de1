package aiaggregator

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/netguardpro/netguard/internal/ai/providers"
	"github.com/netguardpro/netguard/internal/store"
)

const (
	requestTemperature  = 0.3
	requestMaxTokens    = 4096
	dispatchTimeout     = providers.DefaultTimeout * 3 // covers the full Gemini->Groq->OpenRouter fallthrough
	defaultWindowMins   = 15
	defaultMaxRowsSnap  = 200
)

// Aggregator runs the C10 loop: build a snapshot, render it into a
// prompt, dispatch it across the provider chain, and persist exactly
// one ai_analysis row per cycle regardless of how that cycle ends.
type Aggregator struct {
	Store   *store.Store
	Chain   *providers.Chain
	Limiter *rate.Limiter

	DataWindowMaxRows int
}

// New builds an Aggregator. minInterval bounds how often Cycle will
// actually dispatch a provider call, guarding against a misconfigured
// caller invoking Cycle faster than analysis_interval_minutes.
func New(s *store.Store, chain *providers.Chain, minInterval time.Duration) *Aggregator {
	if minInterval <= 0 {
		minInterval = time.Minute
	}
	return &Aggregator{
		Store:             s,
		Chain:             chain,
		Limiter:           rate.NewLimiter(rate.Every(minInterval), 1),
		DataWindowMaxRows: defaultMaxRowsSnap,
	}
}

// analysisResult is the schema the LLM response must satisfy (§6).
type analysisResult struct {
	ThreatLevel        string         `json:"threat_level"`
	NetworkHealthScore int            `json:"network_health_score"`
	Summary            string         `json:"summary"`
	ThreatsDetected    any            `json:"threats_detected"`
	NetworkInsights    any            `json:"network_insights"`
	DeviceAnalysis     any            `json:"device_analysis"`
	HTTPActivity       any            `json:"http_activity"`
	Recommendations    any            `json:"recommendations"`
}

var validThreatLevels = map[string]bool{"LOW": true, "MEDIUM": true, "HIGH": true, "CRITICAL": true}

var requiredKeys = []string{"threat_level", "network_health_score", "summary",
	"threats_detected", "network_insights", "device_analysis", "recommendations"}

// Cycle is one full C10 pass. It returns an error only when the Store
// write fails or ctx is cancelled while waiting on the rate limiter (in
// which case no row is written) — a failed provider dispatch or
// unparseable response is recorded in ai_analysis, not returned as an
// error.
func (a *Aggregator) Cycle(ctx context.Context) error {
	if err := a.Limiter.Wait(ctx); err != nil {
		return fmt.Errorf("aiaggregator: rate limiter: %w", err)
	}

	snap, err := BuildSnapshot(ctx, a.Store, a.DataWindowMaxRows)
	if err != nil {
		return a.recordFailure(ctx, "", fmt.Sprintf("snapshot build failed: %v", err))
	}

	prompt, err := RenderPrompt(snap)
	if err != nil {
		return a.recordFailure(ctx, "", fmt.Sprintf("prompt render failed: %v", err))
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()

	resp, attempts, dispatchErr := a.Chain.Dispatch(dispatchCtx, providers.Request{
		Prompt:          prompt,
		Temperature:     requestTemperature,
		MaxOutputTokens: requestMaxTokens,
		JSONResponse:    true,
	})
	if dispatchErr != nil {
		log.Error().Err(dispatchErr).Int("attempts", len(attempts)).Msg("aiaggregator: all providers failed")
		return a.recordFailure(ctx, attemptsProvider(attempts), fmt.Sprintf("all providers failed: %v", dispatchErr))
	}

	result, parseErr := parseResponse(resp.RawText)
	if parseErr != nil {
		log.Warn().Err(parseErr).Str("provider", resp.Provider).Msg("aiaggregator: response failed schema validation, storing raw only")
		return a.recordSchemaMismatch(ctx, resp)
	}

	return a.recordSuccess(ctx, resp, result)
}

func attemptsProvider(attempts []providers.Attempt) string {
	if len(attempts) == 0 {
		return ""
	}
	return attempts[len(attempts)-1].Provider
}

// parseResponse validates the provider's raw text against the §6 schema.
// Extra keys are tolerated (and preserved by the caller in raw_response);
// missing or malformed required keys are a validation failure.
func parseResponse(raw string) (analysisResult, error) {
	var result analysisResult
	clean := ExtractJSON(raw)
	if err := json.Unmarshal([]byte(clean), &result); err != nil {
		return analysisResult{}, fmt.Errorf("not valid json: %w", err)
	}
	var present map[string]json.RawMessage
	if err := json.Unmarshal([]byte(clean), &present); err != nil {
		return analysisResult{}, fmt.Errorf("not a json object: %w", err)
	}
	for _, key := range requiredKeys {
		if _, ok := present[key]; !ok {
			return analysisResult{}, fmt.Errorf("missing required key %q", key)
		}
	}
	if !validThreatLevels[strings.ToUpper(result.ThreatLevel)] {
		return analysisResult{}, fmt.Errorf("threat_level %q not in {LOW,MEDIUM,HIGH,CRITICAL}", result.ThreatLevel)
	}
	result.ThreatLevel = strings.ToUpper(result.ThreatLevel)
	if result.NetworkHealthScore < 0 || result.NetworkHealthScore > 100 {
		return analysisResult{}, fmt.Errorf("network_health_score %d out of [0,100]", result.NetworkHealthScore)
	}
	if strings.TrimSpace(result.Summary) == "" {
		return analysisResult{}, fmt.Errorf("summary is empty")
	}
	return result, nil
}

func (a *Aggregator) recordSuccess(ctx context.Context, resp providers.Response, r analysisResult) error {
	threats, _ := json.Marshal(r.ThreatsDetected)
	insights, _ := json.Marshal(r.NetworkInsights)
	devices, _ := json.Marshal(r.DeviceAnalysis)
	http, _ := json.Marshal(r.HTTPActivity)
	recs, _ := json.Marshal(r.Recommendations)

	return a.Store.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO ai_analysis (timestamp, threat_level, network_health_score, summary,
				threats_detected, network_insights, device_analysis, http_activity, recommendations,
				provider, success, raw_response)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
			time.Now().UTC(), r.ThreatLevel, r.NetworkHealthScore, r.Summary,
			string(threats), string(insights), string(devices), string(http), string(recs),
			resp.Provider, resp.RawText,
		)
		return err
	})
}

// recordSchemaMismatch persists the raw text but performs no derived
// writes, per the §7 "Schema mismatch" handling row.
func (a *Aggregator) recordSchemaMismatch(ctx context.Context, resp providers.Response) error {
	return a.Store.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO ai_analysis (timestamp, provider, success, error_message, raw_response)
			VALUES (?, ?, 0, ?, ?)`,
			time.Now().UTC(), resp.Provider, "response did not match the expected schema", resp.RawText)
		return err
	})
}

// recordFailure ensures that even a cycle where no provider could be
// reached writes a history row so operators can see why analysis paused.
func (a *Aggregator) recordFailure(ctx context.Context, provider, message string) error {
	return a.Store.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO ai_analysis (timestamp, provider, success, error_message)
			VALUES (?, ?, 0, ?)`,
			time.Now().UTC(), nullIfEmpty(provider), message)
		return err
	})
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
