package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, err)
	require.True(t, cfg.AIEnabled)
	require.Equal(t, defaultAnalysisInterval, cfg.AnalysisIntervalMinutes)
	require.Equal(t, defaultTimeWindowMinutes, cfg.DataCollection.TimeWindowMinutes)
	require.Equal(t, defaultMaxPacketsAnalyze, cfg.DataCollection.MaxPacketsToAnalyze)
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, defaultAnalysisInterval, cfg.AnalysisIntervalMinutes)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ai_config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"ai_enabled": false,
		"analysis_interval_minutes": 30,
		"providers": ["groq", "gemini"]
	}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.False(t, cfg.AIEnabled)
	require.Equal(t, 30, cfg.AnalysisIntervalMinutes)
	require.Equal(t, []string{"groq", "gemini"}, cfg.Providers)
}

func TestLoad_MalformedJSONReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ai_config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not valid json`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_EnvOverridesTakePrecedenceOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ai_config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"analysis_interval_minutes": 30, "api_keys": {"gemini_api_key": "file-key"}}`), 0o644))

	t.Setenv("NETGUARD_GEMINI_API_KEY", "env-key")
	t.Setenv("NETGUARD_ANALYSIS_INTERVAL_MINUTES", "5")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "env-key", cfg.APIKeys.GeminiAPIKey)
	require.Equal(t, 5, cfg.AnalysisIntervalMinutes)
}

func TestLoad_InvalidEnvIntervalIsIgnored(t *testing.T) {
	t.Setenv("NETGUARD_ANALYSIS_INTERVAL_MINUTES", "not-a-number")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, defaultAnalysisInterval, cfg.AnalysisIntervalMinutes)
}

func TestInterval_ClampsNonPositiveToOneMinute(t *testing.T) {
	cfg := &Config{AnalysisIntervalMinutes: 0}
	require.Equal(t, time.Minute, cfg.Interval())

	cfg.AnalysisIntervalMinutes = -5
	require.Equal(t, time.Minute, cfg.Interval())

	cfg.AnalysisIntervalMinutes = 10
	require.Equal(t, 10*time.Minute, cfg.Interval())
}

func TestWatcher_HotReloadsOnFileWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ai_config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"analysis_interval_minutes": 15}`), 0o644))

	w, err := NewWatcher(path)
	require.NoError(t, err)
	t.Cleanup(w.Stop)

	require.Equal(t, 15, w.Current().AnalysisIntervalMinutes)

	require.NoError(t, os.WriteFile(path, []byte(`{"analysis_interval_minutes": 45}`), 0o644))

	require.Eventually(t, func() bool {
		return w.Current().AnalysisIntervalMinutes == 45
	}, 2*time.Second, 10*time.Millisecond, "watcher must pick up the rewritten file")
}

func TestWatcher_KeepsPreviousConfigOnSubsequentParseFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ai_config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"analysis_interval_minutes": 20}`), 0o644))

	w, err := NewWatcher(path)
	require.NoError(t, err)
	t.Cleanup(w.Stop)
	require.Equal(t, 20, w.Current().AnalysisIntervalMinutes)

	require.NoError(t, os.WriteFile(path, []byte(`{not valid`), 0o644))

	time.Sleep(200 * time.Millisecond)
	require.Equal(t, 20, w.Current().AnalysisIntervalMinutes, "a malformed rewrite must not clobber the last good config")
}
