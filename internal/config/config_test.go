package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apdpe/prediction-engine/internal/domain"
)

func clearEnvVars(t *testing.T) {
	t.Helper()
	vars := []string{
		"APDPE_SERVER_HOST",
		"APDPE_SERVER_PORT",
		"APDPE_STORE_BACKEND",
		"APDPE_STORE_SQLITE_PATH",
		"APDPE_KNOWLEDGE_PATH",
		"APDPE_SESSION_EXPIRY_TIMEOUT",
		"APDPE_LOGGING_LEVEL",
		"APDPE_LOGGING_FORMAT",
	}
	for _, v := range vars {
		os.Unsetenv(v)
	}
}

func TestNewManager_Defaults(t *testing.T) {
	clearEnvVars(t)

	m, err := NewManager()
	require.NoError(t, err)
	cfg := m.GetConfig()

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "./data/knowledge.json", cfg.Knowledge.Path)
	assert.Equal(t, 30*time.Minute, cfg.Session.ExpiryTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.InDelta(t, 0.60, cfg.Engine.SymptomWeight, 0.001)
	assert.InDelta(t, 0.30, cfg.Engine.RiskWeight, 0.001)
	assert.InDelta(t, 0.10, cfg.Engine.ConsistencyWeight, 0.001)
}

func TestNewManager_EnvironmentOverrides(t *testing.T) {
	clearEnvVars(t)
	os.Setenv("APDPE_SERVER_PORT", "9191")
	os.Setenv("APDPE_STORE_BACKEND", "memory")
	os.Setenv("APDPE_LOGGING_LEVEL", "debug")
	defer clearEnvVars(t)

	m, err := NewManager()
	require.NoError(t, err)
	cfg := m.GetConfig()

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestManager_Validate(t *testing.T) {
	clearEnvVars(t)

	m, err := NewManager()
	require.NoError(t, err)
	require.NoError(t, m.Validate())
}

func TestManager_ValidateFailures(t *testing.T) {
	clearEnvVars(t)
	m, err := NewManager()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(cfg *domain.Config)
	}{
		{"invalid port", func(cfg *domain.Config) { cfg.Server.Port = 0 }},
		{"invalid backend", func(cfg *domain.Config) { cfg.Store.Backend = "cassandra" }},
		{"missing sqlite path", func(cfg *domain.Config) { cfg.Store.SQLitePath = "" }},
		{"missing knowledge path", func(cfg *domain.Config) { cfg.Knowledge.Path = "" }},
		{"weights off balance", func(cfg *domain.Config) { cfg.Engine.SymptomWeight = 0.9 }},
		{"negative penalty", func(cfg *domain.Config) { cfg.Engine.AtypicalPenalty = -1 }},
		{"zero expiry", func(cfg *domain.Config) { cfg.Session.ExpiryTimeout = 0 }},
		{"bad log level", func(cfg *domain.Config) { cfg.Logging.Level = "chatty" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, m.Reload())
			tt.mutate(m.GetConfig())
			assert.Error(t, m.Validate())
		})
	}
}

func TestManager_PhaseRules(t *testing.T) {
	clearEnvVars(t)
	m, err := NewManager()
	require.NoError(t, err)

	rules := m.PhaseRules()

	// The default narrowing schedule: 10 / 5 / 3 / 1 ceilings.
	assert.Equal(t, 10, rules[domain.SCREENING].AdvanceCeiling)
	assert.Equal(t, 5, rules[domain.NARROW_10].AdvanceCeiling)
	assert.Equal(t, 3, rules[domain.NARROW_5].AdvanceCeiling)
	assert.Equal(t, 1, rules[domain.NARROW_3].AdvanceCeiling)
	assert.Equal(t, 5, rules[domain.SCREENING].MinQuestions)
}

func TestManager_ScoringWeights(t *testing.T) {
	clearEnvVars(t)
	m, err := NewManager()
	require.NoError(t, err)

	w := m.ScoringWeights()

	assert.InDelta(t, 1.0, w.Symptom+w.Risk+w.Consistency, 0.001)
}
