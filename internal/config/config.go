// Package config provides configuration management for the prediction
// engine server.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/apdpe/prediction-engine/internal/domain"
	"github.com/apdpe/prediction-engine/internal/engine"
)

// Manager loads and validates configuration using Viper.
type Manager struct {
	config *domain.Config
}

// NewManager creates a new configuration manager
func NewManager() (*Manager, error) {
	m := &Manager{}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	// Set configuration file name and paths
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/prediction-engine/")

	// Set environment variable prefix and enable automatic env binding
	viper.SetEnvPrefix("APDPE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set default values
	m.setDefaults()

	// Read configuration file (optional - will use defaults and env vars if not found)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	// Unmarshal configuration into struct
	config := &domain.Config{}
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

// setDefaults sets default configuration values
func (m *Manager) setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")
	viper.SetDefault("server.rate_limit_per_sec", 20)
	viper.SetDefault("server.rate_limit_burst", 40)

	// Store defaults
	viper.SetDefault("store.backend", "sqlite")
	viper.SetDefault("store.sqlite_path", "./data/sessions.db")
	viper.SetDefault("store.redis_url", "redis://localhost:6379")
	viper.SetDefault("store.redis_ttl", "24h")
	viper.SetDefault("store.postgres_url", "")
	viper.SetDefault("store.migrations", "./migrations")

	// Knowledge base defaults
	viper.SetDefault("knowledge.path", "./data/knowledge.json")
	viper.SetDefault("knowledge.cache_max_items", 1000)

	// Engine defaults: confidence weights and the narrowing schedule
	viper.SetDefault("engine.symptom_weight", 0.60)
	viper.SetDefault("engine.risk_weight", 0.30)
	viper.SetDefault("engine.consistency_weight", 0.10)
	viper.SetDefault("engine.atypical_penalty", 25.0)
	for phase, rule := range engine.DefaultPhaseRules() {
		key := "engine.phases." + strings.ToLower(phase.String())
		viper.SetDefault(key+".target_count", rule.TargetCount)
		viper.SetDefault(key+".advance_ceiling", rule.AdvanceCeiling)
		viper.SetDefault(key+".min_questions", rule.MinQuestions)
		viper.SetDefault(key+".min_differential", rule.MinDifferential)
	}

	// Session defaults
	viper.SetDefault("session.expiry_timeout", "30m")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetStoreConfig returns session store configuration
func (m *Manager) GetStoreConfig() *domain.StoreConfig {
	return &m.config.Store
}

// GetKnowledgeConfig returns knowledge base configuration
func (m *Manager) GetKnowledgeConfig() *domain.KnowledgeConfig {
	return &m.config.Knowledge
}

// GetSessionConfig returns session lifecycle configuration
func (m *Manager) GetSessionConfig() *domain.SessionConfig {
	return &m.config.Session
}

// ScoringWeights returns the configured confidence weights.
func (m *Manager) ScoringWeights() engine.ScoringWeights {
	return engine.ScoringWeights{
		Symptom:     m.config.Engine.SymptomWeight,
		Risk:        m.config.Engine.RiskWeight,
		Consistency: m.config.Engine.ConsistencyWeight,
	}
}

// PhaseRules converts the configured per-phase sections into the engine's
// rule table, falling back to defaults for any phase left unconfigured.
func (m *Manager) PhaseRules() engine.PhaseRules {
	rules := engine.DefaultPhaseRules()
	for name, rule := range m.config.Engine.Phases {
		phase := domain.Phase(strings.ToUpper(name))
		if !phase.IsValid() || phase == domain.FINAL {
			continue
		}
		rules[phase] = rule
	}
	return rules
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	// Validate server configuration
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	// Validate store configuration
	switch config.Store.Backend {
	case "memory":
	case "sqlite":
		if config.Store.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for the sqlite backend")
		}
	case "redis":
		if config.Store.RedisURL == "" {
			return fmt.Errorf("redis URL is required for the redis backend")
		}
	case "postgres":
		if config.Store.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("invalid store backend: %s", config.Store.Backend)
	}

	// Validate knowledge base configuration
	if config.Knowledge.Path == "" {
		return fmt.Errorf("knowledge base path is required")
	}

	// Validate engine weights: the three components must sum to 1
	sum := config.Engine.SymptomWeight + config.Engine.RiskWeight + config.Engine.ConsistencyWeight
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("engine weights must sum to 1.0, got %.3f", sum)
	}
	if config.Engine.AtypicalPenalty < 0 {
		return fmt.Errorf("atypical penalty must be non-negative")
	}
	for name, rule := range config.Engine.Phases {
		if rule.TargetCount <= 0 {
			return fmt.Errorf("phase %s: target_count must be positive", name)
		}
		if rule.AdvanceCeiling <= 0 {
			return fmt.Errorf("phase %s: advance_ceiling must be positive", name)
		}
		if rule.MinQuestions < 0 {
			return fmt.Errorf("phase %s: min_questions must be non-negative", name)
		}
	}

	// Validate session configuration
	if config.Session.ExpiryTimeout <= 0 {
		return fmt.Errorf("session expiry timeout must be positive")
	}

	// Validate logging configuration
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}
