package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/apdpe/prediction-engine/internal/api"
	"github.com/apdpe/prediction-engine/internal/config"
	"github.com/apdpe/prediction-engine/internal/database"
	"github.com/apdpe/prediction-engine/internal/domain"
	"github.com/apdpe/prediction-engine/internal/engine"
	"github.com/apdpe/prediction-engine/internal/knowledge"
	"github.com/apdpe/prediction-engine/internal/session"
)

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := newLogger(cfg.Logging)

	// Load the knowledge base
	kb, err := knowledge.NewProvider(logger, cfg.Knowledge.Path, cfg.Knowledge.CacheMaxItems)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load knowledge base")
	}
	logger.WithFields(logrus.Fields{
		"version":   kb.Version(),
		"disorders": len(kb.Disorders()),
		"questions": len(kb.Questions()),
	}).Info("Knowledge base loaded")

	// Build the engine components
	rules := configManager.PhaseRules()
	evidence := engine.NewEvidenceModel(logger, kb)
	scorer := engine.NewScorer(logger, configManager.ScoringWeights(), cfg.Engine.AtypicalPenalty)
	selector := engine.NewSelector(logger, rules)
	urgency := engine.NewUrgencyClassifier(logger)
	machine := engine.NewPhaseMachine(logger, rules, evidence, scorer, selector, urgency)

	// Open the session store
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, logger, cfg.Store)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open session store")
	}
	defer store.Close()

	sessions := session.NewManager(logger, store, kb, machine, cfg.Session)

	logger.WithFields(logrus.Fields{
		"host":    cfg.Server.Host,
		"port":    cfg.Server.Port,
		"backend": cfg.Store.Backend,
	}).Info("Starting prediction engine server")

	server := api.NewServer(logger, cfg, sessions, store, kb)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down")
		cancel()
	}()

	// Start server
	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}

	logger.Info("Server stopped")
}

// newLogger builds the process logger from configuration.
func newLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

// openStore selects and initializes the configured session store backend.
// Postgres runs schema migrations before serving.
func openStore(ctx context.Context, logger *logrus.Logger, cfg domain.StoreConfig) (domain.SessionStore, error) {
	switch cfg.Backend {
	case "memory":
		return session.NewMemoryStore(), nil
	case "sqlite":
		return session.NewSQLiteStore(cfg.SQLitePath)
	case "redis":
		return session.NewRedisStore(logger, cfg.RedisURL, cfg.RedisTTL)
	case "postgres":
		runner, err := database.NewMigrationRunner(cfg.PostgresURL, cfg.Migrations, logger)
		if err != nil {
			return nil, err
		}
		if err := runner.Up(); err != nil {
			runner.Close()
			return nil, err
		}
		runner.Close()

		pool, err := database.Connect(ctx, database.Config{URL: cfg.PostgresURL}, logger)
		if err != nil {
			return nil, err
		}
		return session.NewPostgresStore(pool)
	default:
		return session.NewMemoryStore(), nil
	}
}
