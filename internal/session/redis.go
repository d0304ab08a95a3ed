package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/apdpe/prediction-engine/internal/domain"
)

// redisKeyPrefix namespaces session keys in a shared Redis instance.
const redisKeyPrefix = "apdpe:session:"

// RedisStore implements the SessionStore interface on Redis. Keys carry the
// store TTL so abandoned sessions age out without a sweeper. All commands go
// through a circuit breaker so a flapping Redis fails fast instead of
// stalling request handlers.
type RedisStore struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	ttl     time.Duration
	logger  *logrus.Logger
}

// NewRedisStore creates a Redis-backed session store from a connection URL.
func NewRedisStore(logger *logrus.Logger, url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &RedisStore{
		client:  client,
		breaker: newStoreBreaker(logger),
		ttl:     ttl,
		logger:  logger,
	}, nil
}

// newStoreBreaker builds the circuit breaker guarding store commands. A key
// miss is a valid answer, not a backend fault, so redis.Nil is exempt from
// failure counting while still propagating to the caller.
func newStoreBreaker(logger *logrus.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "SessionRedis",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redis.Nil)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state change")
		},
	})
}

// Save serializes the session and stores it with the configured TTL.
func (s *RedisStore) Save(ctx context.Context, session *domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}

	_, err = s.breaker.Execute(func() (interface{}, error) {
		return nil, s.client.Set(ctx, redisKeyPrefix+session.ID, data, s.ttl).Err()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			return fmt.Errorf("session store unavailable (circuit breaker open)")
		}
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Get retrieves and deserializes a session.
func (s *RedisStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		return s.client.Get(ctx, redisKeyPrefix+id).Bytes()
	})
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		if errors.Is(err, gobreaker.ErrOpenState) {
			return nil, fmt.Errorf("session store unavailable (circuit breaker open)")
		}
		return nil, fmt.Errorf("failed to fetch session: %w", err)
	}

	var sess domain.Session
	if err := json.Unmarshal(result.([]byte), &sess); err != nil {
		return nil, fmt.Errorf("failed to deserialize session: %w", err)
	}
	return &sess, nil
}

// Delete removes a session key.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.client.Del(ctx, redisKeyPrefix+id).Err()
	})
	if err != nil && !errors.Is(err, gobreaker.ErrOpenState) {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return err
}

// Ping verifies Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
