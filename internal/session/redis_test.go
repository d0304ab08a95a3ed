package session

import (
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreBreaker_KeyMissesDoNotTrip(t *testing.T) {
	br := newStoreBreaker(testLogger())

	// A burst of lookups for unknown sessions is normal traffic; the
	// breaker must stay closed and keep returning the miss to the caller.
	for i := 0; i < 10; i++ {
		_, err := br.Execute(func() (interface{}, error) {
			return nil, redis.Nil
		})
		require.ErrorIs(t, err, redis.Nil)
	}

	assert.Equal(t, gobreaker.StateClosed, br.State())
}

func TestStoreBreaker_BackendFailuresTrip(t *testing.T) {
	br := newStoreBreaker(testLogger())
	backendErr := errors.New("connection refused")

	for i := 0; i < 3; i++ {
		_, err := br.Execute(func() (interface{}, error) {
			return nil, backendErr
		})
		require.ErrorIs(t, err, backendErr)
	}

	assert.Equal(t, gobreaker.StateOpen, br.State())

	_, err := br.Execute(func() (interface{}, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}
