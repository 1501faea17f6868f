package security

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Allow_FirstHitStartsWindow(t *testing.T) {
	db, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(db)

	key := "ratelimit:join:user:u1"
	mock.ExpectIncr(key).SetVal(1)
	mock.ExpectExpire(key, time.Minute).SetVal(true)

	ok, err := limiter.Allow(context.Background(), key, 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimiter_Allow_UnderLimit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(db)

	key := "ratelimit:join:user:u1"
	// Later hits only increment; the TTL was set by the first one.
	mock.ExpectIncr(key).SetVal(4)

	ok, err := limiter.Allow(context.Background(), key, 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimiter_Allow_AtLimit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(db)

	key := "ratelimit:join:user:u1"
	mock.ExpectIncr(key).SetVal(5)

	ok, err := limiter.Allow(context.Background(), key, 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "the limit itself is still allowed")
}

func TestRateLimiter_Allow_OverLimit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(db)

	key := "ratelimit:join:user:u1"
	mock.ExpectIncr(key).SetVal(6)

	ok, err := limiter.Allow(context.Background(), key, 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRateLimiter_Allow_RedisError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(db)

	key := "ratelimit:join:user:u1"
	mock.ExpectIncr(key).SetErr(errors.New("connection refused"))

	_, err := limiter.Allow(context.Background(), key, 5, time.Minute)
	assert.Error(t, err)
}

func TestRateLimiter_Limit_HandlerID(t *testing.T) {
	db, _ := redismock.NewClientMock()
	limiter := NewRateLimiter(db)

	h := limiter.Limit("join", 5, time.Minute)
	require.NotNil(t, h)
	assert.Equal(t, "rateLimit:join", h.Id)
	assert.NotNil(t, h.Func)
}
