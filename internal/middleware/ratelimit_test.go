package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func bucketKey(identity string, window time.Duration) string {
	bucket := time.Now().Unix() / int64(window.Seconds())
	return fmt.Sprintf("ratelimit:%s:%d", identity, bucket)
}

func TestRateLimiter_Limit(t *testing.T) {
	window := time.Minute

	t.Run("under the limit passes through", func(t *testing.T) {
		rdb, rmock := redismock.NewClientMock()
		limiter := NewRateLimiter(rdb, 2, window)

		key := bucketKey("user1", window)
		rmock.ExpectIncr(key).SetVal(1)
		rmock.ExpectExpire(key, window).SetVal(true)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/balances", nil)
		req = req.WithContext(context.WithValue(req.Context(), "userID", "user1"))
		rec := httptest.NewRecorder()

		limiter.Limit(okHandler()).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NoError(t, rmock.ExpectationsWereMet())
	})

	t.Run("over the limit is rejected with Retry-After", func(t *testing.T) {
		rdb, rmock := redismock.NewClientMock()
		limiter := NewRateLimiter(rdb, 2, window)

		key := bucketKey("user1", window)
		rmock.ExpectIncr(key).SetVal(3)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/balances", nil)
		req = req.WithContext(context.WithValue(req.Context(), "userID", "user1"))
		rec := httptest.NewRecorder()

		limiter.Limit(okHandler()).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	})

	t.Run("anonymous requests bucket by client address", func(t *testing.T) {
		rdb, rmock := redismock.NewClientMock()
		limiter := NewRateLimiter(rdb, 2, window)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		key := bucketKey(req.RemoteAddr, window)
		rmock.ExpectIncr(key).SetVal(1)
		rmock.ExpectExpire(key, window).SetVal(true)

		rec := httptest.NewRecorder()
		limiter.Limit(okHandler()).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NoError(t, rmock.ExpectationsWereMet())
	})

	t.Run("redis failure fails open", func(t *testing.T) {
		rdb, rmock := redismock.NewClientMock()
		limiter := NewRateLimiter(rdb, 2, window)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/balances", nil)
		rmock.ExpectIncr(bucketKey(req.RemoteAddr, window)).SetErr(assert.AnError)

		rec := httptest.NewRecorder()
		limiter.Limit(okHandler()).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("nil redis disables limiting", func(t *testing.T) {
		limiter := NewRateLimiter(nil, 2, window)

		rec := httptest.NewRecorder()
		limiter.Limit(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
