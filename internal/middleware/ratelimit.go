package middleware

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
)

// RateLimiter bounds request rates per client identity using TTL-bucketed
// counters in Redis. It is injected into the router rather than living as
// process-global state, and passes requests through when Redis is absent.
type RateLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
}

func NewRateLimiter(rdb *redis.Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{redis: rdb, limit: limit, window: window}
}

// Limit is the chi middleware. The bucket key is the authenticated user
// when present, the client IP otherwise.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.redis == nil {
			next.ServeHTTP(w, r)
			return
		}

		identity, ok := r.Context().Value("userID").(string)
		if !ok || identity == "" {
			identity = r.RemoteAddr
		}

		bucket := time.Now().Unix() / int64(rl.window.Seconds())
		key := fmt.Sprintf("ratelimit:%s:%d", identity, bucket)

		count, err := rl.redis.Incr(r.Context(), key).Result()
		if err != nil {
			// Redis trouble must not take the API down
			log.Printf("[RATELIMIT] Counter update failed: %v", err)
			next.ServeHTTP(w, r)
			return
		}
		if count == 1 {
			rl.redis.Expire(r.Context(), key, rl.window)
		}

		if count > int64(rl.limit) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(rl.window.Seconds())))
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
