// README: Fixed-window rate limiting on a counter shared across instances.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const rateKeyPrefix = "ratelimit:"

// WindowCounter counts hits on key within the current window.
type WindowCounter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
}

type RedisCounter struct {
	redis *redis.Client
}

func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{redis: client}
}

// Hit increments the window's counter and sets its expiry on first use.
func (r *RedisCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := r.redis.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// RateLimit allows limit requests per window per caller uid, or per client IP when anonymous.
func RateLimit(counter WindowCounter, limit int, window time.Duration) gin.HandlerFunc {
	return rateLimit(counter, limit, window, time.Now)
}

func rateLimit(counter WindowCounter, limit int, window time.Duration, now func() time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		if counter == nil || limit <= 0 || window <= 0 {
			c.Next()
			return
		}
		who := CallerUID(c)
		if who == "" {
			who = "ip:" + c.ClientIP()
		}
		slot := now().UnixNano() / int64(window)
		key := fmt.Sprintf("%s%s:%d", rateKeyPrefix, who, slot)

		n, err := counter.Hit(c.Request.Context(), key, window)
		if err != nil {
			Logger(c).Warn("rate limit counter unavailable", zap.Error(err))
			c.Next()
			return
		}
		remaining := int64(limit) - n
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		if n > int64(limit) {
			reset := time.Unix(0, (slot+1)*int64(window)).Sub(now())
			c.Header("Retry-After", strconv.Itoa(int(reset.Seconds())+1))
			abort(c, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		c.Next()
	}
}
