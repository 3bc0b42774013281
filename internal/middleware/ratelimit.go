package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimit caps requests per user in fixed windows using a Redis counter.
// It guards the AI generation routes; with a nil client it is a no-op.
func RateLimit(rdb *redis.Client, max int64, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rdb == nil || max <= 0 {
			c.Next()
			return
		}
		subject := CurrentUserID(c)
		if subject == "" {
			subject = c.ClientIP()
		}

		ctx := c.Request.Context()
		bucket := time.Now().UnixNano() / int64(window)
		key := fmt.Sprintf("journal:rate_limit:%s:%d", subject, bucket)

		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			c.Next()
			return
		}
		if count == 1 {
			rdb.PExpire(ctx, key, window+time.Second)
		}

		if count > max {
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"ok":      0,
				"code":    http.StatusTooManyRequests,
				"message": "too many generation requests, slow down",
			})
			return
		}
		c.Next()
	}
}
