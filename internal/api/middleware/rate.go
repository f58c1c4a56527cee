package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/burrowgate/burrowgate/internal/api/dto/common"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines configuration for the API rate limiter.
type RateLimitConfig struct {
	// RPS is the sustained request rate allowed across all callers.
	RPS int
	// Burst is how many requests may arrive back-to-back before throttling.
	Burst int
}

// RateLimit throttles the whole API surface with a single token bucket. The
// gateway fronts a handful of operators and agents, not the public internet,
// so a global bucket is enough.
func RateLimit(config RateLimitConfig) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(config.RPS), config.Burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				common.NewErrorResponse("Rate limit exceeded", "Please try again later", nil))
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(config.RPS))
		tokens := limiter.Tokens()
		c.Header("X-RateLimit-Remaining", strconv.Itoa(int(tokens)))

		// Next refill instant, derived from the bucket level. Taking a
		// reservation here would spend a second token per request.
		var wait time.Duration
		if tokens < 1 && config.RPS > 0 {
			wait = time.Duration((1 - tokens) / float64(config.RPS) * float64(time.Second))
		}
		c.Header("X-RateLimit-Reset", time.Now().Add(wait).Format(time.RFC1123))

		c.Next()
	}
}
