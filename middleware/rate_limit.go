package middleware

import (
	"fmt"
	"math"
	"strings"
	"time"

	apperrors "github.com/NomadCrew/dojo-portal/errors"
	"github.com/NomadCrew/dojo-portal/logger"
	"github.com/NomadCrew/dojo-portal/services"
	"github.com/gin-gonic/gin"
)

// CodeRateLimiter limits verification-code requests per client IP. Limiter
// failures let the request through so a Redis outage does not lock members out.
func CodeRateLimiter(limiter services.RateLimiterInterface, requests int, window time.Duration) gin.HandlerFunc {
	log := logger.GetLogger().Named("rate_limit")

	return func(c *gin.Context) {
		ip := getClientIP(c)
		key := fmt.Sprintf("ip:codes:%s", ip)

		allowed, retryAfter, err := limiter.CheckLimit(c.Request.Context(), key, requests, window)
		if err != nil {
			log.Warnw("Rate limit check failed, allowing request", "ip", ip, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", requests))

		if !allowed {
			seconds := int(math.Ceil(retryAfter.Seconds()))
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(retryAfter).Unix()))
			c.Header("Retry-After", fmt.Sprintf("%d", seconds))

			_ = c.Error(apperrors.RateLimited("Too many requests. Please try again later.", seconds))
			c.Abort()
			return
		}

		c.Next()
	}
}

// getClientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then
// gin's view of the remote address.
func getClientIP(c *gin.Context) string {
	if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
		ips := strings.Split(forwarded, ",")
		if ip := strings.TrimSpace(ips[0]); ip != "" {
			return ip
		}
	}

	if realIP := c.GetHeader("X-Real-IP"); realIP != "" {
		return realIP
	}

	return c.ClientIP()
}
