package middleware

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/NomadCrew/dojo-portal/config"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

var corsAllowHeaders = []string{
	"Origin",
	"Content-Length",
	"Content-Type",
	"Accept",
	"X-Requested-With",
	"X-Request-ID",
	HeaderActorUsername,
	HeaderActorID,
	HeaderActorKind,
}

var corsAllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}

// CORSMiddleware allows the portal front end to call the BFF. An empty or "*"
// origin list falls back to gin-contrib/cors with every origin allowed.
func CORSMiddleware(cfg *config.ServerConfig) gin.HandlerFunc {
	if len(cfg.AllowedOrigins) == 0 || slices.Contains(cfg.AllowedOrigins, "*") {
		return cors.New(cors.Config{
			AllowAllOrigins: true,
			AllowMethods:    corsAllowMethods,
			AllowHeaders:    corsAllowHeaders,
			ExposeHeaders:   []string{"Content-Length", "X-Request-ID", "Retry-After"},
			MaxAge:          12 * time.Hour,
		})
	}

	methods := strings.Join(corsAllowMethods, ", ")
	headers := strings.Join(corsAllowHeaders, ", ")
	origins := cfg.AllowedOrigins

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// Same-origin and server-to-server calls carry no Origin.
		if origin == "" {
			c.Next()
			return
		}

		if !originAllowed(origins, origin) {
			c.Next()
			return
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", methods)
		c.Header("Access-Control-Allow-Headers", headers)
		c.Header("Access-Control-Expose-Headers", "Content-Length, X-Request-ID, Retry-After")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "43200")
		c.Header("Vary", "Origin")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// originAllowed matches exact origins and "*.example.com" subdomain patterns.
func originAllowed(allowed []string, origin string) bool {
	for _, candidate := range allowed {
		if candidate == origin {
			return true
		}
		if strings.HasPrefix(candidate, "*.") && strings.HasSuffix(origin, candidate[1:]) {
			return true
		}
	}
	return false
}
