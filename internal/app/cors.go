package app

import (
	"net/url"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// corsMiddleware allows every origin in development or when no patterns are
// configured.
func corsMiddleware(patterns []string, dev bool) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		AllowOriginFunc:  func(string) bool { return true },
	}
	if len(patterns) > 0 && !dev {
		cfg.AllowOriginFunc = func(origin string) bool {
			return originAllowed(patterns, origin)
		}
	}
	return cors.New(cfg)
}

func originAllowed(patterns []string, origin string) bool {
	host := originHost(origin)
	for _, pattern := range patterns {
		if matchOrigin(pattern, host) {
			return true
		}
	}
	return false
}

// originHost returns the "host[:port]" part of an origin URL.
func originHost(origin string) string {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return origin
	}
	return u.Host
}

// matchOrigin supports exact hosts, "*.example.com" and "localhost:*".
func matchOrigin(pattern, host string) bool {
	switch {
	case pattern == host:
		return true
	case strings.HasPrefix(pattern, "*."):
		return strings.HasSuffix(host, pattern[1:])
	case strings.HasSuffix(pattern, ":*"):
		return strings.HasPrefix(host, pattern[:len(pattern)-1])
	}
	return false
}
