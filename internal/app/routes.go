package app

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/journal/internal/middleware"
	"github.com/mx-space/journal/internal/modules/crontask"
	"github.com/mx-space/journal/internal/modules/session"
	"github.com/mx-space/journal/internal/pkg/response"
	"github.com/redis/go-redis/v9"
)

const (
	apiPrefix = "/api/v1"

	// Generation requests per user per window.
	aiRateLimit  = 20
	aiRateWindow = time.Minute
)

var processStart = time.Now()

func (a *App) registerRoutes(r *gin.Engine) {
	authMW := middleware.Auth(a.signer)

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c, "")
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})

	appInfo := gin.H{
		"name":    "journal",
		"version": "1.0.0",
		"remote":  a.cfg.Remote.Driver,
		"cache":   a.cfg.Cache.Backend,
	}

	api := r.Group(apiPrefix)
	api.GET("", func(c *gin.Context) { c.PureJSON(http.StatusOK, appInfo) })
	api.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"data": "pong"}) })
	api.GET("/uptime", func(c *gin.Context) {
		uptime := time.Since(processStart)
		c.JSON(http.StatusOK, gin.H{
			"timestamp": uptime.Milliseconds(),
			"humanize":  humanizeDuration(uptime),
		})
	})

	var rdb *redis.Client
	if a.rc != nil {
		rdb = a.rc.Raw()
	}
	limiter := middleware.RateLimit(rdb, aiRateLimit, aiRateWindow)

	session.NewHandler(a.registry, limiter).RegisterRoutes(api, authMW)
	crontask.NewHandler(a.sched, a.tasks).RegisterRoutes(api, authMW)
}
