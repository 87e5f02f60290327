package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mossy-p/livestream-signaling/config"
	"github.com/mossy-p/livestream-signaling/internal/logging"
	"github.com/mossy-p/livestream-signaling/internal/middleware"
)

// Core is everything the HTTP surface needs from the signaling coordinator.
type Core interface {
	Signaler
	Directory
}

// BreakerState reports the state of a guarded dependency.
type BreakerState interface {
	State() string
}

// NewRouter wires every HTTP route. mirror may be nil when Redis is disabled.
func NewRouter(cfg *config.Config, core Core, mirror BreakerState) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.GinMiddleware())
	router.Use(OriginFilter(cfg.AllowedOrigins))

	router.GET("/health", Health(core, mirror))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.POST("/auth/login", Login(cfg.JWTSecret, cfg.OperatorPassword))
		api.GET("/broadcasts", ListBroadcasts(core))
		api.GET("/broadcasts/:broadcastId", GetBroadcast(core))

		admin := api.Group("/admin", middleware.JWTAuth(cfg.JWTSecret))
		admin.DELETE("/broadcasts/:broadcastId", EndBroadcast(core))
	}

	router.GET("/ws/signal", HandleSignaling(core, cfg.WebSocket))

	return router
}

// Health reports liveness along with the coordinator's current sizes.
func Health(dir Directory, mirror BreakerState) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
		defer cancel()

		mirrorState := "disabled"
		if mirror != nil {
			mirrorState = mirror.State()
		}

		stats, err := dir.Stats(ctx)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unavailable",
				"mirror": mirrorState,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":     "ok",
			"sessions":   stats.Sessions,
			"broadcasts": stats.Broadcasts,
			"viewers":    stats.Viewers,
			"mirror":     mirrorState,
		})
	}
}
