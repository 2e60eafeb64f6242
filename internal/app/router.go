package app

import (
	"time"

	"github.com/gin-gonic/gin"
)

type RouterConfig struct {
	JWTSecret      string
	StaticTokens   []string
	RequestTimeout time.Duration
	// RateLimiter is applied to /api when set.
	RateLimiter gin.HandlerFunc
}

func (a *App) Router(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestID(), AccessLog(a.Logger))

	router.GET("/healthz", a.HealthHandler)
	router.GET("/readyz", a.ReadyHandler)

	api := router.Group("/api")
	api.Use(AuthMiddleware(cfg.JWTSecret, cfg.StaticTokens))
	if cfg.RateLimiter != nil {
		api.Use(cfg.RateLimiter)
	}
	api.Use(RequestTimeout(cfg.RequestTimeout))
	{
		users := api.Group("/users")
		{
			users.GET("/:id/availability", a.ListAvailabilityHandler)
			users.GET("/:id/slots", a.GetSlotsHandler)
			users.POST("/:id/conflicts", a.CheckConflictsHandler)
			users.GET("/:id/suggestions", a.SuggestAlternativesHandler)
		}
	}
	return router
}
