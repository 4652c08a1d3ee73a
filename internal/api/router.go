// Package api is the HTTP surface of the presence board: JSON endpoints
// for reads and writes, and a server-sent event stream per day.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"courtboard/internal/auth"
	"courtboard/internal/clock"
	"courtboard/internal/feedback"
	"courtboard/internal/httpmiddleware"
	"courtboard/internal/presence"
	"courtboard/internal/profile"
)

// Deps are the collaborators the handlers use.
type Deps struct {
	Aggregator *presence.Aggregator
	Actions    *presence.Actions
	Profiles   profile.Directory
	Feedback   *feedback.Service
	// Live is optional; without it /v1/live counts on demand.
	Live *presence.LiveMonitor
	// Health reports backend health for /healthz. Optional.
	Health func(context.Context) error
	// Gatherer serves /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
	Clock    clock.Clock
	Logger   *zap.Logger

	JWTSigningKey   string
	JWTIssuer       string
	RateLimitPerMin int
}

type server struct {
	Deps
}

// NewRouter builds the gin engine.
func NewRouter(d Deps) *gin.Engine {
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	s := &server{Deps: d}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(d.Logger, "/healthz", "/metrics"))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())

	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if d.Gatherer != nil {
		gatherer = d.Gatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	r.GET("/healthz", s.healthz)

	var limit gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if d.RateLimitPerMin > 0 {
		limit = httpmiddleware.NewSimpleTokenBucket(d.RateLimitPerMin, d.RateLimitPerMin, d.Clock).GinMiddleware()
	}

	public := r.Group("/v1", auth.OptionalUserAuth(d.JWTSigningKey, d.JWTIssuer), limit)
	public.GET("/slots", s.listSlots)
	public.GET("/live", s.live)
	public.GET("/days/:day", s.getDay)
	public.GET("/days/:day/stream", s.streamDay)

	authed := r.Group("/v1", auth.UserAuth(d.JWTSigningKey, d.JWTIssuer), limit)
	authed.GET("/days/:day/attendance", s.getAttendance)
	authed.PUT("/days/:day/attendance", s.putAttendance)
	authed.DELETE("/days/:day/attendance", s.deleteAttendance)
	authed.PUT("/days/:day/slots/:slot", s.joinSlot)
	authed.DELETE("/days/:day/slots/:slot", s.leaveSlot)
	authed.PUT("/profile", s.putProfile)
	authed.POST("/feedback", s.postFeedback)

	return r
}

// requestLogger logs one line per request, skipping the given paths.
func requestLogger(logger *zap.Logger, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if skipped[c.Request.URL.Path] {
			return
		}
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
