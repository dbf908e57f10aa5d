package handler

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nfccheckin/internal/auth"
	"nfccheckin/internal/checkin"
	"nfccheckin/internal/httpmiddleware"
	"nfccheckin/internal/terminal"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// Terminals enables token endpoints and bearer authentication of scans.
	Terminals       *terminal.Service
	AuthRequired    bool
	CORSOrigins     []string
	RateLimitPerMin int
	Logger          *slog.Logger
	// Checks are probed by /healthz, keyed by the name reported back.
	Checks map[string]HealthCheck
}

// NewRouter wires the HTTP surface of the check-in service.
func NewRouter(svc *checkin.Service, opts RouterOptions) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := New(svc, opts.Terminals, logger)

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(httpmiddleware.RequestID())
	r.Use(httpmiddleware.AccessLog(logger))
	r.Use(httpmiddleware.Metrics())
	r.Use(gin.Recovery())
	r.Use(corsMiddleware(opts.CORSOrigins))
	r.Use(httpmiddleware.NewSimpleTokenBucket(opts.RateLimitPerMin, opts.RateLimitPerMin).GinMiddleware())

	r.NoMethod(func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusMethodNotAllowed, gin.H{"status": statusError, "message": "Invalid request method."})
	})
	r.NoRoute(func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"status": statusError, "message": "Not found"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", healthz(opts.Checks))

	var scoped []gin.HandlerFunc
	if opts.Terminals != nil {
		r.POST("/v1/terminals/register", h.RegisterTerminal)
		r.POST("/v1/terminals/refresh", h.RefreshTerminal)
		scoped = append(scoped, auth.TerminalAuth(opts.Terminals.Issuer(), opts.AuthRequired))
	}

	legacy := r.Group("/api", scoped...)
	legacy.GET("", h.Dispatch)
	legacy.POST("", h.Dispatch)

	v1 := r.Group("/v1", scoped...)
	v1.POST("/log", h.route(checkin.ActionLog))
	v1.POST("/lookup", h.route(checkin.ActionLookup))
	v1.POST("/checkin", h.route(checkin.ActionCheckIn))
	v1.GET("/count", h.route(checkin.ActionCount))
	v1.POST("/count", h.route(checkin.ActionCount))
	v1.GET("/logs", h.route(checkin.ActionLogs))
	v1.GET("/live", h.Live)

	reports := v1.Group("/reports")
	reports.POST("/roles", h.route(checkin.ActionReportRoles))
	reports.POST("/users", h.route(checkin.ActionReportUsers))
	reports.POST("/terminal", h.route(checkin.ActionReportTerminal))

	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

func healthz(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		body := gin.H{"status": "ok"}
		code := http.StatusOK
		for name, check := range checks {
			ok := check(ctx)
			body[name] = ok
			if !ok {
				code = http.StatusServiceUnavailable
				body["status"] = "degraded"
			}
		}
		c.JSON(code, body)
	}
}
