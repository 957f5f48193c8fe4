// Package httpapi wires the admin HTTP surface: health and readiness probes,
// Prometheus metrics and, when an admin token is configured, a REST mirror
// of the alliance administration commands and the request ledger.
//
// Middleware order:
//  1. OpenTelemetry
//  2. RequestID
//  3. Logger (with redaction)
//  4. Recovery
//  5. Body size limit
//  6. Metrics
//  7. Rate limiter (per client IP)
//  8. CORS and security headers
//
// The API group adds bearer authentication and gzip.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-alliance-bot/internal/config"
	"github.com/tbourn/go-alliance-bot/internal/http/handlers"
	"github.com/tbourn/go-alliance-bot/internal/http/middleware"
	"github.com/tbourn/go-alliance-bot/internal/ratelimit"
)

// maxBodyBytes caps request bodies; admin payloads are tiny.
const maxBodyBytes = 64 << 10

// Deps are the services behind the API. Ready may be nil.
type Deps struct {
	Alliances handlers.AllianceAdmin
	Ledger    handlers.Ledger
	Prompter  handlers.Prompter
	Channels  handlers.ChannelChecker
	Ready     func(context.Context) error
}

// RegisterRoutes attaches middleware and endpoints to r.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(middleware.RedactOptions{}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.RateLimit(ratelimit.New(cfg.HTTP.RateRPS, cfg.HTTP.RateBurst), middleware.KeyByClientIP))

	r.Use(corsMiddleware(cfg.HTTP.CORSAllowedOrigins))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS: cfg.HTTP.EnableHSTS,
		HSTSMaxAge: cfg.HTTP.HSTSMaxAge,
		NoStore:    true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/ready", func(c *gin.Context) {
		if deps.Ready != nil {
			if err := deps.Ready(c.Request.Context()); err != nil {
				_ = c.Error(err)
				handlers.Fail(c, http.StatusServiceUnavailable, "not_ready", "dependencies unavailable")
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	if cfg.HTTP.AdminToken == "" {
		return
	}

	h := handlers.New(deps.Alliances, deps.Ledger, deps.Prompter, deps.Channels)
	api := groupWithPrefix(r, cfg.HTTP.APIBasePath)
	api.Use(middleware.BearerAuth(cfg.HTTP.AdminToken), gzip.Gzip(gzip.DefaultCompression))

	community := api.Group("/communities/:community")
	{
		community.GET("/alliances", h.ListAlliances)
		community.GET("/alliances/:role", h.GetAlliance)
		community.PUT("/alliances/:role", h.UpsertAlliance)
		community.PATCH("/alliances/:role", h.PatchAlliance)
		community.PUT("/alliances/:role/approvers", h.SetApprovers)

		community.GET("/requests", h.ListRequests)
		community.GET("/requests/:id", h.GetRequest)

		community.POST("/members/:member/verify", h.VerifyMember)
	}
}

// NewServer builds the http.Server for handler with the configured limits.
func NewServer(cfg config.HTTPConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
}

// corsMiddleware allows any origin without credentials when no allowlist is
// configured, otherwise only the listed origins.
func corsMiddleware(origins []string) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods:  []string{"GET", "PUT", "PATCH", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID", "Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return cors.New(c)
}

// limitBody caps the request body at maxBytes; larger bodies fail to decode.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
