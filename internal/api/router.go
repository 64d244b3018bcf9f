package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/threadline/internal/middleware"
)

// RouterDeps holds all dependencies needed by the router.
type RouterDeps struct {
	Log        *logrus.Logger
	Store      HealthChecker
	Completion CompletionHealth
	Progress   ProgressSource
	Version    string
}

// Router-level limits.
const (
	rateLimit = 20 // requests per second per IP
	rateBurst = 40 // token bucket burst size
)

// NewRouter creates the gin engine serving the status endpoints and /metrics.
func NewRouter(ctx context.Context, deps *RouterDeps) http.Handler {
	r := gin.New()

	r.SetTrustedProxies(nil) //nolint:errcheck // nil always succeeds.
	r.Use(middleware.RequestID(deps.Log))
	r.Use(middleware.Logger(deps.Log))
	r.Use(gin.Recovery())
	r.Use(middleware.NoStore())
	r.Use(middleware.NewRateLimiter(ctx, rateLimit, rateBurst).Handler())
	r.Use(middleware.Prometheus())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	health := NewHealthHandler(deps.Store, deps.Completion, deps.Log, deps.Version)
	progress := NewProgressHandler(deps.Progress)

	v1 := r.Group("/api/v1")
	v1.GET("/health", health.Liveness)
	v1.GET("/ready", health.Readiness)
	v1.GET("/progress", progress.Get)

	r.NoRoute(func(c *gin.Context) {
		respondError(c, http.StatusNotFound, ErrCodeNotFound, "no such endpoint")
	})

	return r
}

// Serve runs handler on addr until ctx is canceled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, log *logrus.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		log.WithField("addr", addr).Info("status server listening")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}

		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
