// Package server builds the gin engine shared by every HTTP channel and runs
// it until shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

type Config struct {
	Addr            string        `envconfig:"HTTP_ADDR" default:":8080"`
	RequestTimeout  time.Duration `split_words:"true" default:"60s"`
	ShutdownTimeout time.Duration `split_words:"true" default:"15s"`
	RateLimitRPS    float64       `envconfig:"RATE_LIMIT_RPS" default:"5"`
	RateLimitBurst  int           `split_words:"true" default:"20"`
	MaxBodyBytes    int64         `split_words:"true" default:"26214400"`
	// TrustedProxies lists the proxies allowed to set X-Forwarded-For. Empty
	// means the peer address is the client address.
	TrustedProxies []string `split_words:"true"`
}

// Routes is implemented by each channel adapter.
type Routes interface {
	Register(r gin.IRouter)
}

// New returns an engine with the shared middleware stack and the routes of
// every adapter. A zero RateLimitRPS disables rate limiting.
func New(cfg Config, routes ...Routes) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		log.Warn().Err(err).Strs("trusted_proxies", cfg.TrustedProxies).Msg("invalid trusted proxies, trusting none")
		_ = engine.SetTrustedProxies(nil)
	}
	engine.Use(
		Recovery(),
		AccessLog(),
		SecurityHeaders(),
		RequestSizeLimiter(cfg.MaxBodyBytes),
	)
	if cfg.RateLimitRPS > 0 {
		engine.Use(NewIPRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst).Middleware())
	}
	if cfg.RequestTimeout > 0 {
		engine.Use(RequestTimeout(cfg.RequestTimeout))
	}

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	for _, r := range routes {
		if r != nil {
			r.Register(engine)
		}
	}
	return engine
}

// Start serves handler on cfg.Addr. It blocks until ctx is cancelled, then
// drains in-flight requests for at most cfg.ShutdownTimeout.
func Start(ctx context.Context, cfg Config, handler http.Handler) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	log.Info().Dur("timeout", timeout).Msg("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}
