// Package twincore provides the base HTTP server, middleware chain, and
// response helpers for the pizza backend twin.
package twincore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Config holds the runtime configuration of a twin.
type Config struct {
	Name     string
	Addr     string
	Latency  time.Duration
	FailRate float64
	SeedFile string
	Verbose  bool
}

// Twin is the base server: a chi router with the common middleware stack.
type Twin struct {
	Config   *Config
	Router   *chi.Mux
	Logger   *zap.Logger
	Registry *prometheus.Registry
	mw       *Middleware
}

// New creates a Twin. A nil logger is replaced with a no-op logger.
func New(cfg *Config, logger *zap.Logger) *Twin {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("twin", cfg.Name))

	reg := prometheus.NewRegistry()
	r := chi.NewRouter()
	mw := NewMiddleware(cfg, logger, reg)

	// Latency and failure middleware are always mounted; both check the
	// live config before acting so admin updates apply immediately.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.CORS)
	r.Use(mw.RequestLog)
	r.Use(mw.LatencyInjection)
	r.Use(mw.RandomFailure)

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &Twin{
		Config:   cfg,
		Router:   r,
		Logger:   logger,
		Registry: reg,
		mw:       mw,
	}
}

// Middleware returns the middleware instance (request log, faults).
func (t *Twin) Middleware() *Middleware {
	return t.mw
}

// GetConfig returns the runtime configuration as a map.
func (t *Twin) GetConfig() map[string]any {
	cfg := t.mw.Settings()
	return map[string]any{
		"name":      cfg.Name,
		"addr":      cfg.Addr,
		"latency":   cfg.Latency.String(),
		"fail_rate": cfg.FailRate,
		"verbose":   cfg.Verbose,
	}
}

// UpdateConfig validates every update before applying any of them.
// Only latency, fail_rate and verbose can change at runtime.
func (t *Twin) UpdateConfig(updates map[string]any) error {
	var (
		latency  *time.Duration
		failRate *float64
		verbose  *bool
	)
	for k, v := range updates {
		switch k {
		case "latency":
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("latency must be a duration string")
			}
			d, err := time.ParseDuration(s)
			if err != nil {
				return fmt.Errorf("invalid latency duration: %w", err)
			}
			if d < 0 {
				return fmt.Errorf("latency must not be negative")
			}
			latency = &d
		case "fail_rate":
			f, ok := v.(float64)
			if !ok {
				return fmt.Errorf("fail_rate must be a number")
			}
			if f < 0 || f > 1 {
				return fmt.Errorf("fail_rate must be between 0.0 and 1.0")
			}
			failRate = &f
		case "verbose":
			b, ok := v.(bool)
			if !ok {
				return fmt.Errorf("verbose must be a boolean")
			}
			verbose = &b
		case "name", "addr":
			return fmt.Errorf("%s cannot be changed at runtime", k)
		default:
			return fmt.Errorf("unknown config key: %s", k)
		}
	}

	t.mw.update(func(cfg *Config) {
		if latency != nil {
			cfg.Latency = *latency
		}
		if failRate != nil {
			cfg.FailRate = *failRate
		}
		if verbose != nil {
			cfg.Verbose = *verbose
		}
	})
	return nil
}

// Serve listens on Config.Addr and blocks until ctx is cancelled, then
// shuts down gracefully.
func (t *Twin) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", t.Config.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", t.Config.Addr, err)
	}
	return t.ServeListener(ctx, ln)
}

// ServeListener serves on an existing listener until ctx is cancelled.
func (t *Twin) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      t.Router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		t.Logger.Info("starting twin", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	t.Logger.Info("shutting down twin")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// ServeHTTP implements http.Handler so a Twin can be mounted in-process.
func (t *Twin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t.Router.ServeHTTP(w, r)
}

// JSON writes v as a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// Error writes an error in the JWT Pizza service format: {"message": ...}.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"message": message})
}
