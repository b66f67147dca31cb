package providers

import (
	"context"
	"errors"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/inkwellapp/inkwell-server/internal/api"
	"github.com/inkwellapp/inkwell-server/internal/config"
	"github.com/inkwellapp/inkwell-server/internal/logger"
	"github.com/inkwellapp/inkwell-server/internal/ratelimit"
	"github.com/inkwellapp/inkwell-server/internal/service"
)

// RateLimiterHandle wraps the keyed limiter so its eviction loop stops on shutdown.
type RateLimiterHandle struct {
	*ratelimit.KeyedRateLimiter
}

// Shutdown implements do.Shutdownable.
func (h *RateLimiterHandle) Shutdown() error {
	if h.KeyedRateLimiter != nil {
		h.Stop()
	}
	return nil
}

// ProvideRateLimiter provides the write rate limiter.
// A non-positive rate disables limiting.
func ProvideRateLimiter(i do.Injector) (*RateLimiterHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Server.RateLimit <= 0 {
		log.Info("Rate limiting disabled by configuration")
		return &RateLimiterHandle{}, nil
	}

	limiter := ratelimit.New(cfg.Server.RateLimit, cfg.Server.RateBurst, 0)
	log.Info("Rate limiting enabled", "rate", cfg.Server.RateLimit, "burst", cfg.Server.RateBurst)

	return &RateLimiterHandle{KeyedRateLimiter: limiter}, nil
}

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer provides the HTTP server.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	limiterHandle := do.MustInvoke[*RateLimiterHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	services := &api.Services{
		Posts:    do.MustInvoke[*service.PostService](i),
		Users:    do.MustInvoke[*service.UserService](i),
		Comments: do.MustInvoke[*service.CommentService](i),
		Taxonomy: do.MustInvoke[*service.TaxonomyService](i),
		Search:   do.MustInvoke[*service.SearchService](i),
		Store:    storeHandle.Store,
	}

	handler := api.NewServer(services, limiterHandle.KeyedRateLimiter, api.Options{
		CORSOrigins: cfg.Server.CORSOrigins,
		RateLimit:   cfg.Server.RateLimit,
	}, log.Component("api"))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start in background
	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	log.Info("Server running", "addr", srv.Addr)

	return &HTTPServerHandle{Server: srv}, nil
}
