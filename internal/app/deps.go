package app

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/johnmaccormick/mirDB/internal/backend"
	"github.com/johnmaccormick/mirDB/internal/catalog"
	"github.com/johnmaccormick/mirDB/internal/config"
	"github.com/johnmaccormick/mirDB/internal/db"
	"github.com/johnmaccormick/mirDB/internal/handlers"
	"github.com/johnmaccormick/mirDB/internal/middleware"
	"github.com/johnmaccormick/mirDB/internal/session"
)

// buildDependencies wires together concrete implementations used by the HTTP
// handlers. pool is only consulted for the postgres catalog source.
func buildDependencies(cfg config.Config, pool db.Pool, logger *slog.Logger) (handlers.Dependencies, *session.Registry, error) {
	httpClient := &http.Client{Timeout: cfg.BackendTimeout}

	authAPI := backend.NewAuthAPI(cfg.SupabaseURL, cfg.SupabaseAnonKey, httpClient)
	registry := session.NewRegistry(func() *backend.AuthClient {
		return backend.NewAuthClient(authAPI)
	}, cfg.BrowserIdleTTL, cfg.MaxBrowsers)

	var querier backend.Querier
	switch cfg.CatalogSource {
	case config.CatalogSourcePostgres:
		if pool == nil {
			return handlers.Dependencies{}, nil, fmt.Errorf("catalog source %q needs a database pool", cfg.CatalogSource)
		}
		querier = backend.NewPostgresQuerier(pool, cfg.Schema)
	default:
		querier = backend.NewRESTQuerier(cfg.SupabaseURL, cfg.SupabaseAnonKey, cfg.Schema, httpClient)
	}

	cookies, err := handlers.NewCookieStore(cfg.SessionSecret, cfg.BasePath, cfg.SecureCookies, cfg.BrowserIdleTTL)
	if err != nil {
		return handlers.Dependencies{}, nil, err
	}

	return handlers.Dependencies{
		Logger:             logger,
		Browsers:           registry,
		Catalog:            catalog.NewService(querier),
		Cookies:            cookies,
		Limiter:            middleware.NewKeyedRateLimiter(cfg.AuthRateLimit, cfg.AuthRateLimitWindow),
		BasePath:           cfg.BasePath,
		CatalogSource:      cfg.CatalogSource,
		SignupEmailDomains: cfg.SignupEmailDomains,
		RedirectURL:        cfg.RedirectURL,
		RecoveryPollDelay:  cfg.RecoveryPollDelay,
	}, registry, nil
}
