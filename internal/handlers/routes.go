package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"

	"github.com/johnmaccormick/mirDB/internal/middleware"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Logger   *slog.Logger
	Browsers Browsers
	Catalog  Catalog
	Cookies  sessions.Store
	Limiter  RateLimiter

	BasePath           string
	CatalogSource      string
	SignupEmailDomains []string
	RedirectURL        func(route string) string
	RecoveryPollDelay  time.Duration
	LoadWait           time.Duration
}

// NewRouter wires the HTTP handlers. Pages live below BasePath; the health
// check is always served at /healthz.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	health := HealthHandler{CatalogSource: deps.CatalogSource}
	if counter, ok := deps.Browsers.(interface{ Len() int }); ok {
		health.Browsers = counter
	}
	pages := PageHandler{Catalog: deps.Catalog}
	auth := AuthHandler{
		Limiter:           deps.Limiter,
		Forms:             newFormValidator(deps.SignupEmailDomains),
		RedirectURL:       deps.RedirectURL,
		RecoveryPollDelay: deps.RecoveryPollDelay,
	}
	browser := BrowserContext{
		Store:    deps.Cookies,
		Browsers: deps.Browsers,
		Base:     deps.BasePath,
		LoadWait: deps.LoadWait,
	}

	site := chi.NewRouter()
	site.Use(browser.Handler)
	site.Get("/", pages.Home)
	site.Get("/characters", pages.Characters)
	site.Get("/chapters", pages.Chapters)
	site.Get("/login", auth.LoginPage)
	site.Post("/login", auth.Login)
	site.Post("/logout", auth.SignOut)
	site.Get("/forgot-password", auth.ForgotPasswordPage)
	site.Post("/forgot-password", auth.ForgotPassword)
	site.Get("/update-password", auth.UpdatePasswordPage)
	site.Post("/update-password", auth.UpdatePassword)
	site.Post("/auth/link", auth.Link)
	site.NotFound(pages.NotFound)

	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(logger))
	r.Get("/healthz", health.Handle)
	if deps.BasePath == "" {
		r.Mount("/", site)
	} else {
		r.Mount(deps.BasePath, site)
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			http.Redirect(w, req, deps.BasePath+"/", http.StatusFound)
		})
	}
	return r
}
