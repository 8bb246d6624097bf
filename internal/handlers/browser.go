package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"golang.org/x/crypto/hkdf"

	"github.com/johnmaccormick/mirDB/internal/backend"
	"github.com/johnmaccormick/mirDB/internal/logging"
	"github.com/johnmaccormick/mirDB/internal/session"
)

const (
	cookieName       = "mirdb"
	browserIDKey     = "browser_id"
	recoveryFlashKey = "recovery"

	defaultLoadWait = 3 * time.Second

	msgStillLoading = "Still loading your session. Please go back and try again."
)

// recoveryFlash carries a recovery link outcome across the redirect that
// follows POST /auth/link.
type recoveryFlash struct {
	Ready   bool
	Message string
}

func init() {
	gob.Register(recoveryFlash{})
}

// NewCookieStore returns a cookie store whose signing and encryption keys are
// both derived from secret.
func NewCookieStore(secret string, path string, secure bool, maxAge time.Duration) (*sessions.CookieStore, error) {
	if secret == "" {
		return nil, errors.New("cookie secret must not be empty")
	}
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("mirdb cookie keys"))
	hashKey := make([]byte, 32)
	blockKey := make([]byte, 32)
	if _, err := io.ReadFull(kdf, hashKey); err != nil {
		return nil, fmt.Errorf("derive hash key: %w", err)
	}
	if _, err := io.ReadFull(kdf, blockKey); err != nil {
		return nil, fmt.Errorf("derive block key: %w", err)
	}

	if path == "" {
		path = "/"
	}
	store := sessions.NewCookieStore(hashKey, blockKey)
	store.Options = &sessions.Options{
		Path:     path,
		MaxAge:   int(maxAge / time.Second),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store, nil
}

type ctxKey int

const (
	browserCtxKey ctxKey = iota
	cookieCtxKey
	baseCtxKey
)

// BrowserFromContext returns the browser resolved by BrowserContext.
func BrowserFromContext(ctx context.Context) *session.Browser {
	b, _ := ctx.Value(browserCtxKey).(*session.Browser)
	return b
}

func cookieFromContext(ctx context.Context) *sessions.Session {
	s, _ := ctx.Value(cookieCtxKey).(*sessions.Session)
	return s
}

func basePath(ctx context.Context) string {
	base, _ := ctx.Value(baseCtxKey).(string)
	return base
}

// BrowserContext resolves the visitor's browser from the cookie, creating both
// on first sight, and waits briefly for its identity to load.
type BrowserContext struct {
	Store    sessions.Store
	Browsers Browsers
	Base     string
	LoadWait time.Duration
}

// Handler wraps next with browser resolution.
func (m BrowserContext) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), baseCtxKey, m.Base)
		logger := logging.FromContext(ctx)

		cookie, err := m.Store.Get(r, cookieName)
		if err != nil {
			// A cookie signed with an old secret decodes to a fresh session.
			logger.Info("discarding unreadable cookie", "error", err)
		}
		if cookie == nil {
			cookie = sessions.NewSession(m.Store, cookieName)
		}

		id, _ := cookie.Values[browserIDKey].(string)
		if id == "" {
			id = uuid.NewString()
			cookie.Values[browserIDKey] = id
			if err := cookie.Save(r, w); err != nil {
				logger.Error("failed to save cookie", "error", err)
				renderError(ctx, w, http.StatusInternalServerError, "Unable to start a session.")
				return
			}
		}

		browser := m.Browsers.Get(ctx, id)
		ctx = context.WithValue(ctx, browserCtxKey, browser)
		ctx = context.WithValue(ctx, cookieCtxKey, cookie)

		wait := m.LoadWait
		if wait <= 0 {
			wait = defaultLoadWait
		}
		waitCtx, cancel := context.WithTimeout(ctx, wait)
		err = browser.Session.Wait(waitCtx)
		cancel()
		if err != nil {
			logger.Warn("identity still loading", "method", r.Method, "error", err)
			// A refresh would resend a form as a GET and lose it.
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				w.Header().Set("Retry-After", "1")
				renderError(ctx, w, http.StatusServiceUnavailable, msgStillLoading)
				return
			}
			render(ctx, w, http.StatusOK, "loading", page{Title: "Loading", Refresh: r.URL.RequestURI()})
			return
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// identity returns the cached identity of the request's browser.
func identity(ctx context.Context) *backend.Identity {
	b := BrowserFromContext(ctx)
	if b == nil {
		return nil
	}
	id, _ := b.Session.Identity()
	return id
}

// withAccessToken scopes catalog reads to the signed-in user's row-level
// security policies.
func withAccessToken(ctx context.Context) context.Context {
	b := BrowserFromContext(ctx)
	if b == nil {
		return ctx
	}
	s, err := b.Auth.GetSession(ctx)
	if err != nil {
		logging.FromContext(ctx).Warn("session lookup failed", "error", err)
		return ctx
	}
	if s == nil {
		return ctx
	}
	return backend.WithAccessToken(ctx, s.AccessToken)
}

func addRecoveryFlash(w http.ResponseWriter, r *http.Request, flash recoveryFlash) error {
	cookie := cookieFromContext(r.Context())
	if cookie == nil {
		return errors.New("no cookie session on request")
	}
	cookie.AddFlash(flash, recoveryFlashKey)
	return cookie.Save(r, w)
}

// takeRecoveryFlash pops the pending recovery outcome, if any.
func takeRecoveryFlash(w http.ResponseWriter, r *http.Request) (recoveryFlash, bool) {
	cookie := cookieFromContext(r.Context())
	if cookie == nil {
		return recoveryFlash{}, false
	}
	flashes := cookie.Flashes(recoveryFlashKey)
	if len(flashes) == 0 {
		return recoveryFlash{}, false
	}
	if err := cookie.Save(r, w); err != nil {
		logging.FromContext(r.Context()).Warn("failed to clear flash", "error", err)
	}
	flash, ok := flashes[len(flashes)-1].(recoveryFlash)
	return flash, ok
}
