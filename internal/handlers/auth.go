package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/johnmaccormick/mirDB/internal/auth"
	"github.com/johnmaccormick/mirDB/internal/backend"
	"github.com/johnmaccormick/mirDB/internal/logging"
	"github.com/johnmaccormick/mirDB/internal/recovery"
)

// Messages shown after successful account actions.
const (
	msgSignUpSent      = "Check your email for verification link."
	msgSignedIn        = "Sign in successful. Redirecting..."
	msgResetSent       = "Check your email for reset link."
	msgPasswordUpdated = "Password updated."
)

// knownRoutes are the pages a recovery link may return the visitor to.
var knownRoutes = map[string]bool{
	"/":                true,
	"/login":           true,
	"/forgot-password": true,
	"/update-password": true,
	"/characters":      true,
	"/chapters":        true,
}

// AuthHandler implements the sign-in, sign-up, sign-out and password pages.
type AuthHandler struct {
	Limiter           RateLimiter
	Forms             *formValidator
	RedirectURL       func(route string) string
	RecoveryPollDelay time.Duration
}

type loginData struct {
	SignUp bool
	Email  string
}

func (h AuthHandler) actions(r *http.Request) *auth.Actions {
	b := BrowserFromContext(r.Context())
	return auth.NewActions(b.Auth, b.Session, h.RedirectURL)
}

// LoginPage handles GET /login.
func (h AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if identity(ctx) != nil {
		redirect(w, r, "/")
		return
	}
	data := loginData{SignUp: r.URL.Query().Get("mode") == "signup"}
	render(ctx, w, http.StatusOK, "login", page{Title: "Sign In", Data: data})
}

// Login handles POST /login for both sign-in and sign-up.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if identity(ctx) != nil {
		redirect(w, r, "/")
		return
	}
	if err := r.ParseForm(); err != nil {
		logger.Warn("invalid login form", "error", err)
		render(ctx, w, http.StatusBadRequest, "login", page{Title: "Sign In", Error: msgInvalidForm, Data: loginData{}})
		return
	}

	data := loginData{SignUp: r.PostForm.Get("mode") == "signup"}
	if !allowRequest(h.Limiter, r, "login") {
		logger.Warn("login rate limited")
		render(ctx, w, http.StatusTooManyRequests, "login", page{Title: "Sign In", Error: msgTooManyAttempts, Data: data})
		return
	}

	if data.SignUp {
		h.signUp(w, r, data)
		return
	}

	var form credentialsForm
	if err := decodeForm(r, &form); err != nil {
		logger.Warn("invalid login form", "error", err)
		render(ctx, w, http.StatusBadRequest, "login", page{Title: "Sign In", Error: msgInvalidForm, Data: data})
		return
	}
	form.Email = strings.TrimSpace(form.Email)
	data.Email = form.Email
	if msg := h.Forms.validate(&form); msg != "" {
		render(ctx, w, http.StatusBadRequest, "login", page{Title: "Sign In", Error: msg, Data: data})
		return
	}

	result := h.actions(r).SignIn(ctx, form.Email, form.Password)
	if !result.OK() {
		render(ctx, w, http.StatusOK, "login", page{Title: "Sign In", Error: result.Error, Data: data})
		return
	}
	render(ctx, w, http.StatusOK, "login", page{
		Title:   "Sign In",
		Success: msgSignedIn,
		Refresh: basePath(ctx) + "/",
		Data:    data,
	})
}

func (h AuthHandler) signUp(w http.ResponseWriter, r *http.Request, data loginData) {
	ctx := r.Context()

	var form signUpForm
	if err := decodeForm(r, &form); err != nil {
		logging.FromContext(ctx).Warn("invalid sign up form", "error", err)
		render(ctx, w, http.StatusBadRequest, "login", page{Title: "Create Account", Error: msgInvalidForm, Data: data})
		return
	}
	form.Email = strings.TrimSpace(form.Email)
	data.Email = form.Email
	if msg := h.Forms.validate(&form); msg != "" {
		render(ctx, w, http.StatusBadRequest, "login", page{Title: "Create Account", Error: msg, Data: data})
		return
	}

	result := h.actions(r).SignUp(ctx, form.Email, form.Password)
	if !result.OK() {
		render(ctx, w, http.StatusOK, "login", page{Title: "Create Account", Error: result.Error, Data: data})
		return
	}
	render(ctx, w, http.StatusOK, "login", page{Title: "Create Account", Success: msgSignUpSent, Data: data})
}

// SignOut handles POST /logout.
func (h AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	result := h.actions(r).SignOut(ctx)
	if !result.OK() {
		render(ctx, w, http.StatusOK, "home", page{Error: result.Error})
		return
	}
	redirect(w, r, "/")
}

// ForgotPasswordPage handles GET /forgot-password.
func (h AuthHandler) ForgotPasswordPage(w http.ResponseWriter, r *http.Request) {
	render(r.Context(), w, http.StatusOK, "forgot_password", page{Title: "Reset password", Data: ""})
}

// ForgotPassword handles POST /forgot-password.
func (h AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var form emailForm
	if err := decodeForm(r, &form); err != nil {
		logging.FromContext(ctx).Warn("invalid reset form", "error", err)
		render(ctx, w, http.StatusBadRequest, "forgot_password", page{Title: "Reset password", Error: msgInvalidForm, Data: ""})
		return
	}
	form.Email = strings.TrimSpace(form.Email)
	p := page{Title: "Reset password", Data: form.Email}

	if !allowRequest(h.Limiter, r, "reset") {
		p.Error = msgTooManyAttempts
		render(ctx, w, http.StatusTooManyRequests, "forgot_password", p)
		return
	}
	if msg := h.Forms.validate(&form); msg != "" {
		p.Error = msg
		render(ctx, w, http.StatusBadRequest, "forgot_password", p)
		return
	}

	result := h.actions(r).ResetPassword(ctx, form.Email)
	if !result.OK() {
		p.Error = result.Error
	} else {
		p.Success = msgResetSent
	}
	render(ctx, w, http.StatusOK, "forgot_password", p)
}

// UpdatePasswordPage handles GET /update-password. Without a pending recovery
// outcome the page posts its own URL fragment to /auth/link; with one, the form
// is enabled only when the link produced a session.
func (h AuthHandler) UpdatePasswordPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := page{Title: "Update password", Data: false}

	flash, ok := takeRecoveryFlash(w, r)
	switch {
	case !ok:
		p.AwaitLink = true
	case flash.Ready:
		p.Data = true
	default:
		p.Error = flash.Message
	}
	render(ctx, w, http.StatusOK, "update_password", p)
}

// UpdatePassword handles POST /update-password.
func (h AuthHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := page{Title: "Update password", Data: true}

	if identity(ctx) == nil {
		p.Data = false
		p.Error = backend.Message(backend.ErrNoSession)
		render(ctx, w, http.StatusUnauthorized, "update_password", p)
		return
	}
	if !allowRequest(h.Limiter, r, "update-password") {
		p.Error = msgTooManyAttempts
		render(ctx, w, http.StatusTooManyRequests, "update_password", p)
		return
	}

	var form newPasswordForm
	if err := decodeForm(r, &form); err != nil {
		logging.FromContext(ctx).Warn("invalid update password form", "error", err)
		p.Error = msgInvalidForm
		render(ctx, w, http.StatusBadRequest, "update_password", p)
		return
	}
	if msg := h.Forms.validate(&form); msg != "" {
		p.Error = msg
		render(ctx, w, http.StatusBadRequest, "update_password", p)
		return
	}

	result := h.actions(r).UpdatePassword(ctx, form.Password)
	if !result.OK() {
		p.Error = result.Error
	} else {
		p.Success = msgPasswordUpdated
	}
	render(ctx, w, http.StatusOK, "update_password", p)
}

// Link handles POST /auth/link: the page script posts location.hash here
// because fragments never reach the server. The recovery outcome is handed to
// the update-password page as a flash.
func (h AuthHandler) Link(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var form linkForm
	if err := decodeForm(r, &form); err != nil {
		logger.Warn("invalid link form", "error", err)
		renderError(ctx, w, http.StatusBadRequest, msgInvalidForm)
		return
	}
	if msg := h.Forms.validate(&form); msg != "" {
		renderError(ctx, w, http.StatusBadRequest, msg)
		return
	}
	if !allowRequest(h.Limiter, r, "link") {
		renderError(ctx, w, http.StatusTooManyRequests, msgTooManyAttempts)
		return
	}

	b := BrowserFromContext(ctx)
	handler := recovery.NewHandler(b.Auth, h.RecoveryPollDelay)
	outcome, err := handler.Run(ctx, form.Fragment)
	if err != nil {
		// Cancellation and shutdown errors say nothing useful to the visitor.
		logger.Warn("recovery link interrupted", "state", outcome.State.String(), "error", err)
		outcome = recovery.Outcome{State: recovery.Failed, Message: recovery.MsgNoValidToken}
	}
	logger.Info("recovery link processed", "state", outcome.State.String())

	target := "/update-password"
	if link, ok := recovery.ParseFragment(form.Fragment); ok && outcome.State == recovery.Ready && knownRoutes[link.Route] {
		target = link.Route
	}
	if target == "/update-password" {
		flash := recoveryFlash{Ready: outcome.State == recovery.Ready, Message: outcome.Message}
		if err := addRecoveryFlash(w, r, flash); err != nil {
			logger.Error("failed to store recovery outcome", "error", err)
			renderError(ctx, w, http.StatusInternalServerError, "Unable to store the reset link result.")
			return
		}
	}
	redirect(w, r, target)
}
