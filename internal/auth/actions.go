// Package auth wraps the browser's auth client in the small set of user-facing
// account operations. Each operation reports failure as a display string only.
package auth

import (
	"context"
	"log/slog"

	"github.com/johnmaccormick/mirDB/internal/backend"
	"github.com/johnmaccormick/mirDB/internal/logging"
)

// Routes the backend sends users back to from emailed links.
const (
	SignUpRedirectRoute = "/"
	ResetRedirectRoute  = "/update-password"
)

// Result is the outcome of an action. An empty Error means success.
type Result struct {
	Error string
}

// OK reports whether the action succeeded.
func (r Result) OK() bool {
	return r.Error == ""
}

// Client is the auth surface the actions forward to.
type Client interface {
	SignInWithPassword(ctx context.Context, email, password string) (*backend.Session, error)
	SignUp(ctx context.Context, email, password, redirectTo string) (backend.Identity, error)
	SignOut(ctx context.Context) error
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	UpdateUser(ctx context.Context, password string) (backend.Identity, error)
}

// Clearer drops the locally cached identity.
type Clearer interface {
	Clear()
}

// Actions performs account operations for one browser.
type Actions struct {
	client   Client
	identity Clearer
	redirect func(route string) string
}

// NewActions binds the actions to a browser's client and cached identity.
// redirect turns an app route into the absolute URL placed in emailed links.
func NewActions(client Client, identity Clearer, redirect func(route string) string) *Actions {
	if client == nil || identity == nil || redirect == nil {
		panic("auth: client, identity and redirect must not be nil")
	}
	return &Actions{client: client, identity: identity, redirect: redirect}
}

// SignIn signs in with email and password.
func (a *Actions) SignIn(ctx context.Context, email, password string) Result {
	ctx, span := logging.StartSpan(ctx, "auth.sign_in")
	_, err := a.client.SignInWithPassword(ctx, email, password)
	span.EndErr(err)
	return a.result(ctx, "sign in", err)
}

// SignUp registers a new account. The confirmation email links back to the
// home route.
func (a *Actions) SignUp(ctx context.Context, email, password string) Result {
	ctx, span := logging.StartSpan(ctx, "auth.sign_up")
	_, err := a.client.SignUp(ctx, email, password, a.redirect(SignUpRedirectRoute))
	span.EndErr(err)
	return a.result(ctx, "sign up", err)
}

// SignOut ends the session and, on success, clears the cached identity at once
// rather than waiting for the change notification.
func (a *Actions) SignOut(ctx context.Context) Result {
	ctx, span := logging.StartSpan(ctx, "auth.sign_out")
	err := a.client.SignOut(ctx)
	span.EndErr(err)
	if err == nil {
		a.identity.Clear()
	}
	return a.result(ctx, "sign out", err)
}

// ResetPassword asks the backend to email a recovery link that opens the
// update-password page.
func (a *Actions) ResetPassword(ctx context.Context, email string) Result {
	ctx, span := logging.StartSpan(ctx, "auth.reset_password")
	err := a.client.ResetPasswordForEmail(ctx, email, a.redirect(ResetRedirectRoute))
	span.EndErr(err)
	return a.result(ctx, "reset password", err)
}

// UpdatePassword sets a new password for the signed-in user.
func (a *Actions) UpdatePassword(ctx context.Context, newPassword string) Result {
	ctx, span := logging.StartSpan(ctx, "auth.update_password")
	_, err := a.client.UpdateUser(ctx, newPassword)
	span.EndErr(err)
	return a.result(ctx, "update password", err)
}

func (a *Actions) result(ctx context.Context, action string, err error) Result {
	logger := logging.FromContext(ctx)
	if err != nil {
		logger.Info("auth action failed", slog.String("action", action), slog.String("error", err.Error()))
		return Result{Error: backend.Message(err)}
	}
	logger.Info("auth action succeeded", slog.String("action", action))
	return Result{}
}
