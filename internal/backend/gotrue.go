package backend

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// AuthAPI is a stateless client for the GoTrue REST endpoints under /auth/v1.
type AuthAPI struct {
	t   transport
	now func() time.Time
}

// NewAuthAPI constructs an AuthAPI for the project at baseURL. A nil httpClient
// selects a default client with a ten second timeout.
func NewAuthAPI(baseURL, apiKey string, httpClient *http.Client) *AuthAPI {
	return &AuthAPI{t: newTransport(baseURL, apiKey, httpClient), now: time.Now}
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func (u userResponse) identity() Identity {
	return Identity{ID: u.ID, Email: u.Email}
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	ExpiresAt    int64        `json:"expires_at"`
	RefreshToken string       `json:"refresh_token"`
	User         userResponse `json:"user"`
}

func (r tokenResponse) session(now time.Time) Session {
	s := Session{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
		User:         r.User.identity(),
	}
	switch {
	case r.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(r.ExpiresAt, 0).UTC()
	case r.ExpiresIn > 0:
		s.ExpiresAt = now.Add(time.Duration(r.ExpiresIn) * time.Second).UTC()
	}
	return s
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// PasswordGrant signs in with an email and password.
func (a *AuthAPI) PasswordGrant(ctx context.Context, email, password string) (Session, error) {
	var resp tokenResponse
	err := a.t.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"password"}},
		body:   credentials{Email: email, Password: password},
	}, &resp)
	if err != nil {
		return Session{}, err
	}
	return resp.session(a.now()), nil
}

// RefreshGrant exchanges a refresh token for a new session.
func (a *AuthAPI) RefreshGrant(ctx context.Context, refreshToken string) (Session, error) {
	var resp tokenResponse
	err := a.t.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"refresh_token"}},
		body:   map[string]string{"refresh_token": refreshToken},
	}, &resp)
	if err != nil {
		return Session{}, err
	}
	return resp.session(a.now()), nil
}

// SignUp registers a user. When the project requires email confirmation the
// backend returns no session and the returned pointer is nil.
func (a *AuthAPI) SignUp(ctx context.Context, email, password, redirectTo string) (*Session, Identity, error) {
	var resp struct {
		tokenResponse
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	req := request{
		method: http.MethodPost,
		path:   "/auth/v1/signup",
		body:   credentials{Email: email, Password: password},
	}
	if redirectTo != "" {
		req.query = url.Values{"redirect_to": {redirectTo}}
	}
	if err := a.t.do(ctx, req, &resp); err != nil {
		return nil, Identity{}, err
	}

	if resp.AccessToken == "" {
		return nil, Identity{ID: resp.ID, Email: resp.Email}, nil
	}
	s := resp.session(a.now())
	return &s, s.User, nil
}

// Logout revokes the session the access token belongs to.
func (a *AuthAPI) Logout(ctx context.Context, accessToken string) error {
	return a.t.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/logout",
		bearer: accessToken,
	}, nil)
}

// User returns the identity the access token belongs to.
func (a *AuthAPI) User(ctx context.Context, accessToken string) (Identity, error) {
	var resp userResponse
	err := a.t.do(ctx, request{
		method: http.MethodGet,
		path:   "/auth/v1/user",
		bearer: accessToken,
	}, &resp)
	if err != nil {
		return Identity{}, err
	}
	return resp.identity(), nil
}

// UpdatePassword sets a new password for the user the access token belongs to.
func (a *AuthAPI) UpdatePassword(ctx context.Context, accessToken, password string) (Identity, error) {
	var resp userResponse
	err := a.t.do(ctx, request{
		method: http.MethodPut,
		path:   "/auth/v1/user",
		bearer: accessToken,
		body:   map[string]string{"password": password},
	}, &resp)
	if err != nil {
		return Identity{}, err
	}
	return resp.identity(), nil
}

// Recover asks the backend to email a password recovery link pointing at
// redirectTo.
func (a *AuthAPI) Recover(ctx context.Context, email, redirectTo string) error {
	req := request{
		method: http.MethodPost,
		path:   "/auth/v1/recover",
		body:   map[string]string{"email": email},
	}
	if redirectTo != "" {
		req.query = url.Values{"redirect_to": {redirectTo}}
	}
	return a.t.do(ctx, req, nil)
}
