package backend

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthService is the stateless auth API surface AuthClient builds on.
type AuthService interface {
	PasswordGrant(ctx context.Context, email, password string) (Session, error)
	RefreshGrant(ctx context.Context, refreshToken string) (Session, error)
	SignUp(ctx context.Context, email, password, redirectTo string) (*Session, Identity, error)
	Logout(ctx context.Context, accessToken string) error
	User(ctx context.Context, accessToken string) (Identity, error)
	UpdatePassword(ctx context.Context, accessToken, password string) (Identity, error)
	Recover(ctx context.Context, email, redirectTo string) error
}

// Subscription is the handle returned by OnAuthStateChange.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// NewSubscription wraps cancel so that it runs at most once.
func NewSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

// Unsubscribe stops delivery to the listener. Calling it more than once is a no-op.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// AuthClient holds the session of one browser and notifies listeners when it
// changes. It is the in-process counterpart of the hosted auth store: the token
// pair lives here and nowhere else.
type AuthClient struct {
	api AuthService
	now func() time.Time

	mu        sync.Mutex
	session   *Session
	listeners map[uint64]AuthListener
	nextID    uint64
}

// NewAuthClient returns a client with no session.
func NewAuthClient(api AuthService) *AuthClient {
	if api == nil {
		panic("backend: auth service must not be nil")
	}
	return &AuthClient{
		api:       api,
		now:       time.Now,
		listeners: make(map[uint64]AuthListener),
	}
}

// OnAuthStateChange registers listener for every future auth state change.
func (c *AuthClient) OnAuthStateChange(listener AuthListener) *Subscription {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = listener
	c.mu.Unlock()

	return NewSubscription(func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	})
}

// GetSession returns the current session, refreshing it first when the access
// token has lapsed. It returns nil without error when nobody is signed in.
func (c *AuthClient) GetSession(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	current := c.session.clone()
	c.mu.Unlock()

	if current == nil {
		return nil, nil
	}
	if !current.Expired(c.now()) {
		return current, nil
	}

	refreshed, err := c.api.RefreshGrant(ctx, current.RefreshToken)
	if err != nil {
		c.replace(nil, EventSignedOut)
		return nil, err
	}
	if refreshed.User.ID == "" {
		refreshed.User = current.User
	}
	c.replace(&refreshed, EventTokenRefreshed)
	return refreshed.clone(), nil
}

// SignInWithPassword signs in and stores the resulting session.
func (c *AuthClient) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	s, err := c.api.PasswordGrant(ctx, email, password)
	if err != nil {
		return nil, err
	}
	c.replace(&s, EventSignedIn)
	return s.clone(), nil
}

// SignUp registers a user; the session is stored only when the backend issued one.
func (c *AuthClient) SignUp(ctx context.Context, email, password, redirectTo string) (Identity, error) {
	s, user, err := c.api.SignUp(ctx, email, password, redirectTo)
	if err != nil {
		return Identity{}, err
	}
	if s != nil {
		c.replace(s, EventSignedIn)
	}
	return user, nil
}

// SignOut revokes the current session. The local session is dropped only when
// the backend accepted the logout or when no session existed.
func (c *AuthClient) SignOut(ctx context.Context) error {
	c.mu.Lock()
	current := c.session.clone()
	c.mu.Unlock()

	if current != nil {
		if err := c.api.Logout(ctx, current.AccessToken); err != nil {
			var apiErr *APIError
			// An already revoked token still means the user is signed out.
			if !errors.As(err, &apiErr) || apiErr.Status != 401 && apiErr.Status != 404 {
				return err
			}
		}
	}
	c.replace(nil, EventSignedOut)
	return nil
}

// SetSession establishes a session from a token pair obtained out of band, such
// as a recovery link. An expired access token is exchanged using the refresh token.
func (c *AuthClient) SetSession(ctx context.Context, accessToken, refreshToken string) (*Session, error) {
	if accessToken == "" || refreshToken == "" {
		return nil, ErrNoSession
	}

	expiresAt, hasExpiry := tokenExpiry(accessToken)
	if hasExpiry && !expiresAt.After(c.now().Add(expiryMargin)) {
		refreshed, err := c.api.RefreshGrant(ctx, refreshToken)
		if err != nil {
			return nil, err
		}
		c.replace(&refreshed, EventTokenRefreshed)
		return refreshed.clone(), nil
	}

	user, err := c.api.User(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	s := Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresAt:    expiresAt,
		User:         user,
	}
	c.replace(&s, EventSignedIn)
	return s.clone(), nil
}

// ResetPasswordForEmail asks the backend to send a recovery link.
func (c *AuthClient) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	return c.api.Recover(ctx, email, redirectTo)
}

// UpdateUser sets a new password for the signed-in user.
func (c *AuthClient) UpdateUser(ctx context.Context, password string) (Identity, error) {
	current, err := c.GetSession(ctx)
	if err != nil {
		return Identity{}, err
	}
	if current == nil {
		return Identity{}, ErrNoSession
	}

	user, err := c.api.UpdatePassword(ctx, current.AccessToken, password)
	if err != nil {
		return Identity{}, err
	}

	c.mu.Lock()
	if c.session != nil && c.session.AccessToken == current.AccessToken {
		c.session.User = user
	}
	updated := c.session.clone()
	c.mu.Unlock()

	c.emit(EventUserUpdated, updated)
	return user, nil
}

func (c *AuthClient) replace(s *Session, event AuthEvent) {
	c.mu.Lock()
	c.session = s.clone()
	snapshot := c.session.clone()
	c.mu.Unlock()

	c.emit(event, snapshot)
}

// emit runs listeners outside the lock so they may call back into the client.
func (c *AuthClient) emit(event AuthEvent, s *Session) {
	c.mu.Lock()
	listeners := make([]AuthListener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()

	for _, l := range listeners {
		l(event, s.clone())
	}
}

// tokenExpiry reads the exp claim without verifying the signature; the backend
// verifies the token on every call.
func tokenExpiry(accessToken string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time.UTC(), true
}
