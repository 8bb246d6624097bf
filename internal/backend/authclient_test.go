package backend

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuthService struct {
	mu sync.Mutex

	grant      Session
	grantErr   error
	refresh    Session
	refreshErr error
	user       Identity
	userErr    error
	logoutErr  error
	updateErr  error

	refreshCalls int
	logoutCalls  int
	lastRedirect string
}

func (f *fakeAuthService) PasswordGrant(context.Context, string, string) (Session, error) {
	return f.grant, f.grantErr
}

func (f *fakeAuthService) RefreshGrant(context.Context, string) (Session, error) {
	f.mu.Lock()
	f.refreshCalls++
	f.mu.Unlock()
	return f.refresh, f.refreshErr
}

func (f *fakeAuthService) SignUp(_ context.Context, email, _, redirectTo string) (*Session, Identity, error) {
	f.lastRedirect = redirectTo
	return nil, Identity{ID: "new", Email: email}, nil
}

func (f *fakeAuthService) Logout(context.Context, string) error {
	f.logoutCalls++
	return f.logoutErr
}

func (f *fakeAuthService) User(context.Context, string) (Identity, error) {
	return f.user, f.userErr
}

func (f *fakeAuthService) UpdatePassword(context.Context, string, string) (Identity, error) {
	return f.user, f.updateErr
}

func (f *fakeAuthService) Recover(_ context.Context, _, redirectTo string) error {
	f.lastRedirect = redirectTo
	return nil
}

type recordedEvent struct {
	event   AuthEvent
	session *Session
}

func record(c *AuthClient) (*[]recordedEvent, *Subscription) {
	var events []recordedEvent
	sub := c.OnAuthStateChange(func(e AuthEvent, s *Session) {
		events = append(events, recordedEvent{e, s})
	})
	return &events, sub
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestAuthClientSignInEmitsSignedIn(t *testing.T) {
	api := &fakeAuthService{grant: Session{AccessToken: "a", RefreshToken: "r", User: Identity{ID: "u", Email: "u@x.org"}}}
	client := NewAuthClient(api)
	events, _ := record(client)

	s, err := client.SignInWithPassword(context.Background(), "u@x.org", "pw")
	require.NoError(t, err)
	assert.Equal(t, "u@x.org", s.User.Email)

	require.Len(t, *events, 1)
	assert.Equal(t, EventSignedIn, (*events)[0].event)

	current, err := client.GetSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", current.AccessToken)
}

func TestAuthClientGetSessionRefreshesExpired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	api := &fakeAuthService{
		grant:   Session{AccessToken: "old", RefreshToken: "r1", ExpiresAt: now.Add(5 * time.Second), User: Identity{ID: "u"}},
		refresh: Session{AccessToken: "new", RefreshToken: "r2", ExpiresAt: now.Add(time.Hour)},
	}
	client := NewAuthClient(api)
	client.now = func() time.Time { return now }
	_, err := client.SignInWithPassword(context.Background(), "u", "pw")
	require.NoError(t, err)
	events, _ := record(client)

	s, err := client.GetSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new", s.AccessToken)
	assert.Equal(t, "u", s.User.ID, "identity carried over when the refresh omits it")
	assert.Equal(t, 1, api.refreshCalls)
	require.Len(t, *events, 1)
	assert.Equal(t, EventTokenRefreshed, (*events)[0].event)
}

func TestAuthClientGetSessionRefreshFailureSignsOut(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	api := &fakeAuthService{
		grant:      Session{AccessToken: "old", RefreshToken: "r1", ExpiresAt: now},
		refreshErr: &APIError{Status: 400, Message: "Invalid Refresh Token"},
	}
	client := NewAuthClient(api)
	client.now = func() time.Time { return now }
	_, err := client.SignInWithPassword(context.Background(), "u", "pw")
	require.NoError(t, err)
	events, _ := record(client)

	s, err := client.GetSession(context.Background())
	require.Error(t, err)
	assert.Nil(t, s)
	require.Len(t, *events, 1)
	assert.Equal(t, EventSignedOut, (*events)[0].event)
	assert.Nil(t, (*events)[0].session)
}

func TestAuthClientUnsubscribeStopsDelivery(t *testing.T) {
	api := &fakeAuthService{grant: Session{AccessToken: "a", RefreshToken: "r"}}
	client := NewAuthClient(api)
	events, sub := record(client)

	sub.Unsubscribe()
	sub.Unsubscribe()

	_, err := client.SignInWithPassword(context.Background(), "u", "pw")
	require.NoError(t, err)
	assert.Empty(t, *events)
}

func TestAuthClientSetSessionValidToken(t *testing.T) {
	now := time.Now()
	api := &fakeAuthService{user: Identity{ID: "user-1", Email: "reader@dickinson.edu"}}
	client := NewAuthClient(api)
	events, _ := record(client)

	access := signedToken(t, now.Add(time.Hour))
	s, err := client.SetSession(context.Background(), access, "refresh")
	require.NoError(t, err)
	assert.Equal(t, "reader@dickinson.edu", s.User.Email)
	assert.Equal(t, 0, api.refreshCalls)
	require.Len(t, *events, 1)
	assert.Equal(t, EventSignedIn, (*events)[0].event)
}

func TestAuthClientSetSessionExpiredTokenRefreshes(t *testing.T) {
	now := time.Now()
	api := &fakeAuthService{refresh: Session{AccessToken: "fresh", RefreshToken: "r2", User: Identity{ID: "user-1"}}}
	client := NewAuthClient(api)

	s, err := client.SetSession(context.Background(), signedToken(t, now.Add(-time.Minute)), "refresh")
	require.NoError(t, err)
	assert.Equal(t, "fresh", s.AccessToken)
	assert.Equal(t, 1, api.refreshCalls)
}

func TestAuthClientSetSessionRejected(t *testing.T) {
	api := &fakeAuthService{userErr: &APIError{Status: 401, Message: "invalid JWT"}}
	client := NewAuthClient(api)

	_, err := client.SetSession(context.Background(), "not-a-jwt", "refresh")
	require.Error(t, err)
	assert.Equal(t, "invalid JWT", Message(err))

	s, err := client.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestAuthClientSignOut(t *testing.T) {
	api := &fakeAuthService{grant: Session{AccessToken: "a", RefreshToken: "r"}}
	client := NewAuthClient(api)
	_, err := client.SignInWithPassword(context.Background(), "u", "pw")
	require.NoError(t, err)

	api.logoutErr = errors.New("network down")
	require.Error(t, client.SignOut(context.Background()))
	s, _ := client.GetSession(context.Background())
	assert.NotNil(t, s, "failed logout keeps the session")

	api.logoutErr = &APIError{Status: 401, Message: "expired"}
	require.NoError(t, client.SignOut(context.Background()))
	s, _ = client.GetSession(context.Background())
	assert.Nil(t, s)
}

func TestAuthClientUpdateUserRequiresSession(t *testing.T) {
	client := NewAuthClient(&fakeAuthService{})
	_, err := client.UpdateUser(context.Background(), "new-password")
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Equal(t, "Auth session missing!", Message(err))
}
