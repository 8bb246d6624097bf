// Package backend is the client side of the hosted auth and table APIs MirDB
// runs against. It speaks the GoTrue and PostgREST wire protocols and, for
// local development, can read the same tables straight from Postgres.
package backend

import "time"

// Identity is the minimal representation of the signed-in user.
type Identity struct {
	ID    string
	Email string
}

// Session is the credential pair issued by the auth API together with the
// identity it belongs to. Token values are opaque and must never be logged.
type Session struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresAt    time.Time
	User         Identity
}

// expiryMargin refreshes slightly before the access token actually lapses.
const expiryMargin = 10 * time.Second

// Expired reports whether the access token should be refreshed before use.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(expiryMargin).Before(s.ExpiresAt)
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// AuthEvent names a change of authentication state.
type AuthEvent string

const (
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
	EventUserUpdated    AuthEvent = "USER_UPDATED"
)

// AuthListener receives auth state changes. The session is nil after sign-out.
type AuthListener func(event AuthEvent, session *Session)

// Row is one record returned by a select: column name to scalar, nil, or a
// nested map for an embedded relation.
type Row map[string]any
