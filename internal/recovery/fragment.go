// Package recovery turns an emailed auth link into an established session.
//
// Links produced by the auth backend for a hash-routed page carry two '#'
// delimiters: the first introduces the page route, the second a query-encoded
// parameter block, e.g.
//
//	#/update-password#access_token=...&refresh_token=...&type=recovery
package recovery

import (
	"net/url"
	"strings"
)

// Link is the parsed content of a recovery link fragment.
type Link struct {
	Route        string
	AccessToken  string
	RefreshToken string
	TokenType    string
	Type         string
}

// HasTokenPair reports whether both halves of the credential pair are present.
func (l Link) HasTokenPair() bool {
	return l.AccessToken != "" && l.RefreshToken != ""
}

// IsRecovery reports whether the link carries the recovery marker.
func (l Link) IsRecovery() bool {
	return l.Type == "recovery"
}

// ParseFragment parses a raw location.hash value. The boolean is false when the
// fragment has no parameter block, i.e. no second '#'.
func ParseFragment(fragment string) (Link, bool) {
	rest := strings.TrimPrefix(fragment, "#")
	idx := strings.IndexByte(rest, '#')
	if idx < 0 {
		return Link{}, false
	}

	link := Link{Route: rest[:idx]}
	// ParseQuery keeps every pair it could decode; a malformed block simply
	// lacks tokens.
	params, _ := url.ParseQuery(rest[idx+1:])
	link.AccessToken = params.Get("access_token")
	link.RefreshToken = params.Get("refresh_token")
	link.TokenType = params.Get("token_type")
	link.Type = params.Get("type")
	return link, true
}
