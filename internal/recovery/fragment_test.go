package recovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFragment(t *testing.T) {
	tests := []struct {
		name     string
		fragment string
		want     Link
		ok       bool
	}{
		{name: "empty", fragment: "", ok: false},
		{name: "route only", fragment: "#/update-password", ok: false},
		{
			name:     "recovery link",
			fragment: "#/update-password#access_token=a.b.c&refresh_token=r1&token_type=bearer&type=recovery",
			want: Link{
				Route:        "/update-password",
				AccessToken:  "a.b.c",
				RefreshToken: "r1",
				TokenType:    "bearer",
				Type:         "recovery",
			},
			ok: true,
		},
		{
			name:     "without leading hash",
			fragment: "/#access_token=x&refresh_token=y",
			want:     Link{Route: "/", AccessToken: "x", RefreshToken: "y"},
			ok:       true,
		},
		{
			name:     "percent encoded values",
			fragment: "#/update-password#access_token=a%2Bb&refresh_token=c%3Dd",
			want:     Link{Route: "/update-password", AccessToken: "a+b", RefreshToken: "c=d"},
			ok:       true,
		},
		{
			name:     "malformed pair is skipped",
			fragment: "#/update-password#bad=%zz&type=recovery",
			want:     Link{Route: "/update-password", Type: "recovery"},
			ok:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseFragment(tt.fragment)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLinkPredicates(t *testing.T) {
	assert.True(t, Link{AccessToken: "a", RefreshToken: "r"}.HasTokenPair())
	assert.False(t, Link{AccessToken: "a"}.HasTokenPair())
	assert.True(t, Link{Type: "recovery"}.IsRecovery())
	assert.False(t, Link{Type: "signup"}.IsRecovery())
}
