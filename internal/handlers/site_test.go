package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/johnmaccormick/mirDB/internal/backend"
	"github.com/johnmaccormick/mirDB/internal/catalog"
	"github.com/johnmaccormick/mirDB/internal/session"
)

const (
	testEmail       = "reader@dickinson.edu"
	testMaxBrowsers = 8
)

type fakeAuthService struct {
	mu         sync.Mutex
	passwords  map[string]string
	signUps    []string
	recoveries []string
	updates    []string
	logoutErr  error
}

func newFakeAuthService() *fakeAuthService {
	return &fakeAuthService{passwords: map[string]string{testEmail: "secret1"}}
}

func (f *fakeAuthService) PasswordGrant(_ context.Context, email, password string) (backend.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if want, ok := f.passwords[email]; !ok || want != password {
		return backend.Session{}, &backend.APIError{Status: 400, Code: "invalid_credentials", Message: "Invalid login credentials"}
	}
	return backend.Session{
		AccessToken:  "access-" + email,
		RefreshToken: "refresh-" + email,
		User:         backend.Identity{ID: "user-1", Email: email},
	}, nil
}

func (f *fakeAuthService) RefreshGrant(context.Context, string) (backend.Session, error) {
	return backend.Session{}, &backend.APIError{Status: 400, Message: "Invalid Refresh Token"}
}

func (f *fakeAuthService) SignUp(_ context.Context, email, _, redirectTo string) (*backend.Session, backend.Identity, error) {
	f.mu.Lock()
	f.signUps = append(f.signUps, email+" "+redirectTo)
	f.mu.Unlock()
	return nil, backend.Identity{ID: "user-2", Email: email}, nil
}

func (f *fakeAuthService) Logout(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logoutErr
}

func (f *fakeAuthService) User(_ context.Context, accessToken string) (backend.Identity, error) {
	if accessToken == "expired" {
		return backend.Identity{}, &backend.APIError{Status: 401, Message: "invalid JWT"}
	}
	return backend.Identity{ID: "user-1", Email: testEmail}, nil
}

func (f *fakeAuthService) UpdatePassword(_ context.Context, _, password string) (backend.Identity, error) {
	f.mu.Lock()
	f.updates = append(f.updates, password)
	f.mu.Unlock()
	return backend.Identity{ID: "user-1", Email: testEmail}, nil
}

func (f *fakeAuthService) Recover(_ context.Context, email, redirectTo string) error {
	f.mu.Lock()
	f.recoveries = append(f.recoveries, email+" "+redirectTo)
	f.mu.Unlock()
	return nil
}

func (f *fakeAuthService) setLogoutErr(err error) {
	f.mu.Lock()
	f.logoutErr = err
	f.mu.Unlock()
}

func (f *fakeAuthService) calls() (signUps, recoveries, updates []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.signUps...), append([]string(nil), f.recoveries...), append([]string(nil), f.updates...)
}

type fakeCatalog struct {
	mu         sync.Mutex
	characters catalog.View[catalog.Character]
	chapters   catalog.View[catalog.Chapter]
	tokens     []string
}

func (c *fakeCatalog) Characters(ctx context.Context) catalog.View[catalog.Character] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = append(c.tokens, backend.AccessTokenFromContext(ctx))
	return c.characters
}

func (c *fakeCatalog) Chapters(ctx context.Context) catalog.View[catalog.Chapter] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = append(c.tokens, backend.AccessTokenFromContext(ctx))
	return c.chapters
}

func (c *fakeCatalog) setCharacters(v catalog.View[catalog.Character]) {
	c.mu.Lock()
	c.characters = v
	c.mu.Unlock()
}

func (c *fakeCatalog) setChapters(v catalog.View[catalog.Chapter]) {
	c.mu.Lock()
	c.chapters = v
	c.mu.Unlock()
}

// lastToken is the access token the most recent catalog read was scoped to.
func (c *fakeCatalog) lastToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.tokens) == 0 {
		return ""
	}
	return c.tokens[len(c.tokens)-1]
}

type denyAll struct{}

func (denyAll) Allow(string) bool { return false }

// testSite is a running router with a cookie-keeping client that does not
// follow redirects.
type testSite struct {
	server  *httptest.Server
	client  *http.Client
	auth    *fakeAuthService
	catalog *fakeCatalog
	base    string
}

func newTestSite(t *testing.T, configure ...func(*Dependencies)) *testSite {
	t.Helper()

	api := newFakeAuthService()
	registry := session.NewRegistry(func() *backend.AuthClient { return backend.NewAuthClient(api) }, time.Hour, testMaxBrowsers)
	t.Cleanup(registry.Close)

	cat := &fakeCatalog{
		characters: catalog.View[catalog.Character]{EmptyMessage: catalog.NoCharacters},
		chapters:   catalog.View[catalog.Chapter]{EmptyMessage: catalog.NoChapters},
	}

	deps := Dependencies{
		Logger:             slog.New(slog.NewTextHandler(io.Discard, nil)),
		Browsers:           registry,
		Catalog:            cat,
		CatalogSource:      "rest",
		SignupEmailDomains: []string{"dickinson.edu", "arawatabill.org"},
		RedirectURL:        func(route string) string { return "https://example.org/#" + route },
		RecoveryPollDelay:  10 * time.Millisecond,
		LoadWait:           time.Second,
	}
	for _, fn := range configure {
		fn(&deps)
	}

	cookies, err := NewCookieStore("test-secret", deps.BasePath, false, time.Hour)
	require.NoError(t, err)
	deps.Cookies = cookies

	server := httptest.NewServer(NewRouter(deps))
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &testSite{server: server, client: client, auth: api, catalog: cat, base: deps.BasePath}
}

func (s *testSite) do(t *testing.T, req *http.Request) (*http.Response, string) {
	t.Helper()
	resp, err := s.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func (s *testSite) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, s.server.URL+path, nil)
	require.NoError(t, err)
	return s.do(t, req)
}

func (s *testSite) post(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, s.server.URL+path, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(t, req)
}

func (s *testSite) signIn(t *testing.T) {
	t.Helper()
	resp, body := s.post(t, s.base+"/login", url.Values{
		"mode":     {"signin"},
		"email":    {testEmail},
		"password": {"secret1"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, msgSignedIn)
}
