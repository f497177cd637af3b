// ABOUTME: Tests for the OAuth provider and token storage
// ABOUTME: Drives the loopback sign-in flow against a fake token endpoint
package sync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
)

func newTokenServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		body := map[string]any{"token_type": "Bearer", "expires_in": 3600}
		switch r.Form.Get("grant_type") {
		case "authorization_code":
			if r.Form.Get("code") != "good-code" {
				http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
				return
			}
			body["access_token"] = "access-1"
			body["refresh_token"] = "refresh-1"
			body["scope"] = CapabilityCalendarRead
		case "refresh_token":
			body["access_token"] = "access-2"
			body["scope"] = CapabilityCalendarRead + " " + CapabilityCalendarWrite
		default:
			http.Error(w, `{"error":"unsupported_grant_type"}`, http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testOAuthConfig(t *testing.T, tokenServer *httptest.Server) OAuthConfig {
	t.Helper()
	return OAuthConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		CallbackAddr: "127.0.0.1:0",
		TokenPath:    filepath.Join(t.TempDir(), "token.json"),
		Endpoint: oauth2.Endpoint{
			AuthURL:  tokenServer.URL + "/auth",
			TokenURL: tokenServer.URL + "/token",
		},
	}
}

// browserReply returns a prompt that follows the consent URL back to the
// redirect URI with the given query values, like a browser would.
func browserReply(t *testing.T, values url.Values) func(string) error {
	return func(authURL string) error {
		parsed, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		q := parsed.Query()
		values.Set("state", q.Get("state"))

		resp, err := http.Get(q.Get("redirect_uri") + "?" + values.Encode())
		if err != nil {
			return err
		}
		return resp.Body.Close()
	}
}

func TestNewOAuthConfigDefaults(t *testing.T) {
	config := NewOAuthConfig(OAuthConfig{ClientID: "id", ClientSecret: "secret", CallbackAddr: "127.0.0.1:8080"}, CapabilityCalendarRead)

	assert.Equal(t, "http://127.0.0.1:8080/oauth/callback", config.RedirectURL)
	assert.Equal(t, []string{CapabilityCalendarRead}, config.Scopes)
	assert.Contains(t, config.Endpoint.AuthURL, "accounts.google.com")
}

func TestTokenPathXDG(t *testing.T) {
	path := TokenPath()

	assert.True(t, strings.HasPrefix(path, filepath.Join(xdg.DataHome, "daybook")), path)
	assert.Equal(t, "google-credentials.json", filepath.Base(path))
}

func TestSaveAndLoadToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	token := &oauth2.Token{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour).Round(time.Second)}

	require.NoError(t, SaveToken(path, token, []string{CapabilityCalendarRead}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, scopes, err := LoadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "a", loaded.AccessToken)
	assert.Equal(t, "r", loaded.RefreshToken)
	assert.True(t, token.Expiry.Equal(loaded.Expiry))
	assert.Equal(t, []string{CapabilityCalendarRead}, scopes)
}

func TestScopeSatisfies(t *testing.T) {
	assert.True(t, ScopeSatisfies([]string{CapabilityCalendarRead}, CapabilityCalendarRead))
	assert.False(t, ScopeSatisfies([]string{CapabilityCalendarRead}, CapabilityCalendarWrite))
	assert.True(t, ScopeSatisfies([]string{calendar.CalendarScope}, CapabilityCalendarWrite))
	assert.False(t, ScopeSatisfies(nil, CapabilityCalendarRead))
}

func TestOAuthProviderNotConfigured(t *testing.T) {
	p := NewOAuthProvider(OAuthConfig{}, nil, nil)

	assert.False(t, p.IsConfigured())
	assert.ErrorIs(t, p.Initialize(context.Background()), ErrConfigurationMissing)

	_, err := p.SignIn(context.Background(), CapabilityCalendarRead)
	assert.ErrorIs(t, err, ErrConfigurationMissing)
}

func TestOAuthProviderSignIn(t *testing.T) {
	cfg := testOAuthConfig(t, newTokenServer(t))
	p := NewOAuthProvider(cfg, browserReply(t, url.Values{"code": {"good-code"}}), nil)

	grant, err := p.SignIn(context.Background(), CapabilityCalendarRead)
	require.NoError(t, err)

	assert.Equal(t, "access-1", grant.AccessToken)
	assert.Equal(t, []string{CapabilityCalendarRead}, grant.GrantedScopes)
	assert.False(t, grant.ConnectedAt.IsZero())
	assert.Equal(t, grant, p.State())

	saved, scopes, err := LoadToken(cfg.TokenPath)
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", saved.RefreshToken)
	assert.Equal(t, []string{CapabilityCalendarRead}, scopes)
}

func TestOAuthProviderAccessDenied(t *testing.T) {
	cfg := testOAuthConfig(t, newTokenServer(t))
	p := NewOAuthProvider(cfg, browserReply(t, url.Values{"error": {"access_denied"}}), nil)

	_, err := p.SignIn(context.Background(), CapabilityCalendarRead)
	require.Error(t, err)
	assert.True(t, IsUserCancelled(err))
	assert.Empty(t, p.State().AccessToken)
}

func TestOAuthProviderBadCode(t *testing.T) {
	cfg := testOAuthConfig(t, newTokenServer(t))
	p := NewOAuthProvider(cfg, browserReply(t, url.Values{"code": {"bad-code"}}), nil)

	_, err := p.SignIn(context.Background(), CapabilityCalendarRead)
	require.Error(t, err)
	assert.False(t, IsUserCancelled(err))
	assert.Contains(t, err.Error(), "failed to exchange code")
}

func TestOAuthProviderPromptAbandoned(t *testing.T) {
	cfg := testOAuthConfig(t, newTokenServer(t))
	p := NewOAuthProvider(cfg, func(string) error { return nil }, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := p.SignIn(ctx, CapabilityCalendarRead)
	require.Error(t, err)
	assert.True(t, IsUserCancelled(err))
}

func TestOAuthProviderInitializeLoadsSavedToken(t *testing.T) {
	cfg := testOAuthConfig(t, newTokenServer(t))
	token := &oauth2.Token{AccessToken: "saved", RefreshToken: "r", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}
	require.NoError(t, SaveToken(cfg.TokenPath, token, []string{CapabilityCalendarRead}))

	p := NewOAuthProvider(cfg, nil, nil)
	require.NoError(t, p.Initialize(context.Background()))

	state := p.State()
	assert.Equal(t, "saved", state.AccessToken)
	assert.Equal(t, []string{CapabilityCalendarRead}, state.GrantedScopes)
}

func TestOAuthProviderRefresh(t *testing.T) {
	cfg := testOAuthConfig(t, newTokenServer(t))
	expired := &oauth2.Token{AccessToken: "old", RefreshToken: "refresh-1", TokenType: "Bearer", Expiry: time.Now().Add(-time.Hour)}
	require.NoError(t, SaveToken(cfg.TokenPath, expired, []string{CapabilityCalendarRead}))

	p := NewOAuthProvider(cfg, nil, nil)
	require.NoError(t, p.Initialize(context.Background()))

	grant, err := p.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-2", grant.AccessToken)
	assert.ElementsMatch(t, []string{CapabilityCalendarRead, CapabilityCalendarWrite}, grant.GrantedScopes)

	saved, _, err := LoadToken(cfg.TokenPath)
	require.NoError(t, err)
	assert.Equal(t, "access-2", saved.AccessToken)
}

func TestOAuthProviderRefreshWithoutToken(t *testing.T) {
	p := NewOAuthProvider(testOAuthConfig(t, newTokenServer(t)), nil, nil)

	_, err := p.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestOAuthProviderSignOut(t *testing.T) {
	cfg := testOAuthConfig(t, newTokenServer(t))
	require.NoError(t, SaveToken(cfg.TokenPath, &oauth2.Token{AccessToken: "x"}, nil))

	p := NewOAuthProvider(cfg, nil, nil)
	require.NoError(t, p.Initialize(context.Background()))
	require.NoError(t, p.SignOut(context.Background()))

	assert.Empty(t, p.State().AccessToken)
	_, err := os.Stat(cfg.TokenPath)
	assert.True(t, os.IsNotExist(err))
}
