// ABOUTME: OAuth configuration and token management for Google Calendar
// ABOUTME: Loopback sign-in flow, incremental scope grants, token storage at XDG paths, and silent refresh
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	gosync "sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"

	"github.com/harperreed/daybook/models"
)

// Capabilities are expressed as OAuth scopes.
const (
	CapabilityCalendarRead  = calendar.CalendarReadonlyScope
	CapabilityCalendarWrite = calendar.CalendarEventsScope
)

const callbackPath = "/oauth/callback"

// AuthProvider owns sign-in and token issuance.
type AuthProvider interface {
	IsConfigured() bool
	Initialize(ctx context.Context) error
	SignIn(ctx context.Context, capability string) (models.AuthState, error)
	RequestAdditionalScopes(ctx context.Context, capability string) (models.AuthState, error)
	// Refresh silently renews the held token without any user interaction.
	Refresh(ctx context.Context) (models.AuthState, error)
	State() models.AuthState
}

// SignOuter is implemented by providers that hold credentials beyond ConnectionState.
type SignOuter interface {
	SignOut(ctx context.Context) error
}

// ScopeSatisfies reports whether granted scopes cover capability.
// The full calendar scope covers everything.
func ScopeSatisfies(granted []string, capability string) bool {
	return slices.Contains(granted, capability) || slices.Contains(granted, calendar.CalendarScope)
}

// OAuthConfig holds Google OAuth client settings.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	// CallbackAddr is the loopback host:port the redirect server listens on.
	CallbackAddr string
	TokenPath    string
	Endpoint     oauth2.Endpoint
}

// NewOAuthConfig creates OAuth2 config for Google Calendar.
func NewOAuthConfig(cfg OAuthConfig, scopes ...string) *oauth2.Config {
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = google.Endpoint
	}
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  "http://" + cfg.CallbackAddr + callbackPath,
		Scopes:       scopes,
		Endpoint:     endpoint,
	}
}

// TokenPath returns XDG-compliant path for storing OAuth tokens.
func TokenPath() string {
	return filepath.Join(xdg.DataHome, "daybook", "google-credentials.json")
}

// storedToken is the on-disk token format; scopes ride along because
// oauth2.Token does not serialize its extra fields.
type storedToken struct {
	*oauth2.Token
	Scopes []string `json:"scopes,omitempty"`
}

// SaveToken saves OAuth token and its granted scopes to path.
func SaveToken(path string, token *oauth2.Token, scopes []string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	// Write token file with restricted permissions
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create token file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := json.NewEncoder(f).Encode(storedToken{Token: token, Scopes: scopes}); err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	return nil
}

// LoadToken loads OAuth token and its granted scopes from path.
func LoadToken(path string) (*oauth2.Token, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open token file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var stored storedToken
	if err := json.NewDecoder(f).Decode(&stored); err != nil {
		return nil, nil, fmt.Errorf("failed to decode token: %w", err)
	}
	if stored.Token == nil || stored.AccessToken == "" {
		return nil, nil, fmt.Errorf("token file has no access token")
	}

	return stored.Token, stored.Scopes, nil
}

// OAuthProvider implements AuthProvider with the installed-app loopback flow.
type OAuthProvider struct {
	cfg    OAuthConfig
	prompt func(authURL string) error
	logger *log.Logger

	mu            gosync.Mutex
	token         *oauth2.Token
	scopes        []string
	connectedAt   time.Time
	lastValidated time.Time
	initialized   bool
}

// NewOAuthProvider creates the provider. prompt is called with the consent URL
// and should show it to the user (print, open a browser).
func NewOAuthProvider(cfg OAuthConfig, prompt func(authURL string) error, logger *log.Logger) *OAuthProvider {
	if cfg.CallbackAddr == "" {
		cfg.CallbackAddr = "127.0.0.1:8080"
	}
	if cfg.TokenPath == "" {
		cfg.TokenPath = TokenPath()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &OAuthProvider{
		cfg:    cfg,
		prompt: prompt,
		logger: logger.With("component", "oauth"),
	}
}

// IsConfigured reports whether client credentials are present.
func (p *OAuthProvider) IsConfigured() bool {
	return p.cfg.ClientID != "" && p.cfg.ClientSecret != ""
}

// Initialize loads a previously saved token, if any.
func (p *OAuthProvider) Initialize(_ context.Context) error {
	if !p.IsConfigured() {
		return ErrConfigurationMissing
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return nil
	}
	p.initialized = true

	token, scopes, err := LoadToken(p.cfg.TokenPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		p.logger.Warn("ignoring unreadable token file", "path", p.cfg.TokenPath, "err", err)
		return nil
	}

	p.token = token
	p.scopes = scopes
	p.connectedAt = time.Now()
	return nil
}

// SignIn runs the full consent flow for capability.
func (p *OAuthProvider) SignIn(ctx context.Context, capability string) (models.AuthState, error) {
	return p.authorize(ctx, []string{capability}, false)
}

// RequestAdditionalScopes asks for capability on top of what was already granted.
func (p *OAuthProvider) RequestAdditionalScopes(ctx context.Context, capability string) (models.AuthState, error) {
	p.mu.Lock()
	scopes := slices.Clone(p.scopes)
	p.mu.Unlock()

	if !slices.Contains(scopes, capability) {
		scopes = append(scopes, capability)
	}
	return p.authorize(ctx, scopes, true)
}

// Refresh renews the held token with its refresh token. It never prompts.
func (p *OAuthProvider) Refresh(ctx context.Context) (models.AuthState, error) {
	p.mu.Lock()
	current := p.token
	p.mu.Unlock()

	if current == nil {
		return models.AuthState{}, ErrSessionExpired
	}

	config := NewOAuthConfig(p.cfg)
	token, err := config.TokenSource(ctx, current).Token()
	if err != nil {
		return models.AuthState{}, fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.scopes = grantedScopes(token, p.scopes)
	if token.AccessToken != current.AccessToken {
		if err := SaveToken(p.cfg.TokenPath, token, p.scopes); err != nil {
			p.logger.Warn("failed to save refreshed token", "err", err)
		}
	}
	p.token = token
	p.lastValidated = time.Now()
	return p.stateLocked(), nil
}

// State reports the held token.
func (p *OAuthProvider) State() models.AuthState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

// SignOut forgets the held token and removes it from disk.
func (p *OAuthProvider) SignOut(_ context.Context) error {
	p.mu.Lock()
	p.token = nil
	p.scopes = nil
	p.connectedAt = time.Time{}
	p.lastValidated = time.Time{}
	p.mu.Unlock()

	if err := os.Remove(p.cfg.TokenPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}

func (p *OAuthProvider) stateLocked() models.AuthState {
	if p.token == nil {
		return models.AuthState{}
	}
	return models.AuthState{
		AccessToken:   p.token.AccessToken,
		Expiry:        p.token.Expiry,
		GrantedScopes: slices.Clone(p.scopes),
		ConnectedAt:   p.connectedAt,
		LastValidated: p.lastValidated,
	}
}

// authorize runs the consent flow with a one-shot loopback callback server.
// Cancelling ctx while waiting counts as the user dismissing the prompt.
func (p *OAuthProvider) authorize(ctx context.Context, scopes []string, incremental bool) (models.AuthState, error) {
	if !p.IsConfigured() {
		return models.AuthState{}, ErrConfigurationMissing
	}
	if p.prompt == nil {
		return models.AuthState{}, fmt.Errorf("no sign-in prompt available")
	}

	listener, err := net.Listen("tcp", p.cfg.CallbackAddr)
	if err != nil {
		return models.AuthState{}, fmt.Errorf("failed to start OAuth callback server: %w", err)
	}

	cfg := p.cfg
	cfg.CallbackAddr = listener.Addr().String()
	config := NewOAuthConfig(cfg, scopes...)
	state := uuid.NewString()

	type callbackResult struct {
		token *oauth2.Token
		err   error
	}
	results := make(chan callbackResult, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var res callbackResult
		switch {
		case q.Get("state") != state:
			res.err = fmt.Errorf("OAuth state mismatch")
		case q.Get("error") == "access_denied":
			res.err = ErrUserCancelled
		case q.Get("error") != "":
			res.err = fmt.Errorf("authorization failed: %s", q.Get("error"))
		case q.Get("code") == "":
			res.err = fmt.Errorf("no authorization code received")
		default:
			res.token, res.err = config.Exchange(r.Context(), q.Get("code"))
			if res.err != nil {
				res.err = fmt.Errorf("failed to exchange code: %w", res.err)
			}
		}

		if res.err != nil {
			http.Error(w, "Authorization did not complete. You can close this window.", http.StatusBadRequest)
		} else {
			_, _ = fmt.Fprintf(w, "Authorization successful! You can close this window.")
		}

		select {
		case results <- res:
		default:
		}
	})

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = server.Serve(listener) }()
	defer func() { _ = server.Close() }()

	authOpts := []oauth2.AuthCodeOption{oauth2.AccessTypeOffline}
	if incremental {
		authOpts = append(authOpts, oauth2.SetAuthURLParam("include_granted_scopes", "true"))
	} else {
		authOpts = append(authOpts, oauth2.ApprovalForce)
	}

	if err := p.prompt(config.AuthCodeURL(state, authOpts...)); err != nil {
		return models.AuthState{}, fmt.Errorf("failed to show sign-in prompt: %w", err)
	}

	var res callbackResult
	select {
	case res = <-results:
	case <-ctx.Done():
		return models.AuthState{}, fmt.Errorf("%w: %w", ErrUserCancelled, ctx.Err())
	}
	if res.err != nil {
		return models.AuthState{}, res.err
	}

	granted := grantedScopes(res.token, scopes)
	if err := SaveToken(p.cfg.TokenPath, res.token, granted); err != nil {
		p.logger.Warn("failed to save token", "err", err)
	}

	now := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = res.token
	p.scopes = granted
	if p.connectedAt.IsZero() || !incremental {
		p.connectedAt = now
	}
	p.lastValidated = now
	p.initialized = true
	return p.stateLocked(), nil
}

// grantedScopes reads the scope list the token endpoint reported, falling back to requested.
func grantedScopes(token *oauth2.Token, requested []string) []string {
	if raw, ok := token.Extra("scope").(string); ok && raw != "" {
		return strings.Fields(raw)
	}
	return slices.Clone(requested)
}
