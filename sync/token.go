// ABOUTME: Token validation against required calendar capabilities
// ABOUTME: Decides between reuse, sign-in, incremental grant, and silent refresh
package sync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/charmbracelet/log"

	"github.com/harperreed/daybook/models"
)

// expirySkew treats tokens about to expire as already expired.
const expirySkew = time.Minute

// TokenValidator hands out tokens usable for a capability.
// It never mutates ConnectionState; callers apply the returned grant.
type TokenValidator struct {
	auth   AuthProvider
	logger *log.Logger
	now    func() time.Time
}

// NewTokenValidator creates a validator on top of an auth provider.
func NewTokenValidator(auth AuthProvider, logger *log.Logger) *TokenValidator {
	if logger == nil {
		logger = log.Default()
	}
	return &TokenValidator{
		auth:   auth,
		logger: logger.With("component", "token"),
		now:    time.Now,
	}
}

// EnsureToken returns a token usable for capability, asking the auth provider
// for one when the held token is absent, expired, or under-scoped.
func (v *TokenValidator) EnsureToken(ctx context.Context, current models.ConnectionState, capability string) (models.AuthState, error) {
	if v.usable(current, capability) {
		return v.fromState(current), nil
	}

	var (
		grant models.AuthState
		err   error
	)
	switch {
	case !current.HasToken():
		grant, err = v.auth.SignIn(ctx, capability)
	case !ScopeSatisfies(current.GrantedScopes, capability):
		grant, err = v.auth.RequestAdditionalScopes(ctx, capability)
	default:
		grant, err = v.auth.Refresh(ctx)
		if err != nil || !v.grantUsable(grant, capability) {
			v.logger.Debug("silent refresh failed, signing in again", "err", err)
			grant, err = v.auth.SignIn(ctx, capability)
		}
	}

	if err != nil {
		return models.AuthState{}, v.classify(err)
	}
	if !ScopeSatisfies(grant.GrantedScopes, capability) {
		return models.AuthState{}, fmt.Errorf("%w: scope %s not granted", ErrSessionExpired, capability)
	}

	if grant.LastValidated.IsZero() {
		grant.LastValidated = v.now()
	}
	return grant, nil
}

// Revalidate is EnsureToken without prompting. It reports false when no usable
// token can be produced silently.
func (v *TokenValidator) Revalidate(ctx context.Context, current models.ConnectionState, capability string) (models.AuthState, bool) {
	if v.usable(current, capability) {
		return v.fromState(current), true
	}

	if held := v.auth.State(); v.grantUsable(held, capability) {
		held.LastValidated = v.now()
		return held, true
	}

	grant, err := v.auth.Refresh(ctx)
	if err != nil {
		v.logger.Debug("silent revalidation failed", "err", err)
		return models.AuthState{}, false
	}
	if !v.grantUsable(grant, capability) {
		v.logger.Debug("refreshed token lacks capability", "capability", capability)
		return models.AuthState{}, false
	}

	if grant.LastValidated.IsZero() {
		grant.LastValidated = v.now()
	}
	return grant, true
}

func (v *TokenValidator) usable(s models.ConnectionState, capability string) bool {
	if !s.HasToken() || !ScopeSatisfies(s.GrantedScopes, capability) {
		return false
	}
	return s.TokenExpiry == nil || v.notExpired(*s.TokenExpiry)
}

func (v *TokenValidator) grantUsable(g models.AuthState, capability string) bool {
	return g.AccessToken != "" && ScopeSatisfies(g.GrantedScopes, capability) && v.notExpired(g.Expiry)
}

// notExpired treats a zero expiry as non-expiring.
func (v *TokenValidator) notExpired(expiry time.Time) bool {
	return expiry.IsZero() || expiry.After(v.now().Add(expirySkew))
}

func (v *TokenValidator) fromState(s models.ConnectionState) models.AuthState {
	grant := models.AuthState{
		AccessToken:   s.AccessToken,
		GrantedScopes: slices.Clone(s.GrantedScopes),
		LastValidated: v.now(),
	}
	if s.TokenExpiry != nil {
		grant.Expiry = *s.TokenExpiry
	}
	if s.ConnectedAt != nil {
		grant.ConnectedAt = *s.ConnectedAt
	}
	return grant
}

// classify maps auth failures onto the error taxonomy. Cancellation is an
// expected user action and is not logged as an error.
func (v *TokenValidator) classify(err error) error {
	switch {
	case errors.Is(err, ErrUserCancelled):
		v.logger.Debug("sign-in cancelled by user")
		return fmt.Errorf("%w: %w", ErrSessionExpired, err)
	case errors.Is(err, ErrConfigurationMissing):
		return err
	case errors.Is(err, ErrSessionExpired):
		v.logger.Warn("token request rejected", "err", err)
		return err
	default:
		v.logger.Error("token request failed", "err", err)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
}
