package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/digkill/finassist/internal/auth"
	"github.com/digkill/finassist/internal/models"
)

type AuthService struct {
	log      *slog.Logger
	verifier *auth.Verifier
	provider IdentityProvider
	profiles *ProfileService
	guard    *auth.RedirectGuard
}

// SessionGrant is what the API needs to set session cookies.
type SessionGrant struct {
	Session  *auth.Session
	Profile  *models.Profile
	Redirect string
}

func NewAuthService(log *slog.Logger, verifier *auth.Verifier, provider IdentityProvider, profiles *ProfileService, guard *auth.RedirectGuard) *AuthService {
	return &AuthService{
		log:      log,
		verifier: verifier,
		provider: provider,
		profiles: profiles,
		guard:    guard,
	}
}

// Authenticate verifies an access token and loads (or creates) the caller's profile.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.Profile, error) {
	claims, err := s.verifier.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return s.profiles.Ensure(ctx, claims.Subject, claims.Email, claims.Name())
}

func (s *AuthService) SignIn(ctx context.Context, email, password, redirectTo string) (*SessionGrant, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrUnauthorized)
	}
	session, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return nil, err
	}
	return s.grant(ctx, session, redirectTo)
}

// SignUp registers the user with the provider. The grant carries no redirect
// when the provider still waits for email confirmation.
func (s *AuthService) SignUp(ctx context.Context, name, email, password string) (*SessionGrant, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(strings.ToLower(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}

	session, err := s.provider.SignUp(ctx, name, email, password)
	if err != nil {
		if errors.Is(err, auth.ErrRejected) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return nil, err
	}
	if session.User.ID != "" {
		if _, err := s.profiles.Ensure(ctx, session.User.ID, email, name); err != nil {
			return nil, err
		}
	}
	if session.AccessToken == "" {
		return &SessionGrant{Session: session}, nil
	}
	return s.grant(ctx, session, auth.DefaultRedirect)
}

func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*SessionGrant, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, fmt.Errorf("%w: missing refresh token", ErrUnauthorized)
	}
	session, err := s.provider.Refresh(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return nil, err
	}
	return s.grant(ctx, session, "")
}

// IssueSession backs the login-redirect flow: the browser hands over the
// tokens it received from the provider and gets cookies plus a safe redirect.
func (s *AuthService) IssueSession(ctx context.Context, accessToken, refreshToken, redirectTo string) (*SessionGrant, error) {
	return s.grant(ctx, &auth.Session{AccessToken: accessToken, RefreshToken: refreshToken}, redirectTo)
}

func (s *AuthService) SignOut(ctx context.Context, accessToken string) error {
	if claims, err := s.verifier.Verify(accessToken); err == nil {
		s.guard.Reset(claims.Subject)
	}
	if accessToken == "" {
		return nil
	}
	if err := s.provider.SignOut(ctx, accessToken); err != nil {
		// The cookies are cleared regardless; a provider failure only leaves the refresh token alive.
		s.log.Warn("provider sign out failed", "err", err)
	}
	return nil
}

func (s *AuthService) grant(ctx context.Context, session *auth.Session, redirectTo string) (*SessionGrant, error) {
	claims, err := s.verifier.Verify(session.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	profile, err := s.profiles.Ensure(ctx, claims.Subject, claims.Email, claims.Name())
	if err != nil {
		return nil, err
	}

	if session.ExpiresIn <= 0 && claims.ExpiresAt != nil {
		session.ExpiresIn = max(int(time.Until(claims.ExpiresAt.Time).Seconds()), 1)
	}

	grant := &SessionGrant{Session: session, Profile: profile}
	if redirectTo != "" {
		target, loop := s.guard.Next(claims.Subject, redirectTo)
		if loop {
			s.log.Warn("login redirect loop detected", "user", claims.Subject, "target", redirectTo)
		}
		grant.Redirect = target
	}
	return grant, nil
}
