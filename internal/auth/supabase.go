package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-resty/resty/v2"

	"github.com/digkill/finassist/internal/config"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrRejected wraps 4xx answers such as an already registered email.
	ErrRejected = errors.New("rejected by auth provider")
)

// Session is the token pair handed out by the auth provider.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
	User         User   `json:"user"`
}

type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
}

type providerError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (e providerError) text() string {
	for _, s := range []string{e.ErrorDescription, e.Msg, e.Message, e.Error} {
		if s != "" {
			return s
		}
	}
	return "unknown error"
}

// Provider is a thin client for the hosted auth REST API.
type Provider struct {
	http *resty.Client
	log  *slog.Logger
}

func NewProvider(cfg config.Config, log *slog.Logger) *Provider {
	return &Provider{
		http: resty.New().
			SetBaseURL(cfg.SupabaseURL+"/auth/v1").
			SetHeader("apikey", cfg.SupabaseAnonKey).
			SetHeader("Content-Type", "application/json").
			SetTimeout(cfg.RequestTimeout),
		log: log,
	}
}

func (p *Provider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	var session Session
	res, err := p.http.R().
		SetContext(ctx).
		SetQueryParam("grant_type", "password").
		SetBody(map[string]string{"email": email, "password": password}).
		SetResult(&session).
		Post("/token")
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}
	if res.StatusCode() == http.StatusBadRequest || res.StatusCode() == http.StatusUnauthorized {
		return nil, ErrInvalidCredentials
	}
	if !res.IsSuccess() {
		return nil, p.failure("sign in", res)
	}
	return &session, nil
}

// SignUp registers a user. When the project requires email confirmation the
// returned session carries no tokens, only the user.
func (p *Provider) SignUp(ctx context.Context, name, email, password string) (*Session, error) {
	res, err := p.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"email":    email,
			"password": password,
			"data":     map[string]string{"name": name},
		}).
		Post("/signup")
	if err != nil {
		return nil, fmt.Errorf("sign up: %w", err)
	}
	if !res.IsSuccess() {
		return nil, p.failure("sign up", res)
	}

	var session Session
	if err := json.Unmarshal(res.Body(), &session); err != nil {
		return nil, fmt.Errorf("decode sign up response: %w", err)
	}
	if session.User.ID == "" {
		// Confirmation flow: the body is the user object itself.
		if err := json.Unmarshal(res.Body(), &session.User); err != nil {
			return nil, fmt.Errorf("decode sign up user: %w", err)
		}
	}
	return &session, nil
}

func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	var session Session
	res, err := p.http.R().
		SetContext(ctx).
		SetQueryParam("grant_type", "refresh_token").
		SetBody(map[string]string{"refresh_token": refreshToken}).
		SetResult(&session).
		Post("/token")
	if err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	if res.StatusCode() == http.StatusBadRequest || res.StatusCode() == http.StatusUnauthorized {
		return nil, ErrInvalidToken
	}
	if !res.IsSuccess() {
		return nil, p.failure("refresh session", res)
	}
	return &session, nil
}

func (p *Provider) SignOut(ctx context.Context, accessToken string) error {
	res, err := p.http.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		Post("/logout")
	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	if !res.IsSuccess() && res.StatusCode() != http.StatusUnauthorized {
		return p.failure("sign out", res)
	}
	return nil
}

func (p *Provider) failure(op string, res *resty.Response) error {
	var perr providerError
	_ = json.Unmarshal(res.Body(), &perr)
	if res.StatusCode() >= 400 && res.StatusCode() < 500 {
		p.log.Warn("auth provider rejected request", "op", op, "status", res.StatusCode(), "detail", perr.text())
		return fmt.Errorf("%w: %s", ErrRejected, perr.text())
	}
	p.log.Error("auth provider request failed", "op", op, "status", res.StatusCode(), "detail", perr.text())
	return fmt.Errorf("%s: provider status=%d: %s", op, res.StatusCode(), perr.text())
}
