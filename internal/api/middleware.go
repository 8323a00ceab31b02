package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/digkill/finassist/internal/auth"
	"github.com/digkill/finassist/internal/models"
)

const (
	accessCookie  = "sb-access-token"
	refreshCookie = "sb-refresh-token"
)

type ctxKey int

const profileKey ctxKey = iota

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()
			defer func() {
				log.Info("http request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(started),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// accessToken prefers the Authorization header over the session cookie.
func accessToken(r *http.Request) string {
	if token := auth.BearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	if c, err := r.Cookie(accessCookie); err == nil {
		return c.Value
	}
	return ""
}

func (s *Server) requireProfile(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := accessToken(r)
		if token == "" {
			WriteJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing access token"})
			return
		}
		profile, err := s.auth.Authenticate(r.Context(), token)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), profileKey, profile)))
	})
}

func profileFrom(r *http.Request) *models.Profile {
	profile, _ := r.Context().Value(profileKey).(*models.Profile)
	return profile
}

func (s *Server) setSessionCookies(w http.ResponseWriter, session *auth.Session) {
	maxAge := session.ExpiresIn
	if maxAge <= 0 {
		maxAge = 3600
	}
	http.SetCookie(w, s.cookie(accessCookie, session.AccessToken, maxAge))
	if session.RefreshToken != "" {
		http.SetCookie(w, s.cookie(refreshCookie, session.RefreshToken, 30*24*3600))
	}
}

func (s *Server) clearSessionCookies(w http.ResponseWriter) {
	http.SetCookie(w, s.cookie(accessCookie, "", -1))
	http.SetCookie(w, s.cookie(refreshCookie, "", -1))
}

func (s *Server) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   s.cfg.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}
