package api

import (
	"net/http"

	"github.com/digkill/finassist/internal/auth"
	"github.com/digkill/finassist/internal/models"
	"github.com/digkill/finassist/internal/service"
)

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RedirectTo string `json:"redirect_to"`
}

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	RedirectTo   string `json:"redirect_to"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type sessionResponse struct {
	Redirect             string          `json:"redirect,omitempty"`
	Profile              *models.Profile `json:"profile,omitempty"`
	ExpiresIn            int             `json:"expires_in,omitempty"`
	ConfirmationRequired bool            `json:"confirmation_required,omitempty"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	req, err := ParseRequest[loginRequest](r)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if req.RedirectTo == "" {
		req.RedirectTo = auth.DefaultRedirect
	}
	grant, err := s.auth.SignIn(r.Context(), req.Email, req.Password, req.RedirectTo)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	s.writeGrant(w, grant)
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	req, err := ParseRequest[signupRequest](r)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	grant, err := s.auth.SignUp(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if grant.Session == nil || grant.Session.AccessToken == "" {
		WriteJSON(w, http.StatusOK, sessionResponse{ConfirmationRequired: true})
		return
	}
	s.writeGrant(w, grant)
}

// issueSession turns tokens obtained by the browser from the auth provider
// into HttpOnly cookies and answers where to go next.
func (s *Server) issueSession(w http.ResponseWriter, r *http.Request) {
	req, err := ParseRequest[sessionRequest](r)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if req.AccessToken == "" {
		WriteError(w, r, CodedErrorf(http.StatusUnauthorized, "missing access token"))
		return
	}
	if req.RedirectTo == "" {
		req.RedirectTo = auth.DefaultRedirect
	}
	grant, err := s.auth.IssueSession(r.Context(), req.AccessToken, req.RefreshToken, req.RedirectTo)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	s.writeGrant(w, grant)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if r.ContentLength > 0 {
		parsed, err := ParseRequest[refreshRequest](r)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		req = parsed
	}
	if req.RefreshToken == "" {
		if c, err := r.Cookie(refreshCookie); err == nil {
			req.RefreshToken = c.Value
		}
	}
	grant, err := s.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if statusFor(err) == http.StatusUnauthorized {
			s.clearSessionCookies(w)
		}
		WriteError(w, r, err)
		return
	}
	s.writeGrant(w, grant)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.SignOut(r.Context(), accessToken(r)); err != nil {
		s.log.Warn("sign out failed", "err", err)
	}
	s.clearSessionCookies(w)
	WriteJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) writeGrant(w http.ResponseWriter, grant *service.SessionGrant) {
	s.setSessionCookies(w, grant.Session)
	WriteJSON(w, http.StatusOK, sessionResponse{
		Redirect:  grant.Redirect,
		Profile:   grant.Profile,
		ExpiresIn: grant.Session.ExpiresIn,
	})
}
