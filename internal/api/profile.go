package api

import "net/http"

type updateProfileRequest struct {
	Name string `json:"name"`
}

func (s *Server) getProfile(r *http.Request) (any, error) {
	return s.profiles.View(profileFrom(r)), nil
}

func (s *Server) updateProfile(r *http.Request) (any, error) {
	req, err := ParseRequest[updateProfileRequest](r)
	if err != nil {
		return nil, err
	}
	updated, err := s.profiles.UpdateName(r.Context(), profileFrom(r), req.Name)
	if err != nil {
		return nil, err
	}
	return s.profiles.View(updated), nil
}
