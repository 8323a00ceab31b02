package api

import (
	"io"
	"net/http"

	"github.com/digkill/finassist/internal/models"
	"github.com/digkill/finassist/internal/service"
)

type createOrderRequest struct {
	Plan models.PlanName `json:"plan"`
}

func (s *Server) listPlans(*http.Request) (any, error) {
	return s.plans.List(), nil
}

func (s *Server) createOrder(r *http.Request) (any, error) {
	req, err := ParseRequest[createOrderRequest](r)
	if err != nil {
		return nil, err
	}
	return s.payments.CreateOrder(r.Context(), profileFrom(r), req.Plan)
}

func (s *Server) verifyPayment(r *http.Request) (any, error) {
	req, err := ParseRequest[service.VerifyInput](r)
	if err != nil {
		return nil, err
	}
	return s.payments.Verify(r.Context(), profileFrom(r), req)
}

// paymentWebhook needs the raw body, the signature covers its exact bytes.
func (s *Server) paymentWebhook(r *http.Request) (any, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "unable to read request body")
	}
	if err := s.payments.HandleWebhook(r.Context(), body, r.Header.Get("X-Razorpay-Signature")); err != nil {
		return nil, err
	}
	return map[string]string{"status": "ok"}, nil
}
