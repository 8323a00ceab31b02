package admin

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/schema"
	"golang.org/x/crypto/bcrypt"

	"github.com/digkill/finassist/internal/models"
	"github.com/digkill/finassist/internal/service"
)

type ProfileAdmin interface {
	List(ctx context.Context, plan models.PlanName, limit, offset int) ([]models.Profile, error)
	SetPlan(ctx context.Context, id string, plan models.PlanName) error
	ResetUsage(ctx context.Context, id string) error
}

type PaymentAdmin interface {
	ListPayments(ctx context.Context, status string, limit int) ([]models.Payment, error)
}

type StatsSource interface {
	Answered(ctx context.Context) (*service.Stats, error)
}

type Server struct {
	addr         string
	username     string
	passwordHash []byte
	log          *slog.Logger
	profiles     ProfileAdmin
	payments     PaymentAdmin
	stats        StatsSource
	router       *chi.Mux
}

var decoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

func NewServer(addr, username, passwordHash string, log *slog.Logger, profiles ProfileAdmin, payments PaymentAdmin, stats StatsSource) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		addr:         addr,
		username:     username,
		passwordHash: []byte(passwordHash),
		log:          log,
		profiles:     profiles,
		payments:     payments,
		stats:        stats,
		router:       r,
	}
	r.Group(func(protected chi.Router) {
		protected.Use(s.basicAuthMiddleware())
		protected.Route("/profiles", func(r chi.Router) {
			r.Get("/", s.handleListProfiles)
			r.Put("/{id}/plan", s.handleSetPlan)
			r.Post("/{id}/reset-usage", s.handleResetUsage)
		})
		protected.Get("/payments", s.handleListPayments)
		protected.Get("/stats", s.handleStats)
	})
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("admin shutdown error", "err", err)
		}
	}()

	s.log.Info("admin panel listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin listen: %w", err)
	}
	return nil
}

type listProfilesQuery struct {
	Plan   string `schema:"plan"`
	Limit  int    `schema:"limit"`
	Offset int    `schema:"offset"`
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	var q listProfilesQuery
	if err := decoder.Decode(&q, r.URL.Query()); err != nil {
		s.badRequest(w, fmt.Errorf("invalid query: %w", err))
		return
	}
	profiles, err := s.profiles.List(r.Context(), models.PlanName(strings.ToLower(q.Plan)), q.Limit, q.Offset)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, profiles)
}

type setPlanRequest struct {
	Plan models.PlanName `json:"plan"`
}

func (s *Server) handleSetPlan(w http.ResponseWriter, r *http.Request) {
	var req setPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, errors.New("invalid json"))
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.profiles.SetPlan(r.Context(), id, req.Plan); err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			s.badRequest(w, err)
			return
		}
		s.internalError(w, err)
		return
	}
	s.log.Info("plan overridden by operator", "user", id, "plan", req.Plan)
	s.writeJSON(w, http.StatusOK, map[string]any{"id": id, "plan": req.Plan})
}

func (s *Server) handleResetUsage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.profiles.ResetUsage(r.Context(), id); err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"id": id, "questions_used": 0})
}

type listPaymentsQuery struct {
	Status string `schema:"status"`
	Limit  int    `schema:"limit"`
}

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	var q listPaymentsQuery
	if err := decoder.Decode(&q, r.URL.Query()); err != nil {
		s.badRequest(w, fmt.Errorf("invalid query: %w", err))
		return
	}
	payments, err := s.payments.ListPayments(r.Context(), q.Status, q.Limit)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, payments)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.Answered(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// basicAuthMiddleware checks credentials against the configured bcrypt hash.
func (s *Server) basicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || !s.checkCredentials(user, pass) {
				w.Header().Set("WWW-Authenticate", `Basic realm="finassist-admin"`)
				s.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) checkCredentials(user, pass string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(s.username)) == 1
	passOK := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(pass)) == nil
	return userOK && passOK
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error("admin handler error", "err", err)
	s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}
