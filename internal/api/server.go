package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/digkill/finassist/internal/config"
	"github.com/digkill/finassist/internal/service"
)

type Server struct {
	cfg      config.Config
	log      *slog.Logger
	auth     Authenticator
	chats    Chats
	payments Payments
	profiles Profiles
	plans    *service.PlanService
	router   *chi.Mux
}

func NewServer(cfg config.Config, log *slog.Logger, auth Authenticator, chats Chats, payments Payments, profiles Profiles, plans *service.PlanService) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s := &Server{
		cfg:      cfg,
		log:      log,
		auth:     auth,
		chats:    chats,
		payments: payments,
		profiles: profiles,
		plans:    plans,
		router:   r,
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", s.login)
			r.Post("/signup", s.signup)
			r.Post("/session", s.issueSession)
			r.Post("/refresh", s.refresh)
			r.Post("/logout", s.logout)
		})
		r.Get("/plans", RestHandler(s.listPlans))
		r.Post("/payments/webhook", RestHandler(s.paymentWebhook))

		r.Group(func(r chi.Router) {
			r.Use(s.requireProfile)

			r.Get("/profile", RestHandler(s.getProfile))
			r.Patch("/profile", RestHandler(s.updateProfile))

			r.Post("/chat", s.chat)
			r.Route("/chats", func(r chi.Router) {
				r.Get("/", RestHandler(s.listChats))
				r.Get("/{id}", RestHandler(s.getChat))
				r.Put("/{id}", RestHandler(s.saveChat))
				r.Delete("/{id}", RestHandler(s.deleteChat))
				r.Post("/{id}/export", RestHandler(s.exportChat))
			})

			r.Post("/payments/order", RestHandler(s.createOrder))
			r.Post("/payments/verify", RestHandler(s.verifyPayment))
		})
	})
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("api shutdown error", "err", err)
		}
	}()

	s.log.Info("api listening", "addr", s.cfg.ListenAddr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api listen: %w", err)
	}
	return nil
}
