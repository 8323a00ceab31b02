package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/digkill/finassist/internal/config"
	"github.com/digkill/finassist/internal/models"
	"github.com/digkill/finassist/internal/razorpay"
	"github.com/digkill/finassist/internal/repository"
)

type PaymentService struct {
	cfg      config.Config
	log      *slog.Logger
	payments PaymentStore
	profiles ProfileStore
	plans    *PlanService
	gateway  PaymentGateway
	notifier PaymentNotifier
	now      func() time.Time
}

type CheckoutOrder struct {
	OrderID  string          `json:"order_id"`
	Amount   int             `json:"amount"`
	Currency string          `json:"currency"`
	KeyID    string          `json:"key_id"`
	Plan     models.PlanName `json:"plan"`
}

type VerifyInput struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

type VerifyResult struct {
	Success bool            `json:"success"`
	Plan    models.PlanName `json:"plan"`
}

// NewPaymentService wires checkout. A nil notifier disables operator notifications.
func NewPaymentService(cfg config.Config, log *slog.Logger, payments PaymentStore, profiles ProfileStore, plans *PlanService, gateway PaymentGateway, notifier PaymentNotifier) *PaymentService {
	return &PaymentService{
		cfg:      cfg,
		log:      log,
		payments: payments,
		profiles: profiles,
		plans:    plans,
		gateway:  gateway,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrder opens a gateway order for a plan upgrade and records it as created.
func (s *PaymentService) CreateOrder(ctx context.Context, profile *models.Profile, planName models.PlanName) (*CheckoutOrder, error) {
	plan, err := s.plans.Purchasable(planName)
	if err != nil {
		return nil, err
	}

	receipt := uuid.NewString()
	order, err := s.gateway.CreateOrder(ctx, plan.PriceMinorUnits, s.cfg.PaymentCurrency, receipt, map[string]string{
		"user_id": profile.ID,
		"plan":    string(plan.Name),
	})
	if err != nil {
		return nil, fmt.Errorf("create gateway order: %w", err)
	}

	record := &models.PaymentOrder{
		ID:       order.ID,
		UserID:   profile.ID,
		Plan:     plan.Name,
		Amount:   plan.PriceMinorUnits,
		Currency: s.cfg.PaymentCurrency,
		Receipt:  receipt,
		Status:   models.OrderCreated,
	}
	if err := s.payments.CreateOrder(ctx, record); err != nil {
		return nil, fmt.Errorf("record order: %w", err)
	}
	s.log.Info("payment order created", "user", profile.ID, "order", order.ID, "plan", plan.Name)

	return &CheckoutOrder{
		OrderID:  order.ID,
		Amount:   record.Amount,
		Currency: record.Currency,
		KeyID:    s.gateway.KeyID(),
		Plan:     plan.Name,
	}, nil
}

// Verify checks the checkout signature and completes the order. Verifying an
// order that is already completed succeeds without side effects.
func (s *PaymentService) Verify(ctx context.Context, profile *models.Profile, in VerifyInput) (*VerifyResult, error) {
	in.OrderID = strings.TrimSpace(in.OrderID)
	in.PaymentID = strings.TrimSpace(in.PaymentID)
	in.Signature = strings.TrimSpace(in.Signature)
	if in.OrderID == "" || in.PaymentID == "" || in.Signature == "" {
		return nil, ErrInvalidPayment
	}
	if !s.gateway.VerifyPayment(in.OrderID, in.PaymentID, in.Signature) {
		s.log.Warn("payment signature mismatch", "user", profile.ID, "order", in.OrderID)
		return nil, ErrInvalidSignature
	}

	order, err := s.payments.FindOrder(ctx, in.OrderID)
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	if order == nil || order.UserID != profile.ID {
		return nil, ErrOrderNotFound
	}

	payment := &models.Payment{
		ID:        in.PaymentID,
		OrderID:   order.ID,
		UserID:    order.UserID,
		Plan:      order.Plan,
		Amount:    order.Amount,
		Currency:  order.Currency,
		Signature: in.Signature,
		Status:    "captured",
	}
	if err := s.complete(ctx, profile, payment); err != nil {
		return nil, err
	}
	return &VerifyResult{Success: true, Plan: order.Plan}, nil
}

type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID       string `json:"id"`
				OrderID  string `json:"order_id"`
				Amount   int    `json:"amount"`
				Currency string `json:"currency"`
				Status   string `json:"status"`
			} `json:"entity"`
		} `json:"payment"`
		Order struct {
			Entity struct {
				ID string `json:"id"`
			} `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

// HandleWebhook processes a gateway event delivered with its raw body and
// signature header. Events other than captured payments are acknowledged and ignored.
func (s *PaymentService) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if !razorpay.VerifyWebhookSignature(body, signature, s.cfg.RazorpayWebhookSecret) {
		return ErrInvalidSignature
	}

	var evt webhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return fmt.Errorf("%w: parse webhook: %v", ErrInvalidPayment, err)
	}
	if evt.Event != "payment.captured" && evt.Event != "order.paid" {
		s.log.Debug("ignoring payment webhook", "event", evt.Event)
		return nil
	}

	entity := evt.Payload.Payment.Entity
	orderID := entity.OrderID
	if orderID == "" {
		orderID = evt.Payload.Order.Entity.ID
	}
	if orderID == "" || entity.ID == "" {
		return fmt.Errorf("%w: webhook without order or payment id", ErrInvalidPayment)
	}

	order, err := s.payments.FindOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("find order: %w", err)
	}
	if order == nil {
		s.log.Warn("webhook for unknown order", "order", orderID, "event", evt.Event)
		return nil
	}

	profile, err := s.profiles.FindByID(ctx, order.UserID)
	if err != nil {
		return fmt.Errorf("find profile: %w", err)
	}
	if profile == nil {
		s.log.Warn("webhook for order without profile", "order", orderID, "user", order.UserID)
		return nil
	}

	payment := &models.Payment{
		ID:       entity.ID,
		OrderID:  order.ID,
		UserID:   order.UserID,
		Plan:     order.Plan,
		Amount:   order.Amount,
		Currency: order.Currency,
		Status:   "captured",
	}
	return s.complete(ctx, profile, payment)
}

func (s *PaymentService) complete(ctx context.Context, profile *models.Profile, payment *models.Payment) error {
	err := s.payments.CompleteOrder(ctx, payment)
	if errors.Is(err, repository.ErrOrderAlreadyCompleted) {
		s.log.Info("order already completed", "order", payment.OrderID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("complete order: %w", err)
	}

	s.log.Info("payment completed", "user", payment.UserID, "order", payment.OrderID, "payment", payment.ID, "plan", payment.Plan)
	profile.Plan = payment.Plan
	profile.QuestionsUsed = 0

	if s.notifier != nil {
		snapshot := *profile
		payment.CreatedAt = s.now()
		go func() {
			notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := s.notifier.PaymentCompleted(notifyCtx, &snapshot, payment); err != nil {
				s.log.Warn("payment notification failed", "order", payment.OrderID, "err", err)
			}
		}()
	}
	return nil
}

// ExpireStale marks orders left in created longer than the configured window as expired.
func (s *PaymentService) ExpireStale(ctx context.Context) (int64, error) {
	hours := s.cfg.OrderExpiryHours
	if hours <= 0 {
		hours = 24
	}
	cutoff := s.now().Add(-time.Duration(hours) * time.Hour)
	n, err := s.payments.ExpireOrders(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("expired stale payment orders", "count", n)
	}
	return n, nil
}

func (s *PaymentService) ListPayments(ctx context.Context, status string, limit int) ([]models.Payment, error) {
	payments, err := s.payments.ListPayments(ctx, strings.TrimSpace(status), clampLimit(limit, 50, 500))
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	if payments == nil {
		payments = []models.Payment{}
	}
	return payments, nil
}
