package service

import (
	"context"
	"time"

	"github.com/digkill/finassist/internal/auth"
	"github.com/digkill/finassist/internal/completion"
	"github.com/digkill/finassist/internal/models"
	"github.com/digkill/finassist/internal/razorpay"
)

// The interfaces below are satisfied by the repository, vendor client and
// notifier packages; services depend on them so tests can substitute fakes.

type ProfileStore interface {
	FindByID(ctx context.Context, id string) (*models.Profile, error)
	Ensure(ctx context.Context, id, email, name string) (*models.Profile, error)
	UpdateName(ctx context.Context, id, name string) error
	SetPlan(ctx context.Context, id string, plan models.PlanName) error
	ReserveQuestion(ctx context.Context, id string, limit int) (bool, error)
	ReleaseQuestion(ctx context.Context, id string) error
	ResetUsage(ctx context.Context, id string) error
	ResetAllUsage(ctx context.Context) (int64, error)
	List(ctx context.Context, plan models.PlanName, limit, offset int) ([]models.Profile, error)
}

type ChatStore interface {
	FindByID(ctx context.Context, id string) (*models.Chat, error)
	Upsert(ctx context.Context, chat *models.Chat) (bool, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.ChatSummary, error)
	Delete(ctx context.Context, id, userID string) (bool, error)
}

type PaymentStore interface {
	CreateOrder(ctx context.Context, order *models.PaymentOrder) error
	FindOrder(ctx context.Context, id string) (*models.PaymentOrder, error)
	CompleteOrder(ctx context.Context, payment *models.Payment) error
	ExpireOrders(ctx context.Context, cutoff time.Time) (int64, error)
	ListPayments(ctx context.Context, status string, limit int) ([]models.Payment, error)
}

type QuestionStore interface {
	Log(ctx context.Context, entry models.QuestionLog) error
	CountSince(ctx context.Context, since time.Time) (int, error)
}

type Completer interface {
	Complete(ctx context.Context, req completion.Request) (*completion.Result, error)
	Stream(ctx context.Context, req completion.Request, onDelta func(string) error) (*completion.Result, error)
}

type PaymentGateway interface {
	KeyID() string
	CreateOrder(ctx context.Context, amount int, currency, receipt string, notes map[string]string) (*razorpay.Order, error)
	VerifyPayment(orderID, paymentID, signature string) bool
}

type IdentityProvider interface {
	SignIn(ctx context.Context, email, password string) (*auth.Session, error)
	SignUp(ctx context.Context, name, email, password string) (*auth.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.Session, error)
	SignOut(ctx context.Context, accessToken string) error
}

type PaymentNotifier interface {
	PaymentCompleted(ctx context.Context, profile *models.Profile, payment *models.Payment) error
}

type ObjectStorage interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}
