package api

import (
	"context"

	"github.com/digkill/finassist/internal/models"
	"github.com/digkill/finassist/internal/service"
)

// The handlers depend on these method sets; *service.XService values satisfy them.

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.Profile, error)
	SignIn(ctx context.Context, email, password, redirectTo string) (*service.SessionGrant, error)
	SignUp(ctx context.Context, name, email, password string) (*service.SessionGrant, error)
	Refresh(ctx context.Context, refreshToken string) (*service.SessionGrant, error)
	IssueSession(ctx context.Context, accessToken, refreshToken, redirectTo string) (*service.SessionGrant, error)
	SignOut(ctx context.Context, accessToken string) error
}

type Chats interface {
	Ask(ctx context.Context, profile *models.Profile, in service.AskInput, onDelta func(string) error) (*service.AskResult, error)
	List(ctx context.Context, profile *models.Profile, limit, offset int) ([]models.ChatSummary, error)
	Get(ctx context.Context, profile *models.Profile, id string) (*models.Chat, error)
	Save(ctx context.Context, profile *models.Profile, chat *models.Chat) (*models.Chat, error)
	Delete(ctx context.Context, profile *models.Profile, id string) error
	Export(ctx context.Context, profile *models.Profile, id string, format service.ExportFormat) (string, error)
}

type Payments interface {
	CreateOrder(ctx context.Context, profile *models.Profile, plan models.PlanName) (*service.CheckoutOrder, error)
	Verify(ctx context.Context, profile *models.Profile, in service.VerifyInput) (*service.VerifyResult, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) error
}

type Profiles interface {
	View(profile *models.Profile) service.ProfileView
	UpdateName(ctx context.Context, profile *models.Profile, name string) (*models.Profile, error)
}

var (
	_ Authenticator = (*service.AuthService)(nil)
	_ Chats         = (*service.ChatService)(nil)
	_ Payments      = (*service.PaymentService)(nil)
	_ Profiles      = (*service.ProfileService)(nil)
)
