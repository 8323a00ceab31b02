package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/digkill/finassist/internal/config"
	"github.com/digkill/finassist/internal/models"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier posts operator notices to a fixed Telegram chat.
type Notifier struct {
	api    sender
	chatID int64
	log    *slog.Logger
}

func NewNotifier(cfg config.Config, log *slog.Logger) (*Notifier, error) {
	return newNotifier(cfg, log, tgbotapi.APIEndpoint)
}

func newNotifier(cfg config.Config, log *slog.Logger, endpoint string) (*Notifier, error) {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	api, err := tgbotapi.NewBotAPIWithClient(cfg.TelegramBotToken, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	log.Info("telegram notifier ready", "bot", api.Self.UserName)
	return &Notifier{api: api, chatID: cfg.TelegramAdminChatID, log: log}, nil
}

func (n *Notifier) PaymentCompleted(ctx context.Context, profile *models.Profile, payment *models.Payment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return n.send(paymentText(profile, payment))
}

func (n *Notifier) send(text string) error {
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

func paymentText(profile *models.Profile, payment *models.Payment) string {
	who := profile.Email
	if name := strings.TrimSpace(profile.Name); name != "" {
		who = fmt.Sprintf("%s <%s>", name, profile.Email)
	}
	lines := []string{
		"New payment",
		fmt.Sprintf("User: %s", who),
		fmt.Sprintf("Plan: %s", payment.Plan),
		fmt.Sprintf("Amount: %s", formatAmount(payment.Amount, payment.Currency)),
		fmt.Sprintf("Order: %s", payment.OrderID),
		fmt.Sprintf("Payment: %s", payment.ID),
	}
	if !payment.CreatedAt.IsZero() {
		lines = append(lines, "At: "+payment.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	}
	return strings.Join(lines, "\n")
}

// formatAmount renders minor units (paise, cents) as a decimal amount.
func formatAmount(minor int, currency string) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, minor/100, minor%100, currency)
}
