package razorpay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/digkill/finassist/internal/config"
)

// Client creates orders on the payment gateway and checks the signatures it issues.
type Client struct {
	http      *resty.Client
	keyID     string
	keySecret string
	log       *slog.Logger
}

type Order struct {
	ID       string            `json:"id"`
	Amount   int               `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Status   string            `json:"status"`
	Notes    map[string]string `json:"notes"`
}

type createOrderRequest struct {
	Amount   int               `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type apiError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func NewClient(cfg config.Config, log *slog.Logger) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(cfg.RazorpayBaseURL).
			SetBasicAuth(cfg.RazorpayKeyID, cfg.RazorpayKeySecret).
			SetTimeout(cfg.RequestTimeout).
			SetHeader("Content-Type", "application/json"),
		keyID:     cfg.RazorpayKeyID,
		keySecret: cfg.RazorpayKeySecret,
		log:       log,
	}
}

// KeyID is the public key the checkout widget is opened with.
func (c *Client) KeyID() string {
	return c.keyID
}

// CreateOrder registers an order for amount minor units.
func (c *Client) CreateOrder(ctx context.Context, amount int, currency, receipt string, notes map[string]string) (*Order, error) {
	var order Order
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(createOrderRequest{Amount: amount, Currency: currency, Receipt: receipt, Notes: notes}).
		SetResult(&order).
		Post("/v1/orders")
	if err != nil {
		return nil, fmt.Errorf("create razorpay order: %w", err)
	}
	if !res.IsSuccess() {
		var apiErr apiError
		_ = json.Unmarshal(res.Body(), &apiErr)
		c.log.Error("razorpay order rejected", "status", res.StatusCode(), "code", apiErr.Error.Code, "description", apiErr.Error.Description)
		return nil, fmt.Errorf("razorpay error: status=%d code=%s", res.StatusCode(), apiErr.Error.Code)
	}
	if order.ID == "" {
		return nil, errors.New("razorpay order response missing id")
	}
	return &order, nil
}

// VerifyPayment checks the checkout signature for an order/payment pair.
func (c *Client) VerifyPayment(orderID, paymentID, signature string) bool {
	return VerifyPaymentSignature(orderID, paymentID, signature, c.keySecret)
}

// PaymentSignature is hex(HMAC-SHA256(secret, orderID + "|" + paymentID)).
func PaymentSignature(orderID, paymentID, secret string) string {
	return sign([]byte(orderID+"|"+paymentID), secret)
}

func VerifyPaymentSignature(orderID, paymentID, signature, secret string) bool {
	return compare(PaymentSignature(orderID, paymentID, secret), signature)
}

// VerifyWebhookSignature checks X-Razorpay-Signature against the raw request body.
func VerifyWebhookSignature(body []byte, signature, secret string) bool {
	if secret == "" {
		return false
	}
	return compare(sign(body, secret), signature)
}

func sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func compare(expected, provided string) bool {
	provided = strings.ToLower(strings.TrimSpace(provided))
	return hmac.Equal([]byte(expected), []byte(provided))
}
