package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/finassist/internal/config"
	"github.com/digkill/finassist/internal/models"
)

const testWebhookSecret = "whsec_test"

type paymentFixture struct {
	profiles *fakeProfiles
	payments *fakePayments
	gateway  *fakeGateway
	notifier *fakeNotifier
	svc      *PaymentService
}

func newPaymentFixture(orders ...models.PaymentOrder) *paymentFixture {
	f := &paymentFixture{
		profiles: newFakeProfiles(models.Profile{ID: "u1", Plan: models.PlanFree, QuestionsUsed: 10}),
		payments: newFakePayments(orders...),
		gateway:  &fakeGateway{valid: true},
		notifier: &fakeNotifier{sent: make(chan models.Payment, 4)},
	}
	cfg := config.Config{PaymentCurrency: "INR", OrderExpiryHours: 24, RazorpayWebhookSecret: testWebhookSecret}
	f.svc = NewPaymentService(cfg, discardLogger(), f.payments, f.profiles, NewPlanService("sonar"), f.gateway, f.notifier)
	return f
}

func pendingOrder() models.PaymentOrder {
	return models.PaymentOrder{ID: "order_1", UserID: "u1", Plan: models.PlanPro, Amount: 99900, Currency: "INR", Status: models.OrderCreated}
}

func TestCreateOrder(t *testing.T) {
	f := newPaymentFixture()
	profile := f.profiles.get("u1")

	order, err := f.svc.CreateOrder(context.Background(), &profile, models.PlanPlus)
	require.NoError(t, err)
	assert.Equal(t, &CheckoutOrder{OrderID: "order_1", Amount: 49900, Currency: "INR", KeyID: "rzp_test_key", Plan: models.PlanPlus}, order)

	stored := f.payments.orders["order_1"]
	assert.Equal(t, models.OrderCreated, stored.Status)
	assert.Equal(t, "u1", stored.UserID)
	assert.NotEmpty(t, stored.Receipt)

	_, err = f.svc.CreateOrder(context.Background(), &profile, models.PlanFree)
	assert.ErrorIs(t, err, ErrPlanNotPurchasable)
	_, err = f.svc.CreateOrder(context.Background(), &profile, "gold")
	assert.ErrorIs(t, err, ErrPlanNotPurchasable)
	assert.Equal(t, 1, f.gateway.orders)
}

func TestVerifyRejectsBadSignature(t *testing.T) {
	f := newPaymentFixture(pendingOrder())
	f.gateway.valid = false
	profile := f.profiles.get("u1")

	_, err := f.svc.Verify(context.Background(), &profile, VerifyInput{OrderID: "order_1", PaymentID: "pay_1", Signature: "deadbeef"})
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.Equal(t, models.OrderCreated, f.payments.orders["order_1"].Status)
	assert.Zero(t, f.payments.completed)
}

func TestVerifyRequiresAllFields(t *testing.T) {
	f := newPaymentFixture(pendingOrder())
	profile := f.profiles.get("u1")

	_, err := f.svc.Verify(context.Background(), &profile, VerifyInput{OrderID: "order_1", Signature: "x"})
	assert.ErrorIs(t, err, ErrInvalidPayment)
}

func TestVerifyCompletesOrderOnce(t *testing.T) {
	f := newPaymentFixture(pendingOrder())
	profile := f.profiles.get("u1")
	in := VerifyInput{OrderID: "order_1", PaymentID: "pay_1", Signature: "sig"}

	res, err := f.svc.Verify(context.Background(), &profile, in)
	require.NoError(t, err)
	assert.Equal(t, &VerifyResult{Success: true, Plan: models.PlanPro}, res)
	assert.Equal(t, models.PlanPro, profile.Plan)
	assert.Equal(t, 0, profile.QuestionsUsed)

	select {
	case sent := <-f.notifier.sent:
		assert.Equal(t, "pay_1", sent.ID)
	case <-time.After(time.Second):
		t.Fatal("operator was not notified")
	}

	res, err = f.svc.Verify(context.Background(), &profile, in)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, f.payments.completed)
	assert.Len(t, f.payments.payments, 1)
}

func TestVerifyForeignOrder(t *testing.T) {
	order := pendingOrder()
	order.UserID = "u2"
	f := newPaymentFixture(order)
	profile := f.profiles.get("u1")

	_, err := f.svc.Verify(context.Background(), &profile, VerifyInput{OrderID: "order_1", PaymentID: "pay_1", Signature: "sig"})
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = f.svc.Verify(context.Background(), &profile, VerifyInput{OrderID: "order_missing", PaymentID: "pay_1", Signature: "sig"})
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func signWebhook(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestHandleWebhook(t *testing.T) {
	f := newPaymentFixture(pendingOrder())
	body := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_9","order_id":"order_1","amount":99900,"currency":"INR","status":"captured"}}}}`)

	err := f.svc.HandleWebhook(context.Background(), body, "bad")
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.Zero(t, f.payments.completed)

	require.NoError(t, f.svc.HandleWebhook(context.Background(), body, signWebhook(body)))
	assert.Equal(t, models.OrderCompleted, f.payments.orders["order_1"].Status)
	require.Len(t, f.payments.payments, 1)
	assert.Equal(t, "pay_9", f.payments.payments[0].ID)

	require.NoError(t, f.svc.HandleWebhook(context.Background(), body, signWebhook(body)))
	assert.Equal(t, 1, f.payments.completed)
}

func TestHandleWebhookIgnoresOtherEvents(t *testing.T) {
	f := newPaymentFixture(pendingOrder())
	body := []byte(`{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_9","order_id":"order_1"}}}}`)

	require.NoError(t, f.svc.HandleWebhook(context.Background(), body, signWebhook(body)))
	assert.Equal(t, models.OrderCreated, f.payments.orders["order_1"].Status)

	unknown := []byte(`{"event":"order.paid","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_x"}}}}`)
	require.NoError(t, f.svc.HandleWebhook(context.Background(), unknown, signWebhook(unknown)))
	assert.Zero(t, f.payments.completed)
}

func TestExpireStale(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	old := pendingOrder()
	old.CreatedAt = now.Add(-25 * time.Hour)
	fresh := pendingOrder()
	fresh.ID = "order_2"
	fresh.CreatedAt = now.Add(-time.Hour)

	f := newPaymentFixture(old, fresh)
	f.svc.now = func() time.Time { return now }

	n, err := f.svc.ExpireStale(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, now.Add(-24*time.Hour), f.payments.cutoff)
	assert.Equal(t, models.OrderExpired, f.payments.orders["order_1"].Status)
	assert.Equal(t, models.OrderCreated, f.payments.orders["order_2"].Status)
}
