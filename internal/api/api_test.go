package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/finassist/internal/auth"
	"github.com/digkill/finassist/internal/config"
	"github.com/digkill/finassist/internal/models"
	"github.com/digkill/finassist/internal/service"
)

const goodToken = "good-token"

type fakeAuth struct {
	profile    *models.Profile
	redirectTo string
}

func (f *fakeAuth) Authenticate(_ context.Context, token string) (*models.Profile, error) {
	if token != goodToken {
		return nil, service.ErrUnauthorized
	}
	cp := *f.profile
	return &cp, nil
}

func (f *fakeAuth) SignIn(_ context.Context, email, password, redirectTo string) (*service.SessionGrant, error) {
	if password != "secret" {
		return nil, service.ErrUnauthorized
	}
	return &service.SessionGrant{
		Session:  &auth.Session{AccessToken: goodToken, RefreshToken: "refresh", ExpiresIn: 3600},
		Profile:  f.profile,
		Redirect: auth.SafeRedirect(redirectTo),
	}, nil
}

func (f *fakeAuth) SignUp(context.Context, string, string, string) (*service.SessionGrant, error) {
	return &service.SessionGrant{Session: &auth.Session{}}, nil
}

func (f *fakeAuth) Refresh(_ context.Context, token string) (*service.SessionGrant, error) {
	if token != "refresh" {
		return nil, service.ErrUnauthorized
	}
	return &service.SessionGrant{Session: &auth.Session{AccessToken: goodToken, ExpiresIn: 60}}, nil
}

func (f *fakeAuth) IssueSession(_ context.Context, access, refresh, redirectTo string) (*service.SessionGrant, error) {
	if access != goodToken {
		return nil, service.ErrUnauthorized
	}
	f.redirectTo = redirectTo
	return &service.SessionGrant{
		Session:  &auth.Session{AccessToken: access, RefreshToken: refresh},
		Profile:  f.profile,
		Redirect: auth.SafeRedirect(redirectTo),
	}, nil
}

func (f *fakeAuth) SignOut(context.Context, string) error { return nil }

type fakeChats struct {
	deltas []string
	result *service.AskResult
	err    error
	listed [2]int
	format service.ExportFormat
}

func (f *fakeChats) Ask(_ context.Context, _ *models.Profile, in service.AskInput, onDelta func(string) error) (*service.AskResult, error) {
	if strings.TrimSpace(in.Message) == "" {
		return nil, service.ErrEmptyMessage
	}
	if onDelta != nil {
		for _, d := range f.deltas {
			if err := onDelta(d); err != nil {
				return nil, err
			}
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeChats) List(_ context.Context, _ *models.Profile, limit, offset int) ([]models.ChatSummary, error) {
	f.listed = [2]int{limit, offset}
	return []models.ChatSummary{{ID: "c1", Title: "GST"}}, nil
}

func (f *fakeChats) Get(_ context.Context, _ *models.Profile, id string) (*models.Chat, error) {
	if id != "c1" {
		return nil, service.ErrChatNotFound
	}
	return &models.Chat{ID: "c1", UserID: "u1"}, nil
}

func (f *fakeChats) Save(_ context.Context, p *models.Profile, chat *models.Chat) (*models.Chat, error) {
	chat.UserID = p.ID
	return chat, nil
}

func (f *fakeChats) Delete(context.Context, *models.Profile, string) error { return nil }

func (f *fakeChats) Export(_ context.Context, _ *models.Profile, id string, format service.ExportFormat) (string, error) {
	f.format = format
	return "https://files.example.com/" + id, nil
}

type fakePayments struct {
	signature string
	body      []byte
}

func (f *fakePayments) CreateOrder(_ context.Context, _ *models.Profile, plan models.PlanName) (*service.CheckoutOrder, error) {
	if plan == models.PlanFree {
		return nil, service.ErrPlanNotPurchasable
	}
	return &service.CheckoutOrder{OrderID: "order_1", Amount: 49900, Currency: "INR", KeyID: "rzp_test", Plan: plan}, nil
}

func (f *fakePayments) Verify(_ context.Context, _ *models.Profile, in service.VerifyInput) (*service.VerifyResult, error) {
	if in.Signature != "valid" {
		return nil, service.ErrInvalidSignature
	}
	return &service.VerifyResult{Success: true, Plan: models.PlanPlus}, nil
}

func (f *fakePayments) HandleWebhook(_ context.Context, body []byte, signature string) error {
	f.body = body
	f.signature = signature
	if signature == "" {
		return service.ErrInvalidSignature
	}
	return nil
}

type testEnv struct {
	auth     *fakeAuth
	chats    *fakeChats
	payments *fakePayments
	handler  http.Handler
}

func newTestEnv() *testEnv {
	env := &testEnv{
		auth:     &fakeAuth{profile: &models.Profile{ID: "u1", Email: "u1@example.com", Plan: models.PlanFree, QuestionsUsed: 4}},
		chats:    &fakeChats{},
		payments: &fakePayments{},
	}
	plans := service.NewPlanService("sonar")
	profiles := service.NewProfileService(nil, plans)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Config{CookieSecure: true, CORSAllowedOrigins: []string{"https://app.example.com"}}
	env.handler = NewServer(cfg, log, env.auth, env.chats, env.payments, profiles, plans).Handler()
	return env
}

func (e *testEnv) do(method, path, body string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+goodToken)
	for _, m := range mutate {
		m(req)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func withoutAuth(r *http.Request) { r.Header.Del("Authorization") }

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodGet, "/api/profile", "", withoutAuth)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing access token", decode[errorResponse](t, rec).Error)

	rec = env.do(http.MethodGet, "/api/profile", "", func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer expired")
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProfileFromCookie(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodGet, "/api/profile", "", withoutAuth, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: accessCookie, Value: goodToken})
	})
	require.Equal(t, http.StatusOK, rec.Code)

	view := decode[map[string]any](t, rec)
	assert.Equal(t, "u1", view["id"])
	assert.EqualValues(t, 6, view["remaining_questions"])
}

func TestVerifyBadSignatureIs400(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodPost, "/api/payments/verify", `{"razorpay_order_id":"order_1","razorpay_payment_id":"pay_1","razorpay_signature":"forged"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid payment signature", decode[errorResponse](t, rec).Error)

	rec = env.do(http.MethodPost, "/api/payments/verify", `{"razorpay_order_id":"order_1","razorpay_payment_id":"pay_1","razorpay_signature":"valid"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.VerifyResult{Success: true, Plan: models.PlanPlus}, decode[service.VerifyResult](t, rec))
}

func TestCreateOrder(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodPost, "/api/payments/order", `{"plan":"plus"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "order_1", decode[service.CheckoutOrder](t, rec).OrderID)

	rec = env.do(http.MethodPost, "/api/payments/order", `{"plan":"free"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/payments/order", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookPassesRawBodyAndSignature(t *testing.T) {
	env := newTestEnv()
	body := `{"event":"payment.captured"}`

	rec := env.do(http.MethodPost, "/api/payments/webhook", body, withoutAuth, func(r *http.Request) {
		r.Header.Set("X-Razorpay-Signature", "abc123")
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, body, string(env.payments.body))
	assert.Equal(t, "abc123", env.payments.signature)

	rec = env.do(http.MethodPost, "/api/payments/webhook", body, withoutAuth)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionSetsCookiesAndSanitizesRedirect(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodPost, "/api/auth/session", `{"access_token":"good-token","refresh_token":"r1","redirect_to":"//evil.example.com"}`, withoutAuth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/chat", decode[sessionResponse](t, rec).Redirect)

	cookies := map[string]*http.Cookie{}
	for _, c := range rec.Result().Cookies() {
		cookies[c.Name] = c
	}
	require.Contains(t, cookies, accessCookie)
	require.Contains(t, cookies, refreshCookie)
	assert.Equal(t, goodToken, cookies[accessCookie].Value)
	assert.True(t, cookies[accessCookie].HttpOnly)
	assert.True(t, cookies[accessCookie].Secure)
	assert.Equal(t, "r1", cookies[refreshCookie].Value)

	rec = env.do(http.MethodPost, "/api/auth/session", `{"access_token":"good-token"}`, withoutAuth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, auth.DefaultRedirect, env.auth.redirectTo)

	rec = env.do(http.MethodPost, "/api/auth/session", `{"access_token":"stolen"}`, withoutAuth)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}

func TestLoginAndLogout(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodPost, "/api/auth/login", `{"email":"u1@example.com","password":"wrong"}`, withoutAuth)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodPost, "/api/auth/login", `{"email":"u1@example.com","password":"secret","redirect_to":"/billing"}`, withoutAuth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/billing", decode[sessionResponse](t, rec).Redirect)

	rec = env.do(http.MethodPost, "/api/auth/logout", "")
	require.Equal(t, http.StatusOK, rec.Code)
	for _, c := range rec.Result().Cookies() {
		assert.Empty(t, c.Value)
		assert.Negative(t, c.MaxAge)
	}
}

func TestRefreshUsesCookie(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodPost, "/api/auth/refresh", "", withoutAuth, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: refreshCookie, Value: "refresh"})
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 60, decode[sessionResponse](t, rec).ExpiresIn)

	rec = env.do(http.MethodPost, "/api/auth/refresh", "", withoutAuth)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChatLimitReached(t *testing.T) {
	env := newTestEnv()
	env.chats.result = &service.AskResult{
		LimitReached: true,
		Message:      models.Message{Role: models.RoleAssistant, Content: "You have used all 10 questions"},
	}

	rec := env.do(http.MethodPost, "/api/chat", `{"message":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[chatResponse](t, rec)
	assert.True(t, res.LimitReached)
	assert.Contains(t, res.Message.Content, "10 questions")
}

func readEvents(t *testing.T, rec *httptest.ResponseRecorder) []streamEvent {
	t.Helper()
	var events []streamEvent
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var evt streamEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &evt))
		events = append(events, evt)
	}
	return events
}

func TestChatStreamsEvents(t *testing.T) {
	env := newTestEnv()
	env.chats.deltas = []string{"Income ", "tax"}
	env.chats.result = &service.AskResult{ChatID: "c9", Message: models.Message{ID: "m1", Role: models.RoleAssistant, Content: "Income tax"}}

	rec := env.do(http.MethodPost, "/api/chat", `{"message":"hi","stream":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := readEvents(t, rec)
	require.Len(t, events, 3)
	assert.Equal(t, "Income ", *events[0].Delta)
	assert.Equal(t, "tax", *events[1].Delta)
	assert.True(t, events[2].Done)
	assert.Equal(t, "c9", events[2].ChatID)
	assert.Equal(t, "Income tax", events[2].Message.Content)
}

func TestChatStreamReplacesAfterFallback(t *testing.T) {
	env := newTestEnv()
	env.chats.deltas = []string{"partial"}
	env.chats.result = &service.AskResult{ChatID: "c9", Replaced: true, Message: models.Message{Content: "full answer"}}

	events := readEvents(t, env.do(http.MethodPost, "/api/chat", `{"message":"hi","stream":true}`))
	require.Len(t, events, 3)
	assert.Equal(t, "full answer", *events[1].Replace)
	assert.True(t, events[2].Done)
}

func TestChatStreamErrors(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodPost, "/api/chat", `{"message":"  ","stream":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	env.chats.deltas = []string{"par"}
	env.chats.err = errors.New("db password is hunter2")
	events := readEvents(t, env.do(http.MethodPost, "/api/chat", `{"message":"hi","stream":true}`))
	require.Len(t, events, 2)
	assert.Equal(t, "internal server error", events[1].Error)
	assert.True(t, events[1].Done)
}

func TestInternalErrorsAreHidden(t *testing.T) {
	env := newTestEnv()
	env.chats.err = errors.New("db password is hunter2")

	rec := env.do(http.MethodPost, "/api/chat", `{"message":"hi"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decode[errorResponse](t, rec).Error)
}

func TestChatRoutes(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodGet, "/api/chats?limit=5&offset=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, [2]int{5, 10}, env.chats.listed)

	rec = env.do(http.MethodGet, "/api/chats?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodGet, "/api/chats/c2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "chat not found", decode[errorResponse](t, rec).Error)

	rec = env.do(http.MethodPut, "/api/chats/c1", `{"id":"c2"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPut, "/api/chats/c1", `{"title":"mine","user_id":"someone"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", decode[models.Chat](t, rec).UserID)

	rec = env.do(http.MethodPost, "/api/chats/c1/export?format=html", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.ExportHTML, env.chats.format)
	assert.Equal(t, "https://files.example.com/c1", decode[exportResponse](t, rec).URL)

	rec = env.do(http.MethodDelete, "/api/chats/c1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPlansArePublic(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodGet, "/api/plans", "", withoutAuth)
	require.Equal(t, http.StatusOK, rec.Code)
	plans := decode[[]models.Plan](t, rec)
	require.Len(t, plans, 4)
	assert.Equal(t, models.PlanTeam, plans[3].Name)
}

func TestUpdateProfileRejectsLongName(t *testing.T) {
	env := newTestEnv()

	body := `{"name":"` + strings.Repeat("x", 256) + `"}`
	rec := env.do(http.MethodPatch, "/api/profile", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[errorResponse](t, rec).Error, "at most 255")

	rec = env.do(http.MethodPatch, "/api/profile", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
