package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/digkill/finassist/internal/auth"
	"github.com/digkill/finassist/internal/completion"
	"github.com/digkill/finassist/internal/models"
	"github.com/digkill/finassist/internal/razorpay"
	"github.com/digkill/finassist/internal/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeProfiles struct {
	mu       sync.Mutex
	rows     map[string]*models.Profile
	released int
}

func newFakeProfiles(profiles ...models.Profile) *fakeProfiles {
	f := &fakeProfiles{rows: map[string]*models.Profile{}}
	for _, p := range profiles {
		p := p
		f.rows[p.ID] = &p
	}
	return f
}

func (f *fakeProfiles) get(id string) models.Profile {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.rows[id]
}

func (f *fakeProfiles) FindByID(_ context.Context, id string) (*models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProfiles) Ensure(_ context.Context, id, email, name string) (*models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.rows[id]; ok {
		cp := *p
		return &cp, nil
	}
	p := &models.Profile{ID: id, Email: email, Name: name, Plan: models.PlanFree}
	f.rows[id] = p
	cp := *p
	return &cp, nil
}

func (f *fakeProfiles) UpdateName(_ context.Context, id, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[id].Name = name
	return nil
}

func (f *fakeProfiles) SetPlan(_ context.Context, id string, plan models.PlanName) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[id].Plan = plan
	return nil
}

func (f *fakeProfiles) ReserveQuestion(_ context.Context, id string, limit int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.rows[id]
	if limit > 0 && p.QuestionsUsed >= limit {
		return false, nil
	}
	p.QuestionsUsed++
	return true, nil
}

func (f *fakeProfiles) ReleaseQuestion(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released++
	if p := f.rows[id]; p.QuestionsUsed > 0 {
		p.QuestionsUsed--
	}
	return nil
}

func (f *fakeProfiles) ResetUsage(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[id].QuestionsUsed = 0
	return nil
}

func (f *fakeProfiles) ResetAllUsage(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.rows {
		p.QuestionsUsed = 0
	}
	return int64(len(f.rows)), nil
}

func (f *fakeProfiles) List(context.Context, models.PlanName, int, int) ([]models.Profile, error) {
	return nil, nil
}

type fakeChats struct {
	mu   sync.Mutex
	rows map[string]models.Chat
}

func newFakeChats(chats ...models.Chat) *fakeChats {
	f := &fakeChats{rows: map[string]models.Chat{}}
	for _, c := range chats {
		f.rows[c.ID] = c
	}
	return f
}

func (f *fakeChats) FindByID(_ context.Context, id string) (*models.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (f *fakeChats) Upsert(_ context.Context, chat *models.Chat) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.rows[chat.ID]; ok && existing.UserID != chat.UserID {
		return false, nil
	}
	cp := *chat
	cp.Messages = append([]models.Message(nil), chat.Messages...)
	f.rows[chat.ID] = cp
	return true, nil
}

func (f *fakeChats) ListByUser(_ context.Context, userID string, _, _ int) ([]models.ChatSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ChatSummary
	for _, c := range f.rows {
		if c.UserID == userID {
			out = append(out, models.ChatSummary{ID: c.ID, Title: c.Title, Model: c.Model})
		}
	}
	return out, nil
}

func (f *fakeChats) Delete(_ context.Context, id, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.rows[id]
	if !ok || c.UserID != userID {
		return false, nil
	}
	delete(f.rows, id)
	return true, nil
}

type fakeQuestions struct {
	mu      sync.Mutex
	entries []models.QuestionLog
	since   []time.Time
}

func (f *fakeQuestions) Log(_ context.Context, entry models.QuestionLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeQuestions) CountSince(_ context.Context, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.since = append(f.since, since)
	return len(f.since) * 10, nil
}

type fakeCompleter struct {
	deltas   []string
	result   *completion.Result
	err      error
	requests []completion.Request
}

func (f *fakeCompleter) Complete(_ context.Context, req completion.Request) (*completion.Result, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeCompleter) Stream(_ context.Context, req completion.Request, onDelta func(string) error) (*completion.Result, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	for _, d := range f.deltas {
		if err := onDelta(d); err != nil {
			return nil, err
		}
	}
	return f.result, nil
}

type fakeGateway struct {
	valid  bool
	orders int
}

func (f *fakeGateway) KeyID() string { return "rzp_test_key" }

func (f *fakeGateway) CreateOrder(_ context.Context, amount int, currency, receipt string, notes map[string]string) (*razorpay.Order, error) {
	f.orders++
	return &razorpay.Order{ID: "order_1", Amount: amount, Currency: currency, Receipt: receipt, Status: "created", Notes: notes}, nil
}

func (f *fakeGateway) VerifyPayment(string, string, string) bool { return f.valid }

type fakePayments struct {
	mu        sync.Mutex
	orders    map[string]models.PaymentOrder
	payments  []models.Payment
	cutoff    time.Time
	completed int
}

func newFakePayments(orders ...models.PaymentOrder) *fakePayments {
	f := &fakePayments{orders: map[string]models.PaymentOrder{}}
	for _, o := range orders {
		f.orders[o.ID] = o
	}
	return f
}

func (f *fakePayments) CreateOrder(_ context.Context, order *models.PaymentOrder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[order.ID] = *order
	return nil
}

func (f *fakePayments) FindOrder(_ context.Context, id string) (*models.PaymentOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (f *fakePayments) CompleteOrder(_ context.Context, payment *models.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.orders[payment.OrderID]
	if o.Status == models.OrderCompleted {
		return repository.ErrOrderAlreadyCompleted
	}
	o.Status = models.OrderCompleted
	f.orders[o.ID] = o
	f.payments = append(f.payments, *payment)
	f.completed++
	return nil
}

func (f *fakePayments) ExpireOrders(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoff = cutoff
	var n int64
	for id, o := range f.orders {
		if o.Status == models.OrderCreated && o.CreatedAt.Before(cutoff) {
			o.Status = models.OrderExpired
			f.orders[id] = o
			n++
		}
	}
	return n, nil
}

func (f *fakePayments) ListPayments(context.Context, string, int) ([]models.Payment, error) {
	return nil, nil
}

type fakeNotifier struct {
	sent chan models.Payment
}

func (f *fakeNotifier) PaymentCompleted(_ context.Context, _ *models.Profile, payment *models.Payment) error {
	f.sent <- *payment
	return nil
}

type fakeStorage struct {
	key         string
	data        []byte
	contentType string
}

func (f *fakeStorage) Upload(_ context.Context, key string, data []byte, contentType string) (string, error) {
	f.key = key
	f.data = data
	f.contentType = contentType
	return "https://files.example.com/" + key, nil
}

type fakeIdentity struct {
	session *auth.Session
	err     error
	signOut int
}

func (f *fakeIdentity) SignIn(context.Context, string, string) (*auth.Session, error) {
	return f.session, f.err
}

func (f *fakeIdentity) SignUp(context.Context, string, string, string) (*auth.Session, error) {
	return f.session, f.err
}

func (f *fakeIdentity) Refresh(context.Context, string) (*auth.Session, error) {
	return f.session, f.err
}

func (f *fakeIdentity) SignOut(context.Context, string) error {
	f.signOut++
	return f.err
}
