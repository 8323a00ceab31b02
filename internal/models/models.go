package models

import "time"

type PlanName string

const (
	PlanFree PlanName = "free"
	PlanPlus PlanName = "plus"
	PlanPro  PlanName = "pro"
	PlanTeam PlanName = "team"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type OrderStatus string

const (
	OrderCreated   OrderStatus = "created"
	OrderCompleted OrderStatus = "completed"
	OrderExpired   OrderStatus = "expired"
)

type Profile struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Plan          PlanName   `json:"plan"`
	QuestionsUsed int        `json:"questions_used"`
	UsageResetAt  *time.Time `json:"usage_reset_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Plan is a subscription tier. A QuestionLimit of zero or less means unlimited.
type Plan struct {
	Name            PlanName `json:"name"`
	Title           string   `json:"title"`
	QuestionLimit   int      `json:"question_limit"`
	PriceMinorUnits int      `json:"price_minor_units"`
	Models          []string `json:"models"`
}

func (p Plan) Unlimited() bool {
	return p.QuestionLimit <= 0
}

type Citation struct {
	Index int    `json:"index"`
	URL   string `json:"url"`
}

type Message struct {
	ID        string     `json:"id"`
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Timestamp time.Time  `json:"timestamp"`
	Citations []Citation `json:"citations,omitempty"`
}

type Chat struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatSummary is a chat row without its transcript.
type ChatSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	UpdatedAt time.Time `json:"updated_at"`
}

type PaymentOrder struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id"`
	Plan      PlanName    `json:"plan"`
	Amount    int         `json:"amount"`
	Currency  string      `json:"currency"`
	Receipt   string      `json:"receipt"`
	Status    OrderStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type Payment struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	Plan      PlanName  `json:"plan"`
	Amount    int       `json:"amount"`
	Currency  string    `json:"currency"`
	Signature string    `json:"-"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type QuestionLog struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	ChatID    string    `json:"chat_id"`
	Model     string    `json:"model"`
	Plan      PlanName  `json:"plan"`
	CreatedAt time.Time `json:"created_at"`
}
