package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/digkill/finassist/internal/completion"
	"github.com/digkill/finassist/internal/models"
)

const (
	maxMessageRunes = 4000
	maxTitleRunes   = 60
	maxChatMessages = 1000
)

const systemPrompt = `You are a financial and taxation assistant. Answer clearly and concisely, ` +
	`cite the sources you rely on with numbered markers such as [1], and say so when a question ` +
	`needs advice from a licensed professional. Do not invent figures, rates or deadlines.`

type ChatService struct {
	log          *slog.Logger
	plans        *PlanService
	profiles     ProfileStore
	chats        ChatStore
	questions    QuestionStore
	completer    Completer
	storage      ObjectStorage
	historyLimit int
	now          func() time.Time
	newID        func() string
}

type AskInput struct {
	ChatID  string
	Message string
	Model   string
}

type AskResult struct {
	ChatID       string         `json:"chat_id"`
	Message      models.Message `json:"message"`
	LimitReached bool           `json:"limit_reached,omitempty"`
	// Replaced reports that streamed deltas were superseded by Message.Content.
	Replaced bool `json:"-"`
}

// NewChatService wires the chat flow. A nil storage disables transcript export.
func NewChatService(log *slog.Logger, plans *PlanService, profiles ProfileStore, chats ChatStore, questions QuestionStore, completer Completer, storage ObjectStorage, historyLimit int) *ChatService {
	if historyLimit <= 0 {
		historyLimit = 20
	}
	return &ChatService{
		log:          log,
		plans:        plans,
		profiles:     profiles,
		chats:        chats,
		questions:    questions,
		completer:    completer,
		storage:      storage,
		historyLimit: historyLimit,
		now:          func() time.Time { return time.Now().UTC() },
		newID:        uuid.NewString,
	}
}

// Ask answers one user message. With a nil onDelta the completion is fetched
// in one piece; otherwise text fragments are relayed to onDelta as they arrive.
// A spent quota is reported through AskResult.LimitReached, not an error.
func (s *ChatService) Ask(ctx context.Context, profile *models.Profile, in AskInput, onDelta func(string) error) (*AskResult, error) {
	text := strings.TrimSpace(in.Message)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > maxMessageRunes {
		return nil, fmt.Errorf("%w: at most %d characters", ErrMessageTooLong, maxMessageRunes)
	}

	plan := s.plans.ForProfile(profile)
	model, err := s.plans.ResolveModel(plan, in.Model)
	if err != nil {
		return nil, err
	}

	chat, err := s.loadOrNew(ctx, profile, in.ChatID)
	if err != nil {
		return nil, err
	}

	reserved, err := s.profiles.ReserveQuestion(ctx, profile.ID, plan.QuestionLimit)
	if err != nil {
		return nil, fmt.Errorf("reserve question: %w", err)
	}
	if !reserved {
		return &AskResult{
			ChatID:       in.ChatID,
			LimitReached: true,
			Message: models.Message{
				ID:        s.newID(),
				Role:      models.RoleAssistant,
				Content:   LimitMessage(plan),
				Timestamp: s.now(),
			},
		}, nil
	}

	req := completion.Request{Model: model, Messages: s.buildMessages(chat.Messages, text)}
	var result *completion.Result
	if onDelta == nil {
		result, err = s.completer.Complete(ctx, req)
	} else {
		result, err = s.completer.Stream(ctx, req, onDelta)
	}
	if err != nil {
		if releaseErr := s.profiles.ReleaseQuestion(context.WithoutCancel(ctx), profile.ID); releaseErr != nil {
			s.log.Error("failed to release question reservation", "user", profile.ID, "err", releaseErr)
		}
		return nil, fmt.Errorf("completion: %w", err)
	}
	profile.QuestionsUsed++

	asked := s.now()
	answer := models.Message{
		ID:        s.newID(),
		Role:      models.RoleAssistant,
		Content:   result.Content,
		Timestamp: s.now(),
		Citations: result.Citations,
	}
	chat.Messages = append(chat.Messages,
		models.Message{ID: s.newID(), Role: models.RoleUser, Content: text, Timestamp: asked},
		answer,
	)
	chat.Model = model
	if chat.Title == "" {
		chat.Title = titleFrom(text)
	}

	// The answer has already been delivered, so persistence runs to completion
	// even when the client went away.
	persistCtx := context.WithoutCancel(ctx)
	owned, err := s.chats.Upsert(persistCtx, chat)
	if err != nil {
		return nil, fmt.Errorf("save chat: %w", err)
	}
	if !owned {
		return nil, ErrChatNotFound
	}

	entry := models.QuestionLog{UserID: profile.ID, ChatID: chat.ID, Model: model, Plan: plan.Name}
	if err := s.questions.Log(persistCtx, entry); err != nil {
		s.log.Error("failed to log question", "err", err)
	}

	return &AskResult{ChatID: chat.ID, Message: answer, Replaced: result.Replaced}, nil
}

func (s *ChatService) loadOrNew(ctx context.Context, profile *models.Profile, chatID string) (*models.Chat, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return &models.Chat{ID: s.newID(), UserID: profile.ID}, nil
	}
	if _, err := uuid.Parse(chatID); err != nil {
		return nil, fmt.Errorf("%w: chat id must be a uuid", ErrInvalidChat)
	}
	chat, err := s.chats.FindByID(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("load chat: %w", err)
	}
	if chat == nil {
		return &models.Chat{ID: chatID, UserID: profile.ID}, nil
	}
	if chat.UserID != profile.ID {
		return nil, ErrChatNotFound
	}
	return chat, nil
}

// buildMessages assembles the completion request: the system prompt, the
// tail of the history and the new question. Roles strictly alternate and the
// first turn after the system prompt is always the user's.
func (s *ChatService) buildMessages(history []models.Message, question string) []completion.Message {
	turns := make([]completion.Message, 0, len(history)+1)
	for _, msg := range history {
		if msg.Role != models.RoleUser && msg.Role != models.RoleAssistant {
			continue
		}
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		turns = append(turns, completion.Message{Role: msg.Role, Content: msg.Content})
	}
	if len(turns) > s.historyLimit {
		turns = turns[len(turns)-s.historyLimit:]
	}
	turns = append(turns, completion.Message{Role: models.RoleUser, Content: question})

	out := make([]completion.Message, 0, len(turns)+1)
	out = append(out, completion.Message{Role: models.RoleSystem, Content: systemPrompt})
	for _, turn := range turns {
		last := &out[len(out)-1]
		switch {
		case last.Role == models.RoleSystem && turn.Role == models.RoleAssistant:
			continue
		case last.Role == turn.Role:
			last.Content += "\n\n" + turn.Content
		default:
			out = append(out, turn)
		}
	}
	return out
}

func (s *ChatService) List(ctx context.Context, profile *models.Profile, limit, offset int) ([]models.ChatSummary, error) {
	chats, err := s.chats.ListByUser(ctx, profile.ID, clampLimit(limit, 20, 100), max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	if chats == nil {
		chats = []models.ChatSummary{}
	}
	return chats, nil
}

func (s *ChatService) Get(ctx context.Context, profile *models.Profile, id string) (*models.Chat, error) {
	chat, err := s.chats.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load chat: %w", err)
	}
	if chat == nil || chat.UserID != profile.ID {
		return nil, ErrChatNotFound
	}
	return chat, nil
}

// Save stores a client-supplied chat document wholesale.
func (s *ChatService) Save(ctx context.Context, profile *models.Profile, chat *models.Chat) (*models.Chat, error) {
	if _, err := uuid.Parse(chat.ID); err != nil {
		return nil, fmt.Errorf("%w: chat id must be a uuid", ErrInvalidChat)
	}
	if len(chat.Messages) > maxChatMessages {
		return nil, fmt.Errorf("%w: at most %d messages", ErrInvalidChat, maxChatMessages)
	}

	chat.UserID = profile.ID
	if chat.Model == "" {
		chat.Model = s.plans.defaultModel
	}
	for i := range chat.Messages {
		msg := &chat.Messages[i]
		if msg.Role != models.RoleUser && msg.Role != models.RoleAssistant {
			return nil, fmt.Errorf("%w: message %d has role %q", ErrInvalidChat, i, msg.Role)
		}
		if msg.ID == "" {
			msg.ID = s.newID()
		}
		if msg.Timestamp.IsZero() {
			msg.Timestamp = s.now()
		}
	}
	chat.Title = strings.TrimSpace(chat.Title)
	if chat.Title == "" {
		for _, msg := range chat.Messages {
			if msg.Role == models.RoleUser {
				chat.Title = titleFrom(msg.Content)
				break
			}
		}
	}
	if utf8.RuneCountInString(chat.Title) > 255 {
		chat.Title = string([]rune(chat.Title)[:255])
	}

	owned, err := s.chats.Upsert(ctx, chat)
	if err != nil {
		return nil, fmt.Errorf("save chat: %w", err)
	}
	if !owned {
		return nil, ErrChatNotFound
	}
	return chat, nil
}

func (s *ChatService) Delete(ctx context.Context, profile *models.Profile, id string) error {
	deleted, err := s.chats.Delete(ctx, id, profile.ID)
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	if !deleted {
		return ErrChatNotFound
	}
	return nil
}

// Export renders the chat transcript and uploads it, returning a download link.
func (s *ChatService) Export(ctx context.Context, profile *models.Profile, id string, format ExportFormat) (string, error) {
	if s.storage == nil {
		return "", ErrExportDisabled
	}
	chat, err := s.Get(ctx, profile, id)
	if err != nil {
		return "", err
	}
	doc, err := renderTranscript(chat, format)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("%s/%s-%s.%s", profile.ID, chat.ID, s.now().Format("20060102T150405Z"), doc.ext)
	url, err := s.storage.Upload(ctx, key, doc.body, doc.contentType)
	if err != nil {
		return "", fmt.Errorf("upload transcript: %w", err)
	}
	s.log.Info("transcript exported", "user", profile.ID, "chat", chat.ID, "format", doc.ext)
	return url, nil
}

func titleFrom(text string) string {
	title := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(title) <= maxTitleRunes {
		return title
	}
	runes := []rune(title)
	return strings.TrimSpace(string(runes[:maxTitleRunes-3])) + "..."
}
