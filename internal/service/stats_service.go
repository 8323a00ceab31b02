package service

import (
	"context"
	"time"
)

type Stats struct {
	QuestionsToday     int `json:"questions_today"`
	QuestionsThisMonth int `json:"questions_this_month"`
}

type StatsService struct {
	questions QuestionStore
	now       func() time.Time
}

func NewStatsService(questions QuestionStore) *StatsService {
	return &StatsService{questions: questions, now: func() time.Time { return time.Now().UTC() }}
}

// Answered counts answered questions since UTC midnight and since the first of the month.
func (s *StatsService) Answered(ctx context.Context) (*Stats, error) {
	now := s.now()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	today, err := s.questions.CountSince(ctx, day)
	if err != nil {
		return nil, err
	}
	monthly, err := s.questions.CountSince(ctx, month)
	if err != nil {
		return nil, err
	}
	return &Stats{QuestionsToday: today, QuestionsThisMonth: monthly}, nil
}
