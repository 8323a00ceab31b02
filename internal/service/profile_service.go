package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/digkill/finassist/internal/models"
)

type ProfileService struct {
	profiles ProfileStore
	plans    *PlanService
}

// ProfileView is a profile together with its plan and quota position.
type ProfileView struct {
	models.Profile
	PlanDetails models.Plan `json:"plan_details"`
	Remaining   int         `json:"remaining_questions"`
}

func NewProfileService(profiles ProfileStore, plans *PlanService) *ProfileService {
	return &ProfileService{profiles: profiles, plans: plans}
}

// Ensure returns the profile for an authenticated subject, creating it on first sight.
func (s *ProfileService) Ensure(ctx context.Context, id, email, name string) (*models.Profile, error) {
	profile, err := s.profiles.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find profile: %w", err)
	}
	if profile != nil {
		return profile, nil
	}
	profile, err = s.profiles.Ensure(ctx, id, email, name)
	if err != nil {
		return nil, fmt.Errorf("ensure profile: %w", err)
	}
	return profile, nil
}

func (s *ProfileService) Get(ctx context.Context, id string) (*models.Profile, error) {
	return s.profiles.FindByID(ctx, id)
}

func (s *ProfileService) View(profile *models.Profile) ProfileView {
	plan := s.plans.ForProfile(profile)
	return ProfileView{
		Profile:     *profile,
		PlanDetails: plan,
		Remaining:   s.plans.Remaining(plan, profile.QuestionsUsed),
	}
}

func (s *ProfileService) UpdateName(ctx context.Context, profile *models.Profile, name string) (*models.Profile, error) {
	name = strings.TrimSpace(name)
	if len([]rune(name)) > 255 {
		return nil, fmt.Errorf("%w: name must be at most 255 characters", ErrInvalidInput)
	}
	if err := s.profiles.UpdateName(ctx, profile.ID, name); err != nil {
		return nil, err
	}
	updated := *profile
	updated.Name = name
	return &updated, nil
}

// SetPlan is an operator override that bypasses checkout.
func (s *ProfileService) SetPlan(ctx context.Context, id string, plan models.PlanName) error {
	p, ok := s.plans.Get(plan)
	if !ok {
		return fmt.Errorf("%w: unknown plan %q", ErrInvalidInput, plan)
	}
	return s.profiles.SetPlan(ctx, id, p.Name)
}

func (s *ProfileService) ResetUsage(ctx context.Context, id string) error {
	return s.profiles.ResetUsage(ctx, id)
}

func (s *ProfileService) ResetAllUsage(ctx context.Context) (int64, error) {
	return s.profiles.ResetAllUsage(ctx)
}

func (s *ProfileService) List(ctx context.Context, plan models.PlanName, limit, offset int) ([]models.Profile, error) {
	profiles, err := s.profiles.List(ctx, plan, clampLimit(limit, 50, 500), max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return profiles, nil
}

func clampLimit(limit, fallback, ceiling int) int {
	if limit <= 0 {
		return fallback
	}
	return min(limit, ceiling)
}
