package service

import (
	"fmt"
	"slices"
	"strings"

	"github.com/digkill/finassist/internal/models"
)

const (
	modelSonar             = "sonar"
	modelSonarPro          = "sonar-pro"
	modelSonarReasoningPro = "sonar-reasoning-pro"
)

var catalog = []models.Plan{
	{Name: models.PlanFree, Title: "Free", QuestionLimit: 10, PriceMinorUnits: 0, Models: []string{modelSonar}},
	{Name: models.PlanPlus, Title: "Plus", QuestionLimit: 100, PriceMinorUnits: 49900, Models: []string{modelSonar, modelSonarPro}},
	{Name: models.PlanPro, Title: "Pro", QuestionLimit: 500, PriceMinorUnits: 99900, Models: []string{modelSonar, modelSonarPro, modelSonarReasoningPro}},
	{Name: models.PlanTeam, Title: "Team", QuestionLimit: 0, PriceMinorUnits: 299900, Models: []string{modelSonar, modelSonarPro, modelSonarReasoningPro}},
}

// PlanService answers questions about the static plan catalog.
type PlanService struct {
	defaultModel string
}

func NewPlanService(defaultModel string) *PlanService {
	if defaultModel == "" {
		defaultModel = modelSonar
	}
	return &PlanService{defaultModel: defaultModel}
}

func (s *PlanService) List() []models.Plan {
	return slices.Clone(catalog)
}

// Get returns the named plan. Unknown names resolve to false.
func (s *PlanService) Get(name models.PlanName) (models.Plan, bool) {
	name = models.PlanName(strings.ToLower(strings.TrimSpace(string(name))))
	for _, p := range catalog {
		if p.Name == name {
			return p, true
		}
	}
	return models.Plan{}, false
}

// ForProfile returns the plan a profile is on, treating unknown values as free.
func (s *PlanService) ForProfile(profile *models.Profile) models.Plan {
	if p, ok := s.Get(profile.Plan); ok {
		return p
	}
	p, _ := s.Get(models.PlanFree)
	return p
}

// Purchasable returns the plan if it can be bought through checkout.
func (s *PlanService) Purchasable(name models.PlanName) (models.Plan, error) {
	p, ok := s.Get(name)
	if !ok || p.PriceMinorUnits <= 0 {
		return models.Plan{}, fmt.Errorf("%w: %q", ErrPlanNotPurchasable, name)
	}
	return p, nil
}

// LimitReached reports whether used questions exhaust the plan. Unlimited plans never do.
func (s *PlanService) LimitReached(plan models.Plan, used int) bool {
	if plan.Unlimited() {
		return false
	}
	return used >= plan.QuestionLimit
}

// Remaining returns the questions left, or -1 for unlimited plans.
func (s *PlanService) Remaining(plan models.Plan, used int) int {
	if plan.Unlimited() {
		return -1
	}
	return max(plan.QuestionLimit-used, 0)
}

// ResolveModel picks the model for a request: the requested one when the plan
// allows it, otherwise the default.
func (s *PlanService) ResolveModel(plan models.Plan, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		if slices.Contains(plan.Models, s.defaultModel) {
			return s.defaultModel, nil
		}
		return plan.Models[0], nil
	}
	if !slices.Contains(plan.Models, requested) {
		return "", fmt.Errorf("%w: %s is not available on the %s plan", ErrModelNotAllowed, requested, plan.Title)
	}
	return requested, nil
}

// LimitMessage is the assistant reply shown instead of a model answer once the quota is spent.
func LimitMessage(plan models.Plan) string {
	return fmt.Sprintf("You have used all %d questions included in the %s plan. Upgrade your plan to keep asking questions.", plan.QuestionLimit, plan.Title)
}
