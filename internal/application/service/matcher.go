package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/garyjia/purchase-approval/internal/application/port"
	"github.com/garyjia/purchase-approval/internal/domain/entity"
	"github.com/garyjia/purchase-approval/pkg/expression"
	"github.com/shopspring/decimal"
)

// MatchInput is what Select knows about a request being routed
type MatchInput struct {
	Amount    *decimal.Decimal
	Category  *string
	Requester *entity.User
}

// WorkflowMatcher finds the workflow templates that apply to a request
type WorkflowMatcher interface {
	// Match returns every active template whose amount window and category
	// accept the request, ordered by ID. A nil amount skips the amount filter.
	Match(ctx context.Context, amount *decimal.Decimal, category *string) ([]*entity.WorkflowTemplate, error)

	// Select picks one template for the request, or nil when none applies
	Select(ctx context.Context, in MatchInput) (*entity.WorkflowTemplate, error)
}

type workflowMatcherImpl struct {
	templates  port.TemplateRepository
	conditions *expression.Engine
	logger     Logger
}

// NewWorkflowMatcher creates a new WorkflowMatcher
func NewWorkflowMatcher(templates port.TemplateRepository, conditions *expression.Engine, logger Logger) WorkflowMatcher {
	return &workflowMatcherImpl{
		templates:  templates,
		conditions: conditions,
		logger:     logger,
	}
}

func (m *workflowMatcherImpl) Match(ctx context.Context, amount *decimal.Decimal, category *string) ([]*entity.WorkflowTemplate, error) {
	var (
		candidates []*entity.WorkflowTemplate
		err        error
	)
	if category != nil {
		candidates, err = m.templates.ListActiveByCategory(ctx, *category)
	} else {
		candidates, err = m.templates.ListActive(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}

	matched := make([]*entity.WorkflowTemplate, 0, len(candidates))
	for _, t := range candidates {
		if t.Active && t.MatchesAmount(amount) && t.MatchesCategory(category) {
			matched = append(matched, t)
		}
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return matched, nil
}

func (m *workflowMatcherImpl) Select(ctx context.Context, in MatchInput) (*entity.WorkflowTemplate, error) {
	matched, err := m.Match(ctx, in.Amount, in.Category)
	if err != nil {
		return nil, err
	}

	env := ConditionEnv(in.Amount, in.Category, in.Requester)
	eligible := matched[:0]
	for _, t := range matched {
		ok, err := m.conditions.EvaluateBool(t.Condition, env)
		if err != nil {
			m.logger.Error("Template condition failed, skipping template",
				"template_id", t.ID,
				"template", t.Name,
				"error", err,
			)
			continue
		}
		if ok {
			eligible = append(eligible, t)
		}
	}

	if len(eligible) == 0 {
		return nil, nil
	}

	sort.SliceStable(eligible, func(i, j int) bool { return moreSpecific(eligible[i], eligible[j]) })
	return eligible[0], nil
}

// moreSpecific orders templates for Select: a bounded amount window beats an
// open one, a narrower window beats a wider one, a category-specific template
// beats a wildcard, and the lowest ID breaks remaining ties.
func moreSpecific(a, b *entity.WorkflowTemplate) bool {
	wa, boundedA := a.Window()
	wb, boundedB := b.Window()
	if boundedA != boundedB {
		return boundedA
	}
	if boundedA && !wa.Equal(wb) {
		return wa.LessThan(wb)
	}

	specificA, specificB := a.Category != nil, b.Category != nil
	if specificA != specificB {
		return specificA
	}

	return a.ID < b.ID
}

// ConditionEnv is the variable set template conditions are evaluated against.
// Every key is always present so conditions compile against a stable schema.
func ConditionEnv(amount *decimal.Decimal, category *string, requester *entity.User) map[string]interface{} {
	env := map[string]interface{}{
		"amount":          0.0,
		"has_amount":      false,
		"category":        "",
		"department":      "",
		"unit":            "",
		"requester_roles": []string{},
	}
	if amount != nil {
		env["amount"] = amount.InexactFloat64()
		env["has_amount"] = true
	}
	if category != nil {
		env["category"] = *category
	}
	if requester != nil {
		env["department"] = requester.Department
		env["unit"] = requester.Unit
		if requester.Roles != nil {
			env["requester_roles"] = requester.Roles
		}
	}
	return env
}
