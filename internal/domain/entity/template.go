package entity

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ApproverStrategyType selects how a step's approver is resolved
type ApproverStrategyType string

const (
	StrategySpecificUser     ApproverStrategyType = "SPECIFIC_USER"
	StrategyRoleBased        ApproverStrategyType = "ROLE_BASED"
	StrategyManagerHierarchy ApproverStrategyType = "MANAGER_HIERARCHY"
	StrategyDepartmentHead   ApproverStrategyType = "DEPARTMENT_HEAD"
	StrategyUnitManager      ApproverStrategyType = "UNIT_MANAGER"
)

// IsValid reports whether t is a known strategy
func (t ApproverStrategyType) IsValid() bool {
	switch t {
	case StrategySpecificUser, StrategyRoleBased, StrategyManagerHierarchy,
		StrategyDepartmentHead, StrategyUnitManager:
		return true
	}
	return false
}

// WorkflowTemplate is a reusable, amount and category scoped approval chain
type WorkflowTemplate struct {
	ID          int64            `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Active      bool             `json:"active"`
	MinAmount   *decimal.Decimal `json:"min_amount,omitempty"`
	MaxAmount   *decimal.Decimal `json:"max_amount,omitempty"`
	Category    *string          `json:"category,omitempty"`
	Condition   string           `json:"condition,omitempty"`
	IsSystem    bool             `json:"is_system"`
	Steps       []StepDefinition `json:"steps"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// StepDefinition is one slot of a template
type StepDefinition struct {
	ID             int64                `json:"id"`
	TemplateID     int64                `json:"template_id"`
	StepOrder      int                  `json:"step_order"`
	Name           string               `json:"name"`
	Description    string               `json:"description,omitempty"`
	Strategy       ApproverStrategyType `json:"strategy"`
	ApproverUserID *int64               `json:"approver_user_id,omitempty"`
	ApproverRole   string               `json:"approver_role,omitempty"`
	ApprovalLevel  string               `json:"approval_level,omitempty"`
	IsRequired     bool                 `json:"is_required"`
	CanDelegate    bool                 `json:"can_delegate"`
	TimeoutHours   *int                 `json:"timeout_hours,omitempty"`
	Active         bool                 `json:"active"`
}

// MatchesAmount applies the open-ended min/max window. A nil amount matches.
func (t *WorkflowTemplate) MatchesAmount(amount *decimal.Decimal) bool {
	if amount == nil {
		return true
	}
	if t.MinAmount != nil && t.MinAmount.GreaterThan(*amount) {
		return false
	}
	if t.MaxAmount != nil && t.MaxAmount.LessThan(*amount) {
		return false
	}
	return true
}

// MatchesCategory treats a nil request category and a nil template category as wildcards
func (t *WorkflowTemplate) MatchesCategory(category *string) bool {
	if category == nil || t.Category == nil {
		return true
	}
	return *t.Category == *category
}

// Window returns max-min and whether both bounds are set
func (t *WorkflowTemplate) Window() (decimal.Decimal, bool) {
	if t.MinAmount == nil || t.MaxAmount == nil {
		return decimal.Zero, false
	}
	return t.MaxAmount.Sub(*t.MinAmount), true
}

// ActiveSteps returns the active step definitions in ascending StepOrder
func (t *WorkflowTemplate) ActiveSteps() []StepDefinition {
	steps := make([]StepDefinition, 0, len(t.Steps))
	for _, s := range t.Steps {
		if s.Active {
			steps = append(steps, s)
		}
	}
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].StepOrder < steps[j].StepOrder })
	return steps
}
