package service

import (
	"context"
	"fmt"

	"github.com/garyjia/purchase-approval/internal/application/port"
	"github.com/garyjia/purchase-approval/internal/domain/entity"
	"github.com/garyjia/purchase-approval/pkg/apperror"
	"github.com/garyjia/purchase-approval/pkg/expression"
	"github.com/garyjia/purchase-approval/pkg/utils"
	"github.com/shopspring/decimal"
)

// TemplateFilter narrows template listings. A nil Active lists every template.
type TemplateFilter struct {
	Active   *bool
	Category string
}

// TemplateService administers workflow templates
type TemplateService interface {
	Create(ctx context.Context, tmpl *entity.WorkflowTemplate) (*entity.WorkflowTemplate, error)
	Update(ctx context.Context, id int64, tmpl *entity.WorkflowTemplate) (*entity.WorkflowTemplate, error)
	Delete(ctx context.Context, id int64) error
	Deactivate(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*entity.WorkflowTemplate, error)
	List(ctx context.Context, filter TemplateFilter) ([]*entity.WorkflowTemplate, error)
	Categories(ctx context.Context) ([]string, error)
	Match(ctx context.Context, amount *decimal.Decimal, category *string) ([]*entity.WorkflowTemplate, error)
}

type templateServiceImpl struct {
	templates  port.TemplateRepository
	users      port.UserDirectory
	matcher    WorkflowMatcher
	conditions *expression.Engine
	logger     Logger
}

// NewTemplateService creates a new TemplateService
func NewTemplateService(
	templates port.TemplateRepository,
	users port.UserDirectory,
	matcher WorkflowMatcher,
	conditions *expression.Engine,
	logger Logger,
) TemplateService {
	return &templateServiceImpl{
		templates:  templates,
		users:      users,
		matcher:    matcher,
		conditions: conditions,
		logger:     logger,
	}
}

// Create validates and stores a new template with its steps
func (s *templateServiceImpl) Create(ctx context.Context, tmpl *entity.WorkflowTemplate) (*entity.WorkflowTemplate, error) {
	if tmpl == nil {
		return nil, apperror.NewValidationError("", "template is required")
	}
	if err := s.validate(ctx, tmpl); err != nil {
		return nil, err
	}

	exists, err := s.templates.ExistsByName(ctx, tmpl.Name)
	if err != nil {
		return nil, fmt.Errorf("check template name: %w", err)
	}
	if exists {
		return nil, apperror.NewValidationError("name", fmt.Sprintf("template %q already exists", tmpl.Name))
	}

	if err := s.templates.Create(ctx, tmpl); err != nil {
		s.logger.Error("Failed to create template", "error", err, "name", tmpl.Name)
		return nil, fmt.Errorf("create template: %w", err)
	}

	s.logger.Info("Template created", "template_id", tmpl.ID, "name", tmpl.Name, "steps", len(tmpl.Steps))
	return tmpl, nil
}

// Update replaces a template's fields and steps. The system flag is kept.
func (s *templateServiceImpl) Update(ctx context.Context, id int64, tmpl *entity.WorkflowTemplate) (*entity.WorkflowTemplate, error) {
	if tmpl == nil {
		return nil, apperror.NewValidationError("", "template is required")
	}
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.validate(ctx, tmpl); err != nil {
		return nil, err
	}

	if tmpl.Name != existing.Name {
		exists, err := s.templates.ExistsByName(ctx, tmpl.Name)
		if err != nil {
			return nil, fmt.Errorf("check template name: %w", err)
		}
		if exists {
			return nil, apperror.NewValidationError("name", fmt.Sprintf("template %q already exists", tmpl.Name))
		}
	}

	tmpl.ID = id
	tmpl.IsSystem = existing.IsSystem
	tmpl.CreatedAt = existing.CreatedAt
	if err := s.templates.Update(ctx, tmpl); err != nil {
		s.logger.Error("Failed to update template", "error", err, "template_id", id)
		return nil, fmt.Errorf("update template: %w", err)
	}

	s.logger.Info("Template updated", "template_id", id, "name", tmpl.Name)
	return tmpl, nil
}

// Delete removes a non-system template
func (s *templateServiceImpl) Delete(ctx context.Context, id int64) error {
	tmpl, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if tmpl.IsSystem {
		return apperror.NewValidationError("is_system", fmt.Sprintf("system template %q cannot be deleted", tmpl.Name))
	}

	if err := s.templates.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete template: %w", err)
	}

	s.logger.Info("Template deleted", "template_id", id, "name", tmpl.Name)
	return nil
}

func (s *templateServiceImpl) Deactivate(ctx context.Context, id int64) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.templates.SetActive(ctx, id, false); err != nil {
		return fmt.Errorf("deactivate template: %w", err)
	}
	s.logger.Info("Template deactivated", "template_id", id)
	return nil
}

func (s *templateServiceImpl) Get(ctx context.Context, id int64) (*entity.WorkflowTemplate, error) {
	tmpl, err := s.templates.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get template %d: %w", id, err)
	}
	if tmpl == nil {
		return nil, apperror.NewNotFoundError("workflow_template", id)
	}
	return tmpl, nil
}

// List returns templates by category (active only) or by active flag
func (s *templateServiceImpl) List(ctx context.Context, filter TemplateFilter) ([]*entity.WorkflowTemplate, error) {
	var (
		templates []*entity.WorkflowTemplate
		err       error
	)
	switch {
	case filter.Category != "":
		templates, err = s.templates.ListActiveByCategory(ctx, filter.Category)
	case filter.Active != nil:
		templates, err = s.templates.ListByActive(ctx, *filter.Active)
	default:
		templates, err = s.templates.ListAll(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return templates, nil
}

func (s *templateServiceImpl) Categories(ctx context.Context) ([]string, error) {
	categories, err := s.templates.Categories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

func (s *templateServiceImpl) Match(ctx context.Context, amount *decimal.Decimal, category *string) ([]*entity.WorkflowTemplate, error) {
	if err := utils.ValidateAmount(amount); err != nil {
		return nil, apperror.NewValidationError("amount", err.Error())
	}
	return s.matcher.Match(ctx, amount, normalizeCategory(category))
}

// validate normalizes tmpl in place and checks every step reference
func (s *templateServiceImpl) validate(ctx context.Context, tmpl *entity.WorkflowTemplate) error {
	tmpl.Name = utils.SanitizeString(tmpl.Name)
	if tmpl.Name == "" {
		return apperror.NewValidationError("name", "name is required")
	}
	tmpl.Description = utils.SanitizeString(tmpl.Description)
	tmpl.Category = normalizeCategory(tmpl.Category)

	if err := utils.ValidateAmountRange(tmpl.MinAmount, tmpl.MaxAmount); err != nil {
		return apperror.NewValidationError("amount_range", err.Error())
	}

	if tmpl.Condition != "" {
		if err := s.conditions.Compile(tmpl.Condition, ConditionEnv(nil, nil, nil)); err != nil {
			return apperror.NewValidationError("condition", err.Error())
		}
	}

	if len(tmpl.Steps) == 0 {
		return apperror.NewValidationError("steps", "at least one step is required")
	}

	seen := make(map[int]bool, len(tmpl.Steps))
	for i := range tmpl.Steps {
		step := &tmpl.Steps[i]
		if step.StepOrder < 1 {
			return apperror.NewValidationError("step_order", "step order must be positive")
		}
		if seen[step.StepOrder] {
			return apperror.NewValidationError("step_order", fmt.Sprintf("duplicate step order %d", step.StepOrder))
		}
		seen[step.StepOrder] = true

		step.Name = utils.SanitizeString(step.Name)
		if _, err := StrategyFor(*step); err != nil {
			return err
		}
		if err := s.checkReferences(ctx, *step); err != nil {
			return err
		}
	}
	if len(tmpl.ActiveSteps()) == 0 {
		return apperror.NewValidationError("steps", "at least one active step is required")
	}
	return nil
}

func (s *templateServiceImpl) checkReferences(ctx context.Context, step entity.StepDefinition) error {
	if step.ApproverUserID != nil {
		user, err := s.users.FindByID(ctx, *step.ApproverUserID)
		if err != nil {
			return fmt.Errorf("find user %d: %w", *step.ApproverUserID, err)
		}
		if user == nil {
			return apperror.NewNotFoundError("user", *step.ApproverUserID)
		}
	}

	if step.ApproverRole != "" {
		ok, err := s.users.RoleExists(ctx, step.ApproverRole)
		if err != nil {
			return fmt.Errorf("check role %s: %w", step.ApproverRole, err)
		}
		if !ok {
			return apperror.NewNotFoundError("role", step.ApproverRole)
		}
	}
	return nil
}
