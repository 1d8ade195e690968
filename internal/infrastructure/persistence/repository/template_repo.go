package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/purchase-approval/internal/application/port"
	"github.com/garyjia/purchase-approval/internal/domain/entity"
	"github.com/garyjia/purchase-approval/internal/infrastructure/persistence/sqlite"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TemplateRepository implements port.TemplateRepository using SQLite
type TemplateRepository struct {
	db     *sql.DB
	tx     *sqlite.DB
	logger *zap.Logger
}

// NewTemplateRepository creates a new TemplateRepository instance
func NewTemplateRepository(db *sql.DB, logger *zap.Logger) *TemplateRepository {
	return &TemplateRepository{
		db:     db,
		tx:     sqlite.NewDB(db, logger),
		logger: logger,
	}
}

const templateSelect = `
	SELECT id, name, description, active, min_amount, max_amount, category,
		condition_expr, is_system, created_at, updated_at
	FROM workflow_templates
`

// Create inserts the template and its step definitions
func (r *TemplateRepository) Create(ctx context.Context, tmpl *entity.WorkflowTemplate) error {
	now := time.Now()
	if tmpl.CreatedAt.IsZero() {
		tmpl.CreatedAt = now
	}
	tmpl.UpdatedAt = now

	return r.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		result, err := sqlite.ExecutorFrom(txCtx, r.db).ExecContext(txCtx, `
			INSERT INTO workflow_templates (name, description, active, min_amount, max_amount,
				category, condition_expr, is_system, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			tmpl.Name, tmpl.Description, tmpl.Active,
			nullDecimal(tmpl.MinAmount), nullDecimal(tmpl.MaxAmount), nullString(tmpl.Category),
			tmpl.Condition, tmpl.IsSystem, tmpl.CreatedAt, tmpl.UpdatedAt)
		if err != nil {
			r.logger.Error("Failed to create template", zap.String("name", tmpl.Name), zap.Error(err))
			return fmt.Errorf("failed to create template: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		tmpl.ID = id

		return r.insertSteps(txCtx, tmpl)
	})
}

// Update rewrites the template row and replaces its step definitions
func (r *TemplateRepository) Update(ctx context.Context, tmpl *entity.WorkflowTemplate) error {
	tmpl.UpdatedAt = time.Now()

	return r.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		exec := sqlite.ExecutorFrom(txCtx, r.db)

		result, err := exec.ExecContext(txCtx, `
			UPDATE workflow_templates
			SET name = ?, description = ?, active = ?, min_amount = ?, max_amount = ?,
				category = ?, condition_expr = ?, updated_at = ?
			WHERE id = ?`,
			tmpl.Name, tmpl.Description, tmpl.Active,
			nullDecimal(tmpl.MinAmount), nullDecimal(tmpl.MaxAmount), nullString(tmpl.Category),
			tmpl.Condition, tmpl.UpdatedAt, tmpl.ID)
		if err != nil {
			r.logger.Error("Failed to update template", zap.Int64("template_id", tmpl.ID), zap.Error(err))
			return fmt.Errorf("failed to update template: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return fmt.Errorf("template not found: %d", tmpl.ID)
		}

		if _, err := exec.ExecContext(txCtx, `DELETE FROM step_definitions WHERE template_id = ?`, tmpl.ID); err != nil {
			return fmt.Errorf("failed to clear step definitions: %w", err)
		}

		return r.insertSteps(txCtx, tmpl)
	})
}

func (r *TemplateRepository) insertSteps(ctx context.Context, tmpl *entity.WorkflowTemplate) error {
	exec := sqlite.ExecutorFrom(ctx, r.db)
	for i := range tmpl.Steps {
		step := &tmpl.Steps[i]
		step.TemplateID = tmpl.ID

		result, err := exec.ExecContext(ctx, `
			INSERT INTO step_definitions (template_id, step_order, name, description, strategy,
				approver_user_id, approver_role, approval_level, is_required, can_delegate,
				timeout_hours, active)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			step.TemplateID, step.StepOrder, step.Name, step.Description, string(step.Strategy),
			nullInt64(step.ApproverUserID), step.ApproverRole, step.ApprovalLevel,
			step.IsRequired, step.CanDelegate, nullInt(step.TimeoutHours), step.Active)
		if err != nil {
			return fmt.Errorf("failed to insert step definition %d: %w", step.StepOrder, err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		step.ID = id
	}
	return nil
}

// GetByID returns nil when the template does not exist
func (r *TemplateRepository) GetByID(ctx context.Context, id int64) (*entity.WorkflowTemplate, error) {
	return r.queryOne(ctx, templateSelect+` WHERE id = ?`, id)
}

// GetByName returns nil when no template has the name
func (r *TemplateRepository) GetByName(ctx context.Context, name string) (*entity.WorkflowTemplate, error) {
	return r.queryOne(ctx, templateSelect+` WHERE name = ?`, name)
}

func (r *TemplateRepository) ExistsByName(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM workflow_templates WHERE name = ?)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check template name: %w", err)
	}
	return exists, nil
}

func (r *TemplateRepository) ListActive(ctx context.Context) ([]*entity.WorkflowTemplate, error) {
	return r.ListByActive(ctx, true)
}

func (r *TemplateRepository) ListByActive(ctx context.Context, active bool) ([]*entity.WorkflowTemplate, error) {
	return r.queryMany(ctx, templateSelect+` WHERE active = ? ORDER BY id`, active)
}

func (r *TemplateRepository) ListAll(ctx context.Context) ([]*entity.WorkflowTemplate, error) {
	return r.queryMany(ctx, templateSelect+` ORDER BY id`)
}

// ListActiveByCategory includes templates without a category
func (r *TemplateRepository) ListActiveByCategory(ctx context.Context, category string) ([]*entity.WorkflowTemplate, error) {
	return r.queryMany(ctx, templateSelect+`
		WHERE active = 1 AND (category = ? OR category IS NULL)
		ORDER BY id`, category)
}

// Categories lists the distinct categories of active templates
func (r *TemplateRepository) Categories(ctx context.Context) ([]string, error) {
	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, `
		SELECT DISTINCT category FROM workflow_templates
		WHERE active = 1 AND category IS NOT NULL
		ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	categories := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (r *TemplateRepository) SetActive(ctx context.Context, id int64, active bool) error {
	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx,
		`UPDATE workflow_templates SET active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now(), id)
	if err != nil {
		r.logger.Error("Failed to set template active flag", zap.Int64("template_id", id), zap.Error(err))
		return fmt.Errorf("failed to set template active flag: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("template not found: %d", id)
	}
	return nil
}

// Delete removes the template; step definitions cascade
func (r *TemplateRepository) Delete(ctx context.Context, id int64) error {
	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx,
		`DELETE FROM workflow_templates WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete template", zap.Int64("template_id", id), zap.Error(err))
		return fmt.Errorf("failed to delete template: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("template not found: %d", id)
	}
	return nil
}

func (r *TemplateRepository) queryOne(ctx context.Context, query string, args ...interface{}) (*entity.WorkflowTemplate, error) {
	templates, err := r.queryMany(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(templates) == 0 {
		return nil, nil
	}
	return templates[0], nil
}

func (r *TemplateRepository) queryMany(ctx context.Context, query string, args ...interface{}) ([]*entity.WorkflowTemplate, error) {
	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query templates", zap.Error(err))
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}

	var templates []*entity.WorkflowTemplate
	for rows.Next() {
		var t entity.WorkflowTemplate
		var minAmount, maxAmount decimal.NullDecimal
		var category sql.NullString

		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.Active, &minAmount, &maxAmount,
			&category, &t.Condition, &t.IsSystem, &t.CreatedAt, &t.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}

		t.MinAmount = decimalPtr(minAmount)
		t.MaxAmount = decimalPtr(maxAmount)
		t.Category = stringPtr(category)
		templates = append(templates, &t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(templates) == 0 {
		return templates, nil
	}
	if err := r.attachSteps(ctx, templates); err != nil {
		return nil, err
	}
	return templates, nil
}

func (r *TemplateRepository) attachSteps(ctx context.Context, templates []*entity.WorkflowTemplate) error {
	byID := make(map[int64]*entity.WorkflowTemplate, len(templates))
	placeholders := make([]string, 0, len(templates))
	args := make([]interface{}, 0, len(templates))
	for _, t := range templates {
		t.Steps = []entity.StepDefinition{}
		byID[t.ID] = t
		placeholders = append(placeholders, "?")
		args = append(args, t.ID)
	}

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, `
		SELECT id, template_id, step_order, name, description, strategy, approver_user_id,
			approver_role, approval_level, is_required, can_delegate, timeout_hours, active
		FROM step_definitions
		WHERE template_id IN (`+strings.Join(placeholders, ",")+`)
		ORDER BY template_id, step_order`, args...)
	if err != nil {
		return fmt.Errorf("failed to query step definitions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s entity.StepDefinition
		var strategy string
		var approverID, timeout sql.NullInt64

		if err := rows.Scan(&s.ID, &s.TemplateID, &s.StepOrder, &s.Name, &s.Description, &strategy,
			&approverID, &s.ApproverRole, &s.ApprovalLevel, &s.IsRequired, &s.CanDelegate,
			&timeout, &s.Active); err != nil {
			return fmt.Errorf("failed to scan step definition: %w", err)
		}

		s.Strategy = entity.ApproverStrategyType(strategy)
		s.ApproverUserID = int64Ptr(approverID)
		s.TimeoutHours = intPtr(timeout)
		if t, ok := byID[s.TemplateID]; ok {
			t.Steps = append(t.Steps, s)
		}
	}
	return rows.Err()
}

var _ port.TemplateRepository = (*TemplateRepository)(nil)
