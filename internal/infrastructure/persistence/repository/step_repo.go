package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/purchase-approval/internal/application/port"
	"github.com/garyjia/purchase-approval/internal/domain/entity"
	"github.com/garyjia/purchase-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// StepRepository implements port.StepRepository
type StepRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStepRepository creates a new approval step repository
func NewStepRepository(db *sql.DB, logger *zap.Logger) *StepRepository {
	return &StepRepository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch inserts steps in order. Callers run it inside the submit transaction.
func (r *StepRepository) CreateBatch(ctx context.Context, steps []*entity.ApprovalStep) error {
	exec := sqlite.ExecutorFrom(ctx, r.db)
	now := time.Now()

	for _, step := range steps {
		if step.CreatedAt.IsZero() {
			step.CreatedAt = now
		}

		result, err := exec.ExecContext(ctx, `
			INSERT INTO approval_steps (request_id, approver_id, role_name, step_order, status,
				comment, action_taken_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			step.RequestID, step.ApproverID, step.RoleName, step.StepOrder, step.Status,
			step.Comment, nullTime(step.ActionTakenAt), step.CreatedAt)
		if err != nil {
			r.logger.Error("Failed to create approval step",
				zap.Int64("request_id", step.RequestID),
				zap.Int("step_order", step.StepOrder),
				zap.Error(err))
			return fmt.Errorf("failed to create approval step %d: %w", step.StepOrder, err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		step.ID = id
	}

	return nil
}

// ListByRequest returns the request's steps ordered by step_order
func (r *StepRepository) ListByRequest(ctx context.Context, requestID int64) ([]*entity.ApprovalStep, error) {
	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, `
		SELECT id, request_id, approver_id, role_name, step_order, status, comment,
			action_taken_at, created_at
		FROM approval_steps
		WHERE request_id = ?
		ORDER BY step_order`, requestID)
	if err != nil {
		r.logger.Error("Failed to query approval steps", zap.Int64("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("failed to query approval steps: %w", err)
	}
	defer rows.Close()

	steps := []*entity.ApprovalStep{}
	for rows.Next() {
		var s entity.ApprovalStep
		var actedAt sql.NullTime

		if err := rows.Scan(&s.ID, &s.RequestID, &s.ApproverID, &s.RoleName, &s.StepOrder,
			&s.Status, &s.Comment, &actedAt, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan approval step: %w", err)
		}
		s.ActionTakenAt = timePtr(actedAt)
		steps = append(steps, &s)
	}

	return steps, rows.Err()
}

// MarkActed records a decision on a PENDING step
func (r *StepRepository) MarkActed(ctx context.Context, stepID int64, status, comment string, at time.Time) error {
	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, `
		UPDATE approval_steps
		SET status = ?, comment = ?, action_taken_at = ?
		WHERE id = ? AND status = ?`,
		status, comment, at, stepID, entity.StepStatusPending)
	if err != nil {
		r.logger.Error("Failed to update approval step", zap.Int64("step_id", stepID), zap.Error(err))
		return fmt.Errorf("failed to update approval step: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return port.ErrStepAlreadyActed
	}

	return nil
}

var _ port.StepRepository = (*StepRepository)(nil)
