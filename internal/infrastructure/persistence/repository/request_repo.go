package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/purchase-approval/internal/application/port"
	"github.com/garyjia/purchase-approval/internal/domain/entity"
	"github.com/garyjia/purchase-approval/internal/infrastructure/persistence/sqlite"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RequestRepository implements port.RequestRepository
type RequestRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRequestRepository creates a new purchase request repository
func NewRequestRepository(db *sql.DB, logger *zap.Logger) *RequestRepository {
	return &RequestRepository{
		db:     db,
		logger: logger,
	}
}

const requestSelect = `
	SELECT r.id, r.title, r.description, r.requester_id, r.amount, r.category, r.status,
		r.template_id, r.current_step_order, r.version, r.notes, r.rejection_reason,
		r.created_at, r.updated_at, r.completed_at, r.cancelled_at
	FROM purchase_requests r
`

// Create inserts a new request. Version starts at zero.
func (r *RequestRepository) Create(ctx context.Context, req *entity.PurchaseRequest) error {
	now := time.Now()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = req.CreatedAt
	req.Version = 0

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, `
		INSERT INTO purchase_requests (title, description, requester_id, amount, category, status,
			template_id, current_step_order, version, notes, rejection_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.Title, req.Description, req.RequesterID, nullDecimal(req.Amount), nullString(req.Category),
		req.Status, nullInt64(req.TemplateID), req.CurrentStepOrder, req.Version,
		req.Notes, req.RejectionReason, req.CreatedAt, req.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to create purchase request",
			zap.Int64("requester_id", req.RequesterID),
			zap.Error(err))
		return fmt.Errorf("failed to create purchase request: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	req.ID = id

	r.logger.Debug("Purchase request created",
		zap.Int64("request_id", req.ID),
		zap.String("status", req.Status))

	return nil
}

// GetByID returns nil when the request does not exist. Steps are not loaded.
func (r *RequestRepository) GetByID(ctx context.Context, id int64) (*entity.PurchaseRequest, error) {
	requests, err := r.query(ctx, requestSelect+` WHERE r.id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(requests) == 0 {
		return nil, nil
	}
	return requests[0], nil
}

// ListByRequester lists the requester's requests, newest first. An empty
// status lists all of them.
func (r *RequestRepository) ListByRequester(ctx context.Context, requesterID int64, status string) ([]*entity.PurchaseRequest, error) {
	if status == "" {
		return r.query(ctx, requestSelect+` WHERE r.requester_id = ? ORDER BY r.created_at DESC, r.id DESC`, requesterID)
	}
	return r.query(ctx, requestSelect+`
		WHERE r.requester_id = ? AND r.status = ?
		ORDER BY r.created_at DESC, r.id DESC`, requesterID, status)
}

func (r *RequestRepository) ListByStatus(ctx context.Context, status string) ([]*entity.PurchaseRequest, error) {
	return r.query(ctx, requestSelect+` WHERE r.status = ? ORDER BY r.created_at DESC, r.id DESC`, status)
}

// ListPendingForApprover lists in-approval requests whose current step is
// assigned to the approver
func (r *RequestRepository) ListPendingForApprover(ctx context.Context, approverID int64) ([]*entity.PurchaseRequest, error) {
	return r.query(ctx, requestSelect+`
		JOIN approval_steps s ON s.request_id = r.id AND s.step_order = r.current_step_order
		WHERE r.status = ? AND s.status = ? AND s.approver_id = ?
		ORDER BY r.created_at, r.id`,
		entity.StatusInApproval, entity.StepStatusPending, approverID)
}

// UpdateStatus applies upd only while the stored version matches and bumps
// the version. Notes are appended, never replaced.
func (r *RequestRepository) UpdateStatus(ctx context.Context, upd port.StatusUpdate) error {
	now := time.Now()

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, `
		UPDATE purchase_requests
		SET status = ?,
			current_step_order = ?,
			template_id = COALESCE(?, template_id),
			rejection_reason = COALESCE(?, rejection_reason),
			notes = CASE
				WHEN ? = '' THEN notes
				WHEN notes = '' THEN ?
				ELSE notes || char(10) || ?
			END,
			completed_at = COALESCE(?, completed_at),
			cancelled_at = COALESCE(?, cancelled_at),
			updated_at = ?,
			version = version + 1
		WHERE id = ? AND version = ?`,
		upd.Status, upd.CurrentStepOrder, nullInt64(upd.TemplateID), nullString(upd.RejectionReason),
		upd.AppendNote, upd.AppendNote, upd.AppendNote,
		nullTime(upd.CompletedAt), nullTime(upd.CancelledAt), now,
		upd.RequestID, upd.ExpectedVersion)
	if err != nil {
		r.logger.Error("Failed to update purchase request status",
			zap.Int64("request_id", upd.RequestID),
			zap.String("status", upd.Status),
			zap.Error(err))
		return fmt.Errorf("failed to update purchase request status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		r.logger.Warn("Purchase request version check failed",
			zap.Int64("request_id", upd.RequestID),
			zap.Int64("expected_version", upd.ExpectedVersion))
		return port.ErrStaleVersion
	}

	return nil
}

func (r *RequestRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.PurchaseRequest, error) {
	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query purchase requests", zap.Error(err))
		return nil, fmt.Errorf("failed to query purchase requests: %w", err)
	}
	defer rows.Close()

	requests := []*entity.PurchaseRequest{}
	for rows.Next() {
		var req entity.PurchaseRequest
		var amount decimal.NullDecimal
		var category sql.NullString
		var templateID sql.NullInt64
		var completedAt, cancelledAt sql.NullTime

		if err := rows.Scan(&req.ID, &req.Title, &req.Description, &req.RequesterID, &amount,
			&category, &req.Status, &templateID, &req.CurrentStepOrder, &req.Version,
			&req.Notes, &req.RejectionReason, &req.CreatedAt, &req.UpdatedAt,
			&completedAt, &cancelledAt); err != nil {
			return nil, fmt.Errorf("failed to scan purchase request: %w", err)
		}

		req.Amount = decimalPtr(amount)
		req.Category = stringPtr(category)
		req.TemplateID = int64Ptr(templateID)
		req.CompletedAt = timePtr(completedAt)
		req.CancelledAt = timePtr(cancelledAt)
		requests = append(requests, &req)
	}

	return requests, rows.Err()
}

var _ port.RequestRepository = (*RequestRepository)(nil)
