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

// HistoryRepository implements port.HistoryRepository
type HistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB, logger *zap.Logger) *HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Append creates a new history entry. Existing entries cannot be changed.
func (r *HistoryRepository) Append(ctx context.Context, entry *entity.HistoryEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, `
		INSERT INTO request_history (request_id, actor_id, action, status_from, status_to,
			description, comment, client_ip, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RequestID, entry.ActorID, entry.Action, entry.StatusFrom, entry.StatusTo,
		entry.Description, entry.Comment, entry.ClientIP, entry.UserAgent, entry.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to append history entry",
			zap.Int64("request_id", entry.RequestID),
			zap.String("action", entry.Action),
			zap.Error(err))
		return fmt.Errorf("failed to append history entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	entry.ID = id

	return nil
}

// ListByRequest returns entries oldest first
func (r *HistoryRepository) ListByRequest(ctx context.Context, requestID int64) ([]*entity.HistoryEntry, error) {
	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, `
		SELECT id, request_id, actor_id, action, status_from, status_to, description,
			comment, client_ip, user_agent, created_at
		FROM request_history
		WHERE request_id = ?
		ORDER BY created_at, id`, requestID)
	if err != nil {
		r.logger.Error("Failed to query history", zap.Int64("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	entries := []*entity.HistoryEntry{}
	for rows.Next() {
		var e entity.HistoryEntry
		if err := rows.Scan(&e.ID, &e.RequestID, &e.ActorID, &e.Action, &e.StatusFrom,
			&e.StatusTo, &e.Description, &e.Comment, &e.ClientIP, &e.UserAgent,
			&e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}

var _ port.HistoryRepository = (*HistoryRepository)(nil)
