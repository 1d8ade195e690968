package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/purchase-approval/internal/application/port"
	"github.com/garyjia/purchase-approval/internal/domain/entity"
)

// HistoryRecord is one audit line for a request
type HistoryRecord struct {
	RequestID   int64
	ActorID     int64
	Action      string
	StatusFrom  string
	StatusTo    string
	Description string
	Comment     string
}

type clientInfoKey struct{}

type clientInfo struct {
	ip        string
	userAgent string
}

// WithClientInfo attaches the caller's address and user agent so history
// entries written under ctx carry them.
func WithClientInfo(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, clientInfoKey{}, clientInfo{ip: ip, userAgent: userAgent})
}

func clientInfoFrom(ctx context.Context) clientInfo {
	info, _ := ctx.Value(clientInfoKey{}).(clientInfo)
	return info
}

// HistoryRecorder appends history entries inside the caller's transaction
type HistoryRecorder struct {
	repo port.HistoryRepository
	now  func() time.Time
}

// NewHistoryRecorder creates a new HistoryRecorder
func NewHistoryRecorder(repo port.HistoryRepository) *HistoryRecorder {
	return &HistoryRecorder{repo: repo, now: time.Now}
}

// Record appends rec. Callers must return the error so the surrounding
// transaction rolls back.
func (r *HistoryRecorder) Record(ctx context.Context, rec HistoryRecord) (*entity.HistoryEntry, error) {
	info := clientInfoFrom(ctx)
	entry := &entity.HistoryEntry{
		RequestID:   rec.RequestID,
		ActorID:     rec.ActorID,
		Action:      rec.Action,
		StatusFrom:  rec.StatusFrom,
		StatusTo:    rec.StatusTo,
		Description: rec.Description,
		Comment:     rec.Comment,
		ClientIP:    info.ip,
		UserAgent:   info.userAgent,
		CreatedAt:   r.now(),
	}

	if err := r.repo.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("record history %s for request %d: %w", rec.Action, rec.RequestID, err)
	}
	return entry, nil
}

// List returns the request's history, oldest first
func (r *HistoryRecorder) List(ctx context.Context, requestID int64) ([]*entity.HistoryEntry, error) {
	entries, err := r.repo.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("list history for request %d: %w", requestID, err)
	}
	return entries, nil
}
