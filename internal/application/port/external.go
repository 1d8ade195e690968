package port

import (
	"context"

	"github.com/garyjia/purchase-approval/internal/domain/entity"
)

// Notification is a message to a single user about a request
type Notification struct {
	RecipientID int64
	RequestID   int64
	Subject     string
	Body        string
}

// Notifier delivers notifications to approvers and requesters
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// HistoryExporter renders a request's history as a downloadable document
type HistoryExporter interface {
	Export(ctx context.Context, req *entity.PurchaseRequest, entries []*entity.HistoryEntry) ([]byte, error)
	ContentType() string
	FileExtension() string
}
