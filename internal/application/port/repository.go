package port

import (
	"context"
	"time"

	"github.com/garyjia/purchase-approval/internal/domain/entity"
)

// UserDirectory is the identity and role lookup the engine consumes.
// All Find* methods that return lists return active users only, ordered by ID.
type UserDirectory interface {
	FindByID(ctx context.Context, id int64) (*entity.User, error)
	FindByEmail(ctx context.Context, email string) (*entity.User, error)
	FindActiveByRole(ctx context.Context, role string) ([]*entity.User, error)
	FindActiveByRoleInDepartment(ctx context.Context, role, department string) ([]*entity.User, error)
	FindActiveByRoleInUnit(ctx context.Context, role, unit string) ([]*entity.User, error)
	GetManager(ctx context.Context, userID int64) (*entity.User, error)
	RoleExists(ctx context.Context, role string) (bool, error)
	Count(ctx context.Context) (int, error)
	CreateRole(ctx context.Context, role *entity.Role) error
	CreateUser(ctx context.Context, user *entity.User) error
}

// TemplateRepository defines persistence operations for WorkflowTemplate.
// Templates are always returned with their step definitions.
type TemplateRepository interface {
	Create(ctx context.Context, tmpl *entity.WorkflowTemplate) error
	Update(ctx context.Context, tmpl *entity.WorkflowTemplate) error
	GetByID(ctx context.Context, id int64) (*entity.WorkflowTemplate, error)
	GetByName(ctx context.Context, name string) (*entity.WorkflowTemplate, error)
	ExistsByName(ctx context.Context, name string) (bool, error)
	ListActive(ctx context.Context) ([]*entity.WorkflowTemplate, error)
	ListByActive(ctx context.Context, active bool) ([]*entity.WorkflowTemplate, error)
	ListAll(ctx context.Context) ([]*entity.WorkflowTemplate, error)
	ListActiveByCategory(ctx context.Context, category string) ([]*entity.WorkflowTemplate, error)
	Categories(ctx context.Context) ([]string, error)
	SetActive(ctx context.Context, id int64, active bool) error
	Delete(ctx context.Context, id int64) error
}

// StatusUpdate describes a compare-and-swap update of a request row.
// The update applies only while the stored version equals ExpectedVersion.
type StatusUpdate struct {
	RequestID        int64
	ExpectedVersion  int64
	Status           string
	CurrentStepOrder int
	TemplateID       *int64
	RejectionReason  *string
	AppendNote       string
	CompletedAt      *time.Time
	CancelledAt      *time.Time
}

// RequestRepository defines persistence operations for PurchaseRequest
type RequestRepository interface {
	Create(ctx context.Context, req *entity.PurchaseRequest) error
	GetByID(ctx context.Context, id int64) (*entity.PurchaseRequest, error)
	ListByRequester(ctx context.Context, requesterID int64, status string) ([]*entity.PurchaseRequest, error)
	ListByStatus(ctx context.Context, status string) ([]*entity.PurchaseRequest, error)
	ListPendingForApprover(ctx context.Context, approverID int64) ([]*entity.PurchaseRequest, error)
	// UpdateStatus returns ErrStaleVersion when the version check fails
	UpdateStatus(ctx context.Context, upd StatusUpdate) error
}

// StepRepository defines persistence operations for ApprovalStep
type StepRepository interface {
	CreateBatch(ctx context.Context, steps []*entity.ApprovalStep) error
	ListByRequest(ctx context.Context, requestID int64) ([]*entity.ApprovalStep, error)
	// MarkActed moves a PENDING step to status; it returns ErrStepAlreadyActed
	// when the step is no longer PENDING.
	MarkActed(ctx context.Context, stepID int64, status, comment string, at time.Time) error
}

// HistoryRepository defines persistence operations for HistoryEntry. Append-only.
type HistoryRepository interface {
	Append(ctx context.Context, entry *entity.HistoryEntry) error
	ListByRequest(ctx context.Context, requestID int64) ([]*entity.HistoryEntry, error)
}

// TransactionManager runs fn in a transaction carried by the context passed to fn
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
