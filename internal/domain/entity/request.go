package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseRequest is the request routed through the approval chain
type PurchaseRequest struct {
	ID               int64            `json:"id"`
	Title            string           `json:"title"`
	Description      string           `json:"description,omitempty"`
	RequesterID      int64            `json:"requester_id"`
	Amount           *decimal.Decimal `json:"amount,omitempty"`
	Category         *string          `json:"category,omitempty"`
	Status           string           `json:"status"`
	TemplateID       *int64           `json:"template_id,omitempty"`
	CurrentStepOrder int              `json:"current_step_order"`
	Version          int64            `json:"version"`
	Notes            string           `json:"notes,omitempty"`
	RejectionReason  string           `json:"rejection_reason,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
	CancelledAt      *time.Time       `json:"cancelled_at,omitempty"`
	Steps            []*ApprovalStep  `json:"steps,omitempty"`
}

// IsActive reports whether the request can still be acted on
func (r *PurchaseRequest) IsActive() bool {
	switch r.Status {
	case StatusRejected, StatusCompleted, StatusCancelled:
		return false
	}
	return true
}

// CurrentStep returns the lowest-order PENDING step, or nil when the chain is exhausted
func (r *PurchaseRequest) CurrentStep() *ApprovalStep {
	var current *ApprovalStep
	for _, s := range r.Steps {
		if s.Status != StepStatusPending {
			continue
		}
		if current == nil || s.StepOrder < current.StepOrder {
			current = s
		}
	}
	return current
}

// PendingAfter counts PENDING steps ordered after stepOrder
func (r *PurchaseRequest) PendingAfter(stepOrder int) int {
	n := 0
	for _, s := range r.Steps {
		if s.Status == StepStatusPending && s.StepOrder > stepOrder {
			n++
		}
	}
	return n
}

// NextPendingOrder returns the lowest PENDING step order above stepOrder, or 0
func (r *PurchaseRequest) NextPendingOrder(stepOrder int) int {
	next := 0
	for _, s := range r.Steps {
		if s.Status == StepStatusPending && s.StepOrder > stepOrder && (next == 0 || s.StepOrder < next) {
			next = s.StepOrder
		}
	}
	return next
}

// ApprovalStep is a materialized, request-bound step with a concrete approver
type ApprovalStep struct {
	ID            int64      `json:"id"`
	RequestID     int64      `json:"request_id"`
	ApproverID    int64      `json:"approver_id"`
	RoleName      string     `json:"role_name"`
	StepOrder     int        `json:"step_order"`
	Status        string     `json:"status"`
	Comment       string     `json:"comment,omitempty"`
	ActionTakenAt *time.Time `json:"action_taken_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
