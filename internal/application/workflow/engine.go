package workflow

import (
	"context"

	"github.com/garyjia/purchase-approval/internal/domain/entity"
	"github.com/garyjia/purchase-approval/internal/domain/event"
	domainwf "github.com/garyjia/purchase-approval/internal/domain/workflow"
)

// WorkflowEngine applies lifecycle transitions to purchase requests
type WorkflowEngine interface {
	// Transition fires the trigger for the request inside the transaction
	// carried by ctx, persists the new status and records history
	Transition(ctx context.Context, in TransitionInput) (*TransitionResult, error)

	// CanFire reports whether the trigger is allowed from the request's status
	CanFire(ctx context.Context, req *entity.PurchaseRequest, trigger domainwf.Trigger, remainingSteps int) bool

	// AvailableTriggers lists the triggers configured for the request's status
	AvailableTriggers(req *entity.PurchaseRequest) []domainwf.Trigger
}

// TransitionInput describes one lifecycle transition
type TransitionInput struct {
	Request *entity.PurchaseRequest
	Trigger domainwf.Trigger
	ActorID int64

	// Action is the history action recorded for the transition
	Action      string
	Description string
	Comment     string

	// RemainingSteps feeds the approve guards
	RemainingSteps   int
	CurrentStepOrder int
	TemplateID       *int64
	RejectionReason  *string
	AppendNote       string
}

// TransitionResult reports a successful transition
type TransitionResult struct {
	From    domainwf.State
	To      domainwf.State
	History *entity.HistoryEntry
	Event   *event.Event
}
