package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/purchase-approval/internal/application/port"
	"github.com/garyjia/purchase-approval/internal/domain/entity"
	"github.com/garyjia/purchase-approval/internal/domain/event"
	domainwf "github.com/garyjia/purchase-approval/internal/domain/workflow"
	"github.com/garyjia/purchase-approval/pkg/apperror"
	"github.com/garyjia/purchase-approval/pkg/metrics"
)

// engineImpl is the concrete implementation of WorkflowEngine. It holds no
// per-request state; machines are rebuilt from the stored status on every call.
type engineImpl struct {
	requestRepo port.RequestRepository
	history     *HistoryRecorder
	now         func() time.Time
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithClock overrides the time source
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
		e.history.now = now
	}
}

// NewEngine creates a new workflow engine
func NewEngine(
	requestRepo port.RequestRepository,
	history *HistoryRecorder,
	opts ...EngineOption,
) WorkflowEngine {
	e := &engineImpl{
		requestRepo: requestRepo,
		history:     history,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Transition triggers a state transition for a request
func (e *engineImpl) Transition(ctx context.Context, in TransitionInput) (*TransitionResult, error) {
	req := in.Request
	if req == nil {
		return nil, fmt.Errorf("transition %s: request cannot be nil", in.Trigger)
	}

	machine, err := BuildRequestStateMachine(domainwf.State(req.Status))
	if err != nil {
		return nil, fmt.Errorf("request %d: %w", req.ID, err)
	}

	previousState := machine.State()

	if err := machine.Fire(domainwf.WithRemainingSteps(ctx, in.RemainingSteps), in.Trigger); err != nil {
		if errors.Is(err, domainwf.ErrInvalidTransition) || errors.Is(err, domainwf.ErrGuardFailed) {
			return nil, apperror.NewIllegalStateError(actionVerb(in.Trigger), req.Status)
		}
		return nil, fmt.Errorf("state machine fire failed: %w", err)
	}

	newState := machine.State()
	now := e.now()

	upd := port.StatusUpdate{
		RequestID:        req.ID,
		ExpectedVersion:  req.Version,
		Status:           newState.String(),
		CurrentStepOrder: in.CurrentStepOrder,
		TemplateID:       in.TemplateID,
		AppendNote:       in.AppendNote,
	}
	if newState == domainwf.StateRejected && in.RejectionReason != nil {
		upd.RejectionReason = in.RejectionReason
	}
	switch newState {
	case domainwf.StateApproved:
		upd.CompletedAt = &now
	case domainwf.StateCompleted:
		// The approval time stays; completion is dated by its history entry
		if req.CompletedAt == nil {
			upd.CompletedAt = &now
		}
	case domainwf.StateCancelled:
		upd.CancelledAt = &now
	}

	if err := e.requestRepo.UpdateStatus(ctx, upd); err != nil {
		if errors.Is(err, port.ErrStaleVersion) {
			metrics.WorkflowConflictsTotal.Inc()
			return nil, apperror.NewConflictError("purchase_request",
				fmt.Sprintf("request %d was modified by another action", req.ID))
		}
		return nil, fmt.Errorf("failed to update request status: %w", err)
	}

	applyUpdate(req, upd, now)

	entry, err := e.history.Record(ctx, HistoryRecord{
		RequestID:   req.ID,
		ActorID:     in.ActorID,
		Action:      in.Action,
		StatusFrom:  previousState.String(),
		StatusTo:    newState.String(),
		Description: in.Description,
		Comment:     in.Comment,
	})
	if err != nil {
		return nil, err
	}

	statusEvent := event.NewEvent(event.TypeStatusChanged, req.ID, map[string]interface{}{
		event.KeyStatusFrom:  previousState.String(),
		event.KeyStatusTo:    newState.String(),
		event.KeyActorID:     in.ActorID,
		event.KeyRequesterID: req.RequesterID,
		"trigger":            in.Trigger.String(),
	})

	return &TransitionResult{
		From:    previousState,
		To:      newState,
		History: entry,
		Event:   statusEvent,
	}, nil
}

// CanFire builds a throwaway machine for the request's status
func (e *engineImpl) CanFire(ctx context.Context, req *entity.PurchaseRequest, trigger domainwf.Trigger, remainingSteps int) bool {
	machine, err := BuildRequestStateMachine(domainwf.State(req.Status))
	if err != nil {
		return false
	}
	return machine.CanFire(domainwf.WithRemainingSteps(ctx, remainingSteps), trigger)
}

func (e *engineImpl) AvailableTriggers(req *entity.PurchaseRequest) []domainwf.Trigger {
	machine, err := BuildRequestStateMachine(domainwf.State(req.Status))
	if err != nil {
		return []domainwf.Trigger{}
	}
	return machine.PermittedTriggers()
}

// applyUpdate mirrors a successful StatusUpdate onto the loaded request
func applyUpdate(req *entity.PurchaseRequest, upd port.StatusUpdate, now time.Time) {
	req.Status = upd.Status
	req.CurrentStepOrder = upd.CurrentStepOrder
	req.Version++
	req.UpdatedAt = now
	if upd.TemplateID != nil {
		req.TemplateID = upd.TemplateID
	}
	if upd.RejectionReason != nil {
		req.RejectionReason = *upd.RejectionReason
	}
	if upd.AppendNote != "" {
		if req.Notes == "" {
			req.Notes = upd.AppendNote
		} else {
			req.Notes += "\n" + upd.AppendNote
		}
	}
	if upd.CompletedAt != nil {
		req.CompletedAt = upd.CompletedAt
	}
	if upd.CancelledAt != nil {
		req.CancelledAt = upd.CancelledAt
	}
}

// actionVerb turns START_PURCHASE into "start purchase"
func actionVerb(t domainwf.Trigger) string {
	return strings.ToLower(strings.ReplaceAll(t.String(), "_", " "))
}
