package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/purchase-approval/internal/application/port"
	"github.com/garyjia/purchase-approval/internal/application/workflow"
	"github.com/garyjia/purchase-approval/internal/domain/entity"
	"github.com/garyjia/purchase-approval/internal/domain/event"
	domainwf "github.com/garyjia/purchase-approval/internal/domain/workflow"
	"github.com/garyjia/purchase-approval/pkg/apperror"
	"github.com/garyjia/purchase-approval/pkg/metrics"
	"github.com/garyjia/purchase-approval/pkg/utils"
	"github.com/shopspring/decimal"
)

// SubmitInput describes a new purchase request
type SubmitInput struct {
	RequesterID int64
	Title       string
	Description string
	Amount      *decimal.Decimal
	Category    *string
}

// ActionInput is an approver's decision on the current step
type ActionInput struct {
	RequestID int64
	ActorID   int64
	Comment   string
	Reason    string
}

// CancelInput is a requester's cancellation
type CancelInput struct {
	RequestID int64
	ActorID   int64
	Reason    string
}

// HistoryExport is a rendered history document
type HistoryExport struct {
	Filename    string
	ContentType string
	Data        []byte
}

// EventPublisher receives domain events once their transaction committed
type EventPublisher interface {
	Publish(ctx context.Context, events ...*event.Event)
}

// ApprovalService drives purchase requests through their approval chain
type ApprovalService interface {
	Submit(ctx context.Context, in SubmitInput) (*entity.PurchaseRequest, error)
	Approve(ctx context.Context, in ActionInput) (*entity.PurchaseRequest, error)
	Reject(ctx context.Context, in ActionInput) (*entity.PurchaseRequest, error)
	Cancel(ctx context.Context, in CancelInput) (*entity.PurchaseRequest, error)
	StartPurchase(ctx context.Context, requestID, actorID int64) (*entity.PurchaseRequest, error)
	Complete(ctx context.Context, requestID, actorID int64) (*entity.PurchaseRequest, error)

	GetRequest(ctx context.Context, id int64) (*entity.PurchaseRequest, error)
	ListByRequester(ctx context.Context, requesterID int64, status string) ([]*entity.PurchaseRequest, error)
	ListByStatus(ctx context.Context, status string) ([]*entity.PurchaseRequest, error)
	PendingForApprover(ctx context.Context, approverID int64) ([]*entity.PurchaseRequest, error)
	CanApprove(ctx context.Context, requestID, actorID int64) (bool, error)
	IsRequester(ctx context.Context, requestID, actorID int64) (bool, error)

	History(ctx context.Context, requestID int64) ([]*entity.HistoryEntry, error)
	ExportHistory(ctx context.Context, requestID int64) (*HistoryExport, error)
}

// ApprovalDeps groups the collaborators of the approval service
type ApprovalDeps struct {
	Requests     port.RequestRepository
	Steps        port.StepRepository
	Users        port.UserDirectory
	Matcher      WorkflowMatcher
	Materializer StepMaterializer
	Engine       workflow.WorkflowEngine
	History      *workflow.HistoryRecorder
	Exporter     port.HistoryExporter
	TxManager    port.TransactionManager
	Publisher    EventPublisher
	Logger       Logger
	Now          func() time.Time
}

type approvalServiceImpl struct {
	requests     port.RequestRepository
	steps        port.StepRepository
	users        port.UserDirectory
	matcher      WorkflowMatcher
	materializer StepMaterializer
	engine       workflow.WorkflowEngine
	history      *workflow.HistoryRecorder
	exporter     port.HistoryExporter
	txManager    port.TransactionManager
	publisher    EventPublisher
	logger       Logger
	now          func() time.Time
}

// NewApprovalService creates a new ApprovalService
func NewApprovalService(deps ApprovalDeps) ApprovalService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &approvalServiceImpl{
		requests:     deps.Requests,
		steps:        deps.Steps,
		users:        deps.Users,
		matcher:      deps.Matcher,
		materializer: deps.Materializer,
		engine:       deps.Engine,
		history:      deps.History,
		exporter:     deps.Exporter,
		txManager:    deps.TxManager,
		publisher:    deps.Publisher,
		logger:       deps.Logger,
		now:          now,
	}
}

// Submit creates the request, materializes its chain and moves it to
// IN_APPROVAL. Nothing is persisted when any step fails to resolve.
func (s *approvalServiceImpl) Submit(ctx context.Context, in SubmitInput) (*entity.PurchaseRequest, error) {
	title := utils.SanitizeString(in.Title)
	if title == "" {
		return nil, apperror.NewValidationError("title", "title is required")
	}
	if err := validateText("title", title, utils.MaxTitleLength); err != nil {
		return nil, err
	}
	description := utils.SanitizeString(in.Description)
	if err := validateText("description", description, utils.MaxDescriptionLength); err != nil {
		return nil, err
	}
	if err := utils.ValidateAmount(in.Amount); err != nil {
		return nil, apperror.NewValidationError("amount", err.Error())
	}
	category := normalizeCategory(in.Category)

	requester, err := s.users.FindByID(ctx, in.RequesterID)
	if err != nil {
		return nil, fmt.Errorf("find requester: %w", err)
	}
	if requester == nil || !requester.Active {
		return nil, apperror.NewNotFoundError("user", in.RequesterID)
	}

	tmpl, err := s.matcher.Select(ctx, MatchInput{Amount: in.Amount, Category: category, Requester: requester})
	if err != nil {
		return nil, fmt.Errorf("select template: %w", err)
	}

	now := s.now()
	req := &entity.PurchaseRequest{
		Title:       title,
		Description: description,
		RequesterID: requester.ID,
		Amount:      in.Amount,
		Category:    category,
		Status:      entity.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var events []*event.Event
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.requests.Create(txCtx, req); err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		if _, err := s.history.Record(txCtx, workflow.HistoryRecord{
			RequestID:   req.ID,
			ActorID:     requester.ID,
			Action:      entity.ActionCreated,
			StatusTo:    entity.StatusPending,
			Description: "Purchase request created",
		}); err != nil {
			return err
		}

		steps, err := s.materializer.Materialize(txCtx, req, requester, tmpl)
		if err != nil {
			return err
		}
		if len(steps) == 0 {
			return apperror.NewValidationError("steps", "approval chain is empty")
		}
		if err := s.steps.CreateBatch(txCtx, steps); err != nil {
			return fmt.Errorf("create approval steps: %w", err)
		}
		req.Steps = steps

		var templateID *int64
		description := "Submitted with the fallback approval chain"
		if tmpl != nil {
			templateID = &tmpl.ID
			description = fmt.Sprintf("Submitted with template %q", tmpl.Name)
		}

		result, err := s.engine.Transition(txCtx, workflow.TransitionInput{
			Request:          req,
			Trigger:          domainwf.TriggerSubmit,
			ActorID:          requester.ID,
			Action:           entity.ActionSubmitted,
			Description:      description,
			CurrentStepOrder: steps[0].StepOrder,
			TemplateID:       templateID,
		})
		if err != nil {
			return err
		}

		events = append(events,
			result.Event,
			event.NewEvent(event.TypeRequestSubmitted, req.ID, map[string]interface{}{
				event.KeyRequesterID: req.RequesterID,
				"chain_length":       len(steps),
			}),
			stepActivated(req, steps[0]),
		)
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to submit purchase request", "error", err, "requester_id", in.RequesterID)
		return nil, err
	}

	source := metrics.SourceFallback
	if tmpl != nil {
		source = metrics.SourceTemplate
	}
	metrics.WorkflowSubmissionsTotal.WithLabelValues(source).Inc()
	metrics.WorkflowChainLength.Observe(float64(len(req.Steps)))

	s.publish(ctx, events)
	s.logger.Info("Purchase request submitted",
		"request_id", req.ID,
		"requester_id", req.RequesterID,
		"source", source,
		"steps", len(req.Steps),
	)
	return req, nil
}

// Approve marks the current step APPROVED and advances the chain
func (s *approvalServiceImpl) Approve(ctx context.Context, in ActionInput) (*entity.PurchaseRequest, error) {
	comment := utils.SanitizeString(in.Comment)

	var (
		req    *entity.PurchaseRequest
		events []*event.Event
	)
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		req, err = s.loadWithSteps(txCtx, in.RequestID)
		if err != nil {
			return err
		}

		current, remaining := currentAndRemaining(req)
		if !s.engine.CanFire(txCtx, req, domainwf.TriggerApprove, remaining) {
			return apperror.NewIllegalStateError("approve", req.Status)
		}
		if err := authorizeStepActor(current, in.ActorID, "approve"); err != nil {
			return err
		}
		if err := validateText("comment", comment, utils.MaxCommentLength); err != nil {
			return err
		}

		now := s.now()
		if err := s.markStep(txCtx, current, entity.StepStatusApproved, comment, now); err != nil {
			return err
		}

		next := req.NextPendingOrder(current.StepOrder)
		action := entity.ActionStepApproved
		if remaining == 0 {
			action = entity.ActionApproved
		}

		result, err := s.engine.Transition(txCtx, workflow.TransitionInput{
			Request:          req,
			Trigger:          domainwf.TriggerApprove,
			ActorID:          in.ActorID,
			Action:           action,
			Description:      fmt.Sprintf("Step %d (%s) approved", current.StepOrder, current.RoleName),
			Comment:          comment,
			RemainingSteps:   remaining,
			CurrentStepOrder: next,
		})
		if err != nil {
			return err
		}

		events = append(events, result.Event)
		if nextStep := stepByOrder(req, next); nextStep != nil {
			events = append(events, stepActivated(req, nextStep))
		} else {
			events = append(events, event.NewEvent(event.TypeRequestApproved, req.ID, map[string]interface{}{
				event.KeyRequesterID: req.RequesterID,
				event.KeyActorID:     in.ActorID,
			}))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events)
	s.logger.Info("Approval step approved",
		"request_id", req.ID,
		"actor_id", in.ActorID,
		"status", req.Status,
		"current_step", req.CurrentStepOrder,
	)
	return req, nil
}

// Reject marks the current step REJECTED and finalizes the request. Later
// steps keep their status. The reason is optional and defaults to the comment.
func (s *approvalServiceImpl) Reject(ctx context.Context, in ActionInput) (*entity.PurchaseRequest, error) {
	comment := utils.SanitizeString(in.Comment)
	reason := utils.SanitizeString(in.Reason)

	var (
		req    *entity.PurchaseRequest
		events []*event.Event
	)
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		req, err = s.loadWithSteps(txCtx, in.RequestID)
		if err != nil {
			return err
		}

		current, remaining := currentAndRemaining(req)
		if !s.engine.CanFire(txCtx, req, domainwf.TriggerReject, remaining) {
			return apperror.NewIllegalStateError("reject", req.Status)
		}
		if err := authorizeStepActor(current, in.ActorID, "reject"); err != nil {
			return err
		}
		if err := validateText("comment", comment, utils.MaxCommentLength); err != nil {
			return err
		}
		if err := validateText("reason", reason, utils.MaxCommentLength); err != nil {
			return err
		}

		if reason == "" {
			reason = comment
		}
		if comment == "" {
			comment = reason
		}
		if err := s.markStep(txCtx, current, entity.StepStatusRejected, comment, s.now()); err != nil {
			return err
		}

		result, err := s.engine.Transition(txCtx, workflow.TransitionInput{
			Request:         req,
			Trigger:         domainwf.TriggerReject,
			ActorID:         in.ActorID,
			Action:          entity.ActionRejected,
			Description:     fmt.Sprintf("Step %d (%s) rejected", current.StepOrder, current.RoleName),
			Comment:         comment,
			RemainingSteps:  remaining,
			RejectionReason: &reason,
		})
		if err != nil {
			return err
		}

		events = append(events, result.Event, event.NewEvent(event.TypeRequestRejected, req.ID, map[string]interface{}{
			event.KeyRequesterID: req.RequesterID,
			event.KeyActorID:     in.ActorID,
			event.KeyReason:      reason,
		}))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events)
	s.logger.Info("Purchase request rejected", "request_id", req.ID, "actor_id", in.ActorID)
	return req, nil
}

// Cancel lets the requester withdraw an active request. Steps are left as they are.
func (s *approvalServiceImpl) Cancel(ctx context.Context, in CancelInput) (*entity.PurchaseRequest, error) {
	reason := utils.SanitizeString(in.Reason)

	var (
		req    *entity.PurchaseRequest
		events []*event.Event
	)
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		req, err = s.load(txCtx, in.RequestID)
		if err != nil {
			return err
		}

		if req.RequesterID != in.ActorID {
			return apperror.NewAuthorizationError("cancel", in.ActorID, "only the requester can cancel a request")
		}
		if !s.engine.CanFire(txCtx, req, domainwf.TriggerCancel, 0) {
			return apperror.NewIllegalStateError("cancel", req.Status)
		}
		if err := validateText("reason", reason, utils.MaxCommentLength); err != nil {
			return err
		}

		description := "Cancelled by requester"
		if reason != "" {
			description = fmt.Sprintf("Cancelled by requester: %s", reason)
		}

		result, err := s.engine.Transition(txCtx, workflow.TransitionInput{
			Request:     req,
			Trigger:     domainwf.TriggerCancel,
			ActorID:     in.ActorID,
			Action:      entity.ActionCancelled,
			Description: description,
			Comment:     reason,
			AppendNote:  reason,
		})
		if err != nil {
			return err
		}

		events = append(events, result.Event, event.NewEvent(event.TypeRequestCancelled, req.ID, map[string]interface{}{
			event.KeyRequesterID: req.RequesterID,
			event.KeyReason:      reason,
		}))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events)
	s.logger.Info("Purchase request cancelled", "request_id", req.ID, "actor_id", in.ActorID)
	return req, nil
}

// StartPurchase moves an approved request into purchasing
func (s *approvalServiceImpl) StartPurchase(ctx context.Context, requestID, actorID int64) (*entity.PurchaseRequest, error) {
	return s.advancePurchase(ctx, requestID, actorID, domainwf.TriggerStartPurchase,
		entity.ActionPurchaseStarted, "Purchasing started")
}

// Complete closes a request whose purchase is done
func (s *approvalServiceImpl) Complete(ctx context.Context, requestID, actorID int64) (*entity.PurchaseRequest, error) {
	return s.advancePurchase(ctx, requestID, actorID, domainwf.TriggerComplete,
		entity.ActionCompleted, "Purchase completed")
}

func (s *approvalServiceImpl) advancePurchase(
	ctx context.Context,
	requestID, actorID int64,
	trigger domainwf.Trigger,
	action, description string,
) (*entity.PurchaseRequest, error) {
	var (
		req    *entity.PurchaseRequest
		events []*event.Event
	)
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		req, err = s.load(txCtx, requestID)
		if err != nil {
			return err
		}

		if err := s.authorizePurchaser(txCtx, req, actorID, trigger); err != nil {
			return err
		}
		if !s.engine.CanFire(txCtx, req, trigger, 0) {
			return apperror.NewIllegalStateError(verb(trigger), req.Status)
		}

		result, err := s.engine.Transition(txCtx, workflow.TransitionInput{
			Request:          req,
			Trigger:          trigger,
			ActorID:          actorID,
			Action:           action,
			Description:      description,
			CurrentStepOrder: req.CurrentStepOrder,
		})
		if err != nil {
			return err
		}
		events = append(events, result.Event)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events)
	s.logger.Info("Purchase request advanced", "request_id", req.ID, "actor_id", actorID, "status", req.Status)
	return req, nil
}

// GetRequest returns the request with its steps
func (s *approvalServiceImpl) GetRequest(ctx context.Context, id int64) (*entity.PurchaseRequest, error) {
	return s.loadWithSteps(ctx, id)
}

func (s *approvalServiceImpl) ListByRequester(ctx context.Context, requesterID int64, status string) ([]*entity.PurchaseRequest, error) {
	if status != "" && !domainwf.State(status).IsValid() {
		return nil, apperror.NewValidationError("status", fmt.Sprintf("unknown status %q", status))
	}
	reqs, err := s.requests.ListByRequester(ctx, requesterID, status)
	if err != nil {
		return nil, fmt.Errorf("list requests of user %d: %w", requesterID, err)
	}
	return reqs, nil
}

func (s *approvalServiceImpl) ListByStatus(ctx context.Context, status string) ([]*entity.PurchaseRequest, error) {
	if !domainwf.State(status).IsValid() {
		return nil, apperror.NewValidationError("status", fmt.Sprintf("unknown status %q", status))
	}
	reqs, err := s.requests.ListByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("list requests with status %s: %w", status, err)
	}
	return reqs, nil
}

// PendingForApprover lists requests whose current step is bound to approverID
func (s *approvalServiceImpl) PendingForApprover(ctx context.Context, approverID int64) ([]*entity.PurchaseRequest, error) {
	reqs, err := s.requests.ListPendingForApprover(ctx, approverID)
	if err != nil {
		return nil, fmt.Errorf("list pending approvals of user %d: %w", approverID, err)
	}
	return reqs, nil
}

// CanApprove reports whether actorID may act on the request's current step
func (s *approvalServiceImpl) CanApprove(ctx context.Context, requestID, actorID int64) (bool, error) {
	req, err := s.loadWithSteps(ctx, requestID)
	if err != nil {
		return false, err
	}
	if req.Status != entity.StatusInApproval {
		return false, nil
	}
	current := req.CurrentStep()
	return current != nil && current.ApproverID == actorID, nil
}

func (s *approvalServiceImpl) IsRequester(ctx context.Context, requestID, actorID int64) (bool, error) {
	req, err := s.load(ctx, requestID)
	if err != nil {
		return false, err
	}
	return req.RequesterID == actorID, nil
}

func (s *approvalServiceImpl) History(ctx context.Context, requestID int64) ([]*entity.HistoryEntry, error) {
	if _, err := s.load(ctx, requestID); err != nil {
		return nil, err
	}
	return s.history.List(ctx, requestID)
}

// ExportHistory renders the request's history with the configured exporter
func (s *approvalServiceImpl) ExportHistory(ctx context.Context, requestID int64) (*HistoryExport, error) {
	if s.exporter == nil {
		return nil, fmt.Errorf("history export is not configured")
	}

	req, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	entries, err := s.history.List(ctx, requestID)
	if err != nil {
		return nil, err
	}

	data, err := s.exporter.Export(ctx, req, entries)
	if err != nil {
		s.logger.Error("Failed to export history", "error", err, "request_id", requestID)
		return nil, fmt.Errorf("export history: %w", err)
	}

	return &HistoryExport{
		Filename:    fmt.Sprintf("purchase-request-%d-history.%s", req.ID, s.exporter.FileExtension()),
		ContentType: s.exporter.ContentType(),
		Data:        data,
	}, nil
}

func (s *approvalServiceImpl) load(ctx context.Context, id int64) (*entity.PurchaseRequest, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get request %d: %w", id, err)
	}
	if req == nil {
		return nil, apperror.NewNotFoundError("purchase_request", id)
	}
	return req, nil
}

func (s *approvalServiceImpl) loadWithSteps(ctx context.Context, id int64) (*entity.PurchaseRequest, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	steps, err := s.steps.ListByRequest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list steps of request %d: %w", id, err)
	}
	req.Steps = steps
	return req, nil
}

func (s *approvalServiceImpl) markStep(ctx context.Context, step *entity.ApprovalStep, status, comment string, at time.Time) error {
	if err := s.steps.MarkActed(ctx, step.ID, status, comment, at); err != nil {
		if errors.Is(err, port.ErrStepAlreadyActed) {
			metrics.WorkflowConflictsTotal.Inc()
			return apperror.NewConflictError("approval_step",
				fmt.Sprintf("step %d was already acted on", step.StepOrder))
		}
		return fmt.Errorf("update step %d: %w", step.ID, err)
	}
	step.Status = status
	step.Comment = comment
	step.ActionTakenAt = &at
	return nil
}

func (s *approvalServiceImpl) authorizePurchaser(ctx context.Context, req *entity.PurchaseRequest, actorID int64, trigger domainwf.Trigger) error {
	if req.RequesterID == actorID {
		return nil
	}
	actor, err := s.users.FindByID(ctx, actorID)
	if err != nil {
		return fmt.Errorf("find user %d: %w", actorID, err)
	}
	if actor != nil && actor.Active && actor.HasRole(entity.RolePurchasing) {
		return nil
	}
	return apperror.NewAuthorizationError(verb(trigger), actorID,
		"only the requester or purchasing staff can do this")
}

func (s *approvalServiceImpl) publish(ctx context.Context, events []*event.Event) {
	if s.publisher == nil || len(events) == 0 {
		return
	}
	s.publisher.Publish(ctx, events...)
}

// currentAndRemaining returns the current step and how many PENDING steps follow it
func currentAndRemaining(req *entity.PurchaseRequest) (*entity.ApprovalStep, int) {
	current := req.CurrentStep()
	if current == nil {
		return nil, 0
	}
	return current, req.PendingAfter(current.StepOrder)
}

func authorizeStepActor(current *entity.ApprovalStep, actorID int64, action string) error {
	if current == nil {
		return apperror.NewAuthorizationError(action, actorID, "request has no pending approval step")
	}
	if current.ApproverID != actorID {
		return apperror.NewAuthorizationError(action, actorID,
			fmt.Sprintf("step %d is assigned to another approver", current.StepOrder))
	}
	return nil
}

func stepByOrder(req *entity.PurchaseRequest, order int) *entity.ApprovalStep {
	if order == 0 {
		return nil
	}
	for _, st := range req.Steps {
		if st.StepOrder == order {
			return st
		}
	}
	return nil
}

func stepActivated(req *entity.PurchaseRequest, step *entity.ApprovalStep) *event.Event {
	return event.NewEvent(event.TypeStepActivated, req.ID, map[string]interface{}{
		event.KeyApproverID:  step.ApproverID,
		event.KeyRequesterID: req.RequesterID,
		event.KeyStepOrder:   step.StepOrder,
		event.KeyRoleName:    step.RoleName,
	})
}

func normalizeCategory(category *string) *string {
	if category == nil {
		return nil
	}
	c := utils.SanitizeString(*category)
	if c == "" {
		return nil
	}
	return &c
}

func verb(t domainwf.Trigger) string {
	return strings.ToLower(strings.ReplaceAll(t.String(), "_", " "))
}

// validateText runs after the actor and state checks so those failures win
func validateText(field, value string, max int) error {
	if err := utils.ValidateLength(field, value, max); err != nil {
		return apperror.NewValidationError(field, err.Error())
	}
	return nil
}
