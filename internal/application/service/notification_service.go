package service

import (
	"context"
	"fmt"

	"github.com/garyjia/purchase-approval/internal/application/dispatcher"
	"github.com/garyjia/purchase-approval/internal/application/port"
	"github.com/garyjia/purchase-approval/internal/domain/event"
	"github.com/garyjia/purchase-approval/pkg/metrics"
)

// NotificationService turns committed workflow events into user notifications
type NotificationService interface {
	// Register subscribes the notification handlers on d
	Register(d dispatcher.Dispatcher)

	HandleStepActivated(ctx context.Context, evt *event.Event) error
	HandleOutcome(ctx context.Context, evt *event.Event) error
	HandleStatusChanged(ctx context.Context, evt *event.Event) error
}

type notificationServiceImpl struct {
	notifier port.Notifier
	logger   Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(notifier port.Notifier, logger Logger) NotificationService {
	return &notificationServiceImpl{
		notifier: notifier,
		logger:   logger,
	}
}

func (s *notificationServiceImpl) Register(d dispatcher.Dispatcher) {
	d.Subscribe(event.TypeStepActivated, "notify-approver", s.HandleStepActivated)
	d.Subscribe(event.TypeRequestApproved, "notify-requester-approved", s.HandleOutcome)
	d.Subscribe(event.TypeRequestRejected, "notify-requester-rejected", s.HandleOutcome)
	d.Subscribe(event.TypeRequestCancelled, "notify-requester-cancelled", s.HandleOutcome)
	d.Subscribe(event.TypeStatusChanged, "count-transition", s.HandleStatusChanged)
}

// HandleStepActivated tells the approver of the newly current step
func (s *notificationServiceImpl) HandleStepActivated(ctx context.Context, evt *event.Event) error {
	approverID := evt.GetPayloadInt(event.KeyApproverID)
	if approverID == 0 {
		return fmt.Errorf("event %s: missing %s", evt.ID, event.KeyApproverID)
	}

	return s.send(ctx, evt, port.Notification{
		RecipientID: approverID,
		RequestID:   evt.RequestID,
		Subject:     fmt.Sprintf("Purchase request #%d awaits your approval", evt.RequestID),
		Body: fmt.Sprintf("Step %d (%s) of purchase request #%d is assigned to you.",
			evt.GetPayloadInt(event.KeyStepOrder), evt.GetPayloadString(event.KeyRoleName), evt.RequestID),
	})
}

// HandleOutcome tells the requester their request was approved, rejected or cancelled
func (s *notificationServiceImpl) HandleOutcome(ctx context.Context, evt *event.Event) error {
	requesterID := evt.GetPayloadInt(event.KeyRequesterID)
	if requesterID == 0 {
		return fmt.Errorf("event %s: missing %s", evt.ID, event.KeyRequesterID)
	}

	var subject, body string
	switch evt.Type {
	case event.TypeRequestApproved:
		subject = fmt.Sprintf("Purchase request #%d approved", evt.RequestID)
		body = "Every approval step has been approved."
	case event.TypeRequestRejected:
		subject = fmt.Sprintf("Purchase request #%d rejected", evt.RequestID)
		body = fmt.Sprintf("Reason: %s", evt.GetPayloadString(event.KeyReason))
	case event.TypeRequestCancelled:
		subject = fmt.Sprintf("Purchase request #%d cancelled", evt.RequestID)
		body = evt.GetPayloadString(event.KeyReason)
	default:
		return fmt.Errorf("event %s: unexpected type %s", evt.ID, evt.Type)
	}

	return s.send(ctx, evt, port.Notification{
		RecipientID: requesterID,
		RequestID:   evt.RequestID,
		Subject:     subject,
		Body:        body,
	})
}

// HandleStatusChanged counts the committed transition
func (s *notificationServiceImpl) HandleStatusChanged(_ context.Context, evt *event.Event) error {
	metrics.WorkflowTransitionsTotal.WithLabelValues(
		evt.GetPayloadString(event.KeyStatusFrom),
		evt.GetPayloadString(event.KeyStatusTo),
	).Inc()
	return nil
}

func (s *notificationServiceImpl) send(ctx context.Context, evt *event.Event, n port.Notification) error {
	if err := s.notifier.Notify(ctx, n); err != nil {
		metrics.NotificationsTotal.WithLabelValues(evt.Type.String(), "error").Inc()
		s.logger.Error("Failed to send notification",
			"error", err,
			"request_id", evt.RequestID,
			"recipient_id", n.RecipientID,
			"event", evt.Type.String(),
		)
		return fmt.Errorf("notify user %d: %w", n.RecipientID, err)
	}

	metrics.NotificationsTotal.WithLabelValues(evt.Type.String(), "sent").Inc()
	s.logger.Info("Notification sent",
		"request_id", evt.RequestID,
		"recipient_id", n.RecipientID,
		"event", evt.Type.String(),
	)
	return nil
}
