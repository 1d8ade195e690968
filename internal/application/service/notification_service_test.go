package service

import (
	"context"
	"errors"
	"testing"

	"github.com/garyjia/purchase-approval/internal/application/dispatcher"
	"github.com/garyjia/purchase-approval/internal/application/port"
	"github.com/garyjia/purchase-approval/internal/domain/event"
	"github.com/garyjia/purchase-approval/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestNotificationService_HandleStepActivated(t *testing.T) {
	notifier := &mockNotifier{}
	svc := NewNotificationService(notifier, nopLogger{})

	evt := event.NewEvent(event.TypeStepActivated, 12, map[string]interface{}{
		event.KeyApproverID: uPurchasing,
		event.KeyStepOrder:  2,
		event.KeyRoleName:   "PURCHASING",
	})
	require.NoError(t, svc.HandleStepActivated(context.Background(), evt))

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, uPurchasing, notifier.sent[0].RecipientID)
	assert.Equal(t, int64(12), notifier.sent[0].RequestID)
	assert.Contains(t, notifier.sent[0].Body, "Step 2 (PURCHASING)")

	err := svc.HandleStepActivated(context.Background(), event.NewEvent(event.TypeStepActivated, 12, nil))
	assert.Error(t, err)
}

func TestNotificationService_HandleOutcome(t *testing.T) {
	tests := []struct {
		name        string
		eventType   event.Type
		payload     map[string]interface{}
		wantSubject string
		wantBody    string
		wantErr     bool
	}{
		{
			name:        "approved",
			eventType:   event.TypeRequestApproved,
			payload:     map[string]interface{}{event.KeyRequesterID: uTeacher},
			wantSubject: "Purchase request #7 approved",
		},
		{
			name:        "rejected",
			eventType:   event.TypeRequestRejected,
			payload:     map[string]interface{}{event.KeyRequesterID: uTeacher, event.KeyReason: "over budget"},
			wantSubject: "Purchase request #7 rejected",
			wantBody:    "Reason: over budget",
		},
		{
			name:        "cancelled",
			eventType:   event.TypeRequestCancelled,
			payload:     map[string]interface{}{event.KeyRequesterID: uTeacher, event.KeyReason: "budget cut"},
			wantSubject: "Purchase request #7 cancelled",
			wantBody:    "budget cut",
		},
		{
			name:      "missing requester",
			eventType: event.TypeRequestApproved,
			wantErr:   true,
		},
		{
			name:      "unexpected type",
			eventType: event.TypeRequestSubmitted,
			payload:   map[string]interface{}{event.KeyRequesterID: uTeacher},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifier := &mockNotifier{}
			svc := NewNotificationService(notifier, nopLogger{})

			err := svc.HandleOutcome(context.Background(), event.NewEvent(tt.eventType, 7, tt.payload))
			if tt.wantErr {
				assert.Error(t, err)
				assert.Empty(t, notifier.sent)
				return
			}
			require.NoError(t, err)
			require.Len(t, notifier.sent, 1)
			assert.Equal(t, uTeacher, notifier.sent[0].RecipientID)
			assert.Equal(t, tt.wantSubject, notifier.sent[0].Subject)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, notifier.sent[0].Body)
			}
		})
	}
}

func TestNotificationService_NotifierFailure(t *testing.T) {
	notifier := &mockNotifier{
		NotifyFunc: func(ctx context.Context, n port.Notification) error {
			return errors.New("smtp down")
		},
	}
	svc := NewNotificationService(notifier, nopLogger{})
	failures := metrics.NotificationsTotal.WithLabelValues(event.TypeRequestApproved.String(), "error")
	before := counterValue(t, failures)

	err := svc.HandleOutcome(context.Background(), event.NewEvent(event.TypeRequestApproved, 1,
		map[string]interface{}{event.KeyRequesterID: uTeacher}))
	assert.ErrorContains(t, err, "smtp down")
	assert.Equal(t, before+1, counterValue(t, failures))
}

func TestNotificationService_HandleStatusChanged(t *testing.T) {
	svc := NewNotificationService(&mockNotifier{}, nopLogger{})
	counter := metrics.WorkflowTransitionsTotal.WithLabelValues("PENDING", "IN_APPROVAL")
	before := counterValue(t, counter)

	evt := event.NewEvent(event.TypeStatusChanged, 1, map[string]interface{}{
		event.KeyStatusFrom: "PENDING",
		event.KeyStatusTo:   "IN_APPROVAL",
	})
	require.NoError(t, svc.HandleStatusChanged(context.Background(), evt))
	assert.Equal(t, before+1, counterValue(t, counter))
}

func TestNotificationService_Register(t *testing.T) {
	d := dispatcher.NewDispatcher()
	notifier := &mockNotifier{}
	NewNotificationService(notifier, nopLogger{}).Register(d)

	counter := metrics.WorkflowTransitionsTotal.WithLabelValues("APPROVED", "IN_PROGRESS")
	before := counterValue(t, counter)

	d.Publish(context.Background(),
		event.NewEvent(event.TypeStepActivated, 3, map[string]interface{}{event.KeyApproverID: uCEO}),
		event.NewEvent(event.TypeRequestApproved, 3, map[string]interface{}{event.KeyRequesterID: uTeacher}),
		event.NewEvent(event.TypeRequestRejected, 4, map[string]interface{}{event.KeyRequesterID: uTeacher}),
		event.NewEvent(event.TypeRequestCancelled, 5, map[string]interface{}{event.KeyRequesterID: uTeacher}),
		event.NewEvent(event.TypeStatusChanged, 3, map[string]interface{}{
			event.KeyStatusFrom: "APPROVED",
			event.KeyStatusTo:   "IN_PROGRESS",
		}),
	)
	require.NoError(t, d.Close())

	recipients := make([]int64, 0, len(notifier.sent))
	for _, n := range notifier.sent {
		recipients = append(recipients, n.RecipientID)
	}
	assert.ElementsMatch(t, []int64{uCEO, uTeacher, uTeacher, uTeacher}, recipients)
	assert.Equal(t, before+1, counterValue(t, counter))
}
