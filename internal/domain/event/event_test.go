package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestType_IsValid(t *testing.T) {
	tests := []struct {
		name      string
		eventType Type
		want      bool
	}{
		{"submitted", TypeRequestSubmitted, true},
		{"step activated", TypeStepActivated, true},
		{"approved", TypeRequestApproved, true},
		{"rejected", TypeRequestRejected, true},
		{"cancelled", TypeRequestCancelled, true},
		{"status changed", TypeStatusChanged, true},
		{"unknown", Type("voucher.generated"), false},
		{"empty", Type(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.eventType.IsValid())
		})
	}
}

func TestNewEvent(t *testing.T) {
	evt := NewEvent(TypeStepActivated, 42, map[string]interface{}{KeyApproverID: int64(7)})

	require.NotNil(t, evt)
	assert.NotEmpty(t, evt.ID)
	assert.NotEmpty(t, evt.CorrelationID)
	assert.NotEqual(t, evt.ID, evt.CorrelationID)
	assert.Equal(t, int64(42), evt.RequestID)
	assert.Equal(t, int64(7), evt.GetPayloadInt(KeyApproverID))
	assert.False(t, evt.Timestamp.IsZero())
}

func TestNewEventWithCorrelation(t *testing.T) {
	a := NewEventWithCorrelation(TypeRequestSubmitted, 1, nil, "req-abc")
	b := NewEventWithCorrelation(TypeStepActivated, 1, nil, "req-abc")

	assert.Equal(t, "req-abc", a.CorrelationID)
	assert.Equal(t, a.CorrelationID, b.CorrelationID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.NotNil(t, a.Payload)
}

func TestEvent_WithPayloadDoesNotMutate(t *testing.T) {
	orig := NewEvent(TypeRequestRejected, 5, map[string]interface{}{KeyReason: "over budget"})
	next := orig.WithPayload(KeyActorID, 3)

	assert.Equal(t, int64(3), next.GetPayloadInt(KeyActorID))
	assert.Equal(t, int64(0), orig.GetPayloadInt(KeyActorID))
	assert.Equal(t, "over budget", next.GetPayloadString(KeyReason))
	assert.Equal(t, orig.ID, next.ID)
	assert.Equal(t, "", next.GetPayloadString("missing"))
}
