package event

import (
	"time"

	"github.com/google/uuid"
)

// Payload keys shared by publishers and handlers
const (
	KeyActorID     = "actor_id"
	KeyApproverID  = "approver_id"
	KeyRequesterID = "requester_id"
	KeyStepOrder   = "step_order"
	KeyRoleName    = "role_name"
	KeyStatusFrom  = "status_from"
	KeyStatusTo    = "status_to"
	KeyReason      = "reason"
)

// Event represents a domain event published after a request transition commits
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	RequestID     int64                  `json:"request_id"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent creates a new domain event with a fresh ID and correlation ID
func NewEvent(eventType Type, requestID int64, payload map[string]interface{}) *Event {
	return NewEventWithCorrelation(eventType, requestID, payload, uuid.NewString())
}

// NewEventWithCorrelation creates an event linked to an existing correlation chain,
// typically the HTTP request ID that caused it.
func NewEventWithCorrelation(eventType Type, requestID int64, payload map[string]interface{}, correlationID string) *Event {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		RequestID:     requestID,
		Payload:       payload,
		Timestamp:     time.Now(),
		CorrelationID: correlationID,
	}
}

// WithPayload returns a copy of the event with key set (the receiver is not modified)
func (e *Event) WithPayload(key string, value interface{}) *Event {
	payload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		payload[k] = v
	}
	payload[key] = value

	return &Event{
		ID:            e.ID,
		Type:          e.Type,
		RequestID:     e.RequestID,
		Payload:       payload,
		Timestamp:     e.Timestamp,
		CorrelationID: e.CorrelationID,
	}
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetPayloadInt retrieves an int64 value from the payload
func (e *Event) GetPayloadInt(key string) int64 {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
	}
	return 0
}
