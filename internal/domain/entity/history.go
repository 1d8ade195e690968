package entity

import "time"

// HistoryEntry is an immutable audit record of one request transition
type HistoryEntry struct {
	ID          int64     `json:"id"`
	RequestID   int64     `json:"request_id"`
	ActorID     int64     `json:"actor_id"`
	Action      string    `json:"action"`
	StatusFrom  string    `json:"status_from"`
	StatusTo    string    `json:"status_to"`
	Description string    `json:"description,omitempty"`
	Comment     string    `json:"comment,omitempty"`
	ClientIP    string    `json:"client_ip,omitempty"`
	UserAgent   string    `json:"user_agent,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
