package models

import "time"

// Security event types written to the audit sink.
const (
	EventAuthFailure       = "auth_failure"
	EventLockout           = "lockout"
	EventRateLimitExceeded = "rate_limit_exceeded"
)

// SecurityEvent is an audit record for authentication and throttling
// incidents. Rows are batched into ClickHouse; SourceID is an IP or
// another request identifier, never a credential.
type SecurityEvent struct {
	EventType  string    `json:"event_type" ch:"event_type"`
	SourceID   string    `json:"source_id" ch:"source_id"`
	Endpoint   string    `json:"endpoint" ch:"endpoint"`
	Detail     string    `json:"detail,omitempty" ch:"detail"`
	OccurredAt time.Time `json:"occurred_at" ch:"occurred_at"`
}
