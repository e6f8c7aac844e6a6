package enums

import "fmt"

// OutboxStatus tracks the delivery state of an outbox record.
//
// READY is the only legal initial state. The relay moves a record to SENT
// after the broker confirms the publish, or to FAILED when a publish attempt
// errors; FAILED records are retried with backoff until they exhaust their
// attempt budget and land in DEAD, which is terminal.
type OutboxStatus string

const (
	OutboxStatusReady  OutboxStatus = "READY"
	OutboxStatusSent   OutboxStatus = "SENT"
	OutboxStatusFailed OutboxStatus = "FAILED"
	OutboxStatusDead   OutboxStatus = "DEAD"
)

var validOutboxStatuses = []OutboxStatus{
	OutboxStatusReady,
	OutboxStatusSent,
	OutboxStatusFailed,
	OutboxStatusDead,
}

// String implements fmt.Stringer.
func (s OutboxStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OutboxStatus.
func (s OutboxStatus) IsValid() bool {
	for _, candidate := range validOutboxStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the relay will never touch the record again.
func (s OutboxStatus) IsTerminal() bool {
	return s == OutboxStatusSent || s == OutboxStatusDead
}

// ParseOutboxStatus converts raw input into an OutboxStatus.
func ParseOutboxStatus(value string) (OutboxStatus, error) {
	for _, candidate := range validOutboxStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox status %q", value)
}
