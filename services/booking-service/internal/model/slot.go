package model

import "time"

// Slot is a bookable start time on a specific day.
type Slot struct {
	Date      Date      `json:"date"`
	Start     TimeOfDay `json:"start"`
	End       TimeOfDay `json:"end"`
	Remaining int       `json:"remaining"`
}

func (s Slot) Same(date Date, start TimeOfDay) bool {
	return s.Date == date && s.Start == start
}

// RecoveryStatus tracks the re-engagement process that follows a cancellation.
type RecoveryStatus string

const (
	RecoveryScheduled   RecoveryStatus = "scheduled"
	RecoveryExhausted   RecoveryStatus = "exhausted"
	RecoveryRescheduled RecoveryStatus = "rescheduled"
	RecoveryResponded   RecoveryStatus = "responded"
)

// RecoveryAttempt is the persisted state of one cancelled appointment's recovery.
// Attempts counts delivered messages; Failures counts sends the provider
// rejected.
type RecoveryAttempt struct {
	AppointmentID string
	TenantID      string
	CustomerID    string
	ServiceID     string
	Attempts      int
	MaxAttempts   int
	Failures      int
	NextRunAt     time.Time
	Status        RecoveryStatus
	RespondedAt   *time.Time
	RescheduledAt *time.Time
	RescheduledTo string
	LastError     string
	Traceparent   string
	Tracestate    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
