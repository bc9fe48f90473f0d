package model

import "time"

type Appointment struct {
	ID         string
	TenantID   string
	CustomerID string
	PetID      string
	PetSize    PetSize
	ServiceID  string

	// Snapshot of the service at creation time. Later service edits do not change these.
	ServiceName     string
	PriceCents      int64
	DurationMinutes int

	Date  Date
	Start TimeOfDay

	Status              Status
	ConfirmedByCustomer bool
	ConfirmedByCompany  bool
	ConfirmedAt         *time.Time

	CancelReason string
	CancelledBy  Actor
	CancelledAt  *time.Time

	ArrivedAt   *time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	NoShowAt    *time.Time

	Paid            bool
	PaidAmountCents int64
	PaidAt          *time.Time

	Rating        int
	ReviewComment string
	ReviewedAt    *time.Time

	Notes    string
	RebookOf string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (a Appointment) End() TimeOfDay {
	return a.Start.Add(a.DurationMinutes)
}

func (a Appointment) Interval() Interval {
	return NewInterval(a.Start, a.DurationMinutes)
}

// StatusChange is one append-only row of an appointment's status history.
type StatusChange struct {
	ID            int64
	TenantID      string
	AppointmentID string
	From          Status
	To            Status
	Actor         Actor
	Reason        string
	At            time.Time
}
