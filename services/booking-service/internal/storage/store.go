// Package storage defines the persistence boundary of the booking service.
// Two implementations exist: postgres for deployments and memory for local
// development and tests.
package storage

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/outbox"
)

// Reader is the read side shared by the store and its transactions.
// Every lookup is scoped to a tenant.
type Reader interface {
	GetService(ctx context.Context, tenantID, serviceID string) (model.Service, error)
	// ListWindows returns the windows defined for a weekday, active or not.
	ListWindows(ctx context.Context, tenantID string, weekday time.Weekday) ([]model.AvailabilityWindow, error)
	ListBlockedDates(ctx context.Context, tenantID string, date model.Date) ([]model.BlockedDate, error)
	// ListHolding returns the appointments on date whose status holds capacity.
	ListHolding(ctx context.Context, tenantID string, date model.Date) ([]model.Appointment, error)
	GetAppointment(ctx context.Context, tenantID, appointmentID string) (model.Appointment, error)
}

// Tx is a unit of work. Writes become visible to other readers only after the
// surrounding InTx call returns nil.
type Tx interface {
	Reader

	// LockDay serializes capacity decisions for one tenant and date until the
	// transaction ends.
	LockDay(ctx context.Context, tenantID string, date model.Date) error
	GetAppointmentForUpdate(ctx context.Context, tenantID, appointmentID string) (model.Appointment, error)
	InsertAppointment(ctx context.Context, appt *model.Appointment) error
	UpdateAppointment(ctx context.Context, appt *model.Appointment) error
	AppendHistory(ctx context.Context, change model.StatusChange) error
	Enqueue(ctx context.Context, evt outbox.Event) error

	// InsertRecovery creates the recovery row for a cancelled appointment.
	// A second insert for the same appointment is ignored.
	InsertRecovery(ctx context.Context, rec model.RecoveryAttempt) error
	GetRecoveryForUpdate(ctx context.Context, tenantID, appointmentID string) (model.RecoveryAttempt, error)
	// FetchDueRecoveries locks up to limit scheduled rows with NextRunAt <= now.
	FetchDueRecoveries(ctx context.Context, now time.Time, limit int) ([]model.RecoveryAttempt, error)
	UpdateRecovery(ctx context.Context, rec model.RecoveryAttempt) error

	// RecordInbox remembers a consumed event and reports false if it was seen before.
	RecordInbox(ctx context.Context, eventID, eventType string) (bool, error)
}

type TxFunc func(ctx context.Context, tx Tx) error

type Store interface {
	Reader

	InTx(ctx context.Context, fn TxFunc) error

	// ListAppointments returns every appointment on date regardless of status, ordered by start.
	ListAppointments(ctx context.Context, tenantID string, date model.Date) ([]model.Appointment, error)
	ListHistory(ctx context.Context, tenantID, appointmentID string) ([]model.StatusChange, error)
	GetRecovery(ctx context.Context, tenantID, appointmentID string) (model.RecoveryAttempt, error)

	CalendarAdmin
}

// CalendarAdmin maintains the tenant configuration the availability engine reads.
type CalendarAdmin interface {
	SaveService(ctx context.Context, svc *model.Service) error
	ListServices(ctx context.Context, tenantID string) ([]model.Service, error)

	SaveWindow(ctx context.Context, w *model.AvailabilityWindow) error
	ListAllWindows(ctx context.Context, tenantID string) ([]model.AvailabilityWindow, error)
	DeleteWindow(ctx context.Context, tenantID, windowID string) error

	SaveBlockedDate(ctx context.Context, b *model.BlockedDate) error
	ListBlockedRange(ctx context.Context, tenantID string, from, to model.Date) ([]model.BlockedDate, error)
	DeleteBlockedDate(ctx context.Context, tenantID, blockedID string) error
}
