package postgres

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/storage"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

const (
	serviceID = "6f1c2b7e-3d4a-4e5f-9a0b-1c2d3e4f5a6b"
	windowID  = "0b9e8d7c-6b5a-4f3e-8d2c-1b0a9f8e7d6c"
)

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *Store) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock, New(mock)
}

func TestInTx_LocksDayAndCommits(t *testing.T) {
	mock, store := newMock(t)
	date := model.Date{Year: 2026, Month: time.March, Day: 2}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("pg_advisory_xact_lock(hashtextextended($1, 0))")).
		WithArgs("booking:t1:2026-03-02").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectCommit()

	err := store.InTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		return tx.LockDay(ctx, "t1", date)
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInTx_RollsBackOnError(t *testing.T) {
	mock, store := newMock(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := store.InTx(context.Background(), func(context.Context, storage.Tx) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInTx_LockContentionIsConflict(t *testing.T) {
	mock, store := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").
		WillReturnError(&pgconn.PgError{Code: "40P01"})
	mock.ExpectRollback()

	err := store.InTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		return tx.LockDay(ctx, "t1", model.Date{Year: 2026, Month: time.March, Day: 2})
	})
	if !errors.Is(err, model.ErrConcurrencyConflict) {
		t.Fatalf("expected concurrency conflict, got %v", err)
	}
}

func TestGetService_NotFound(t *testing.T) {
	mock, store := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("id = $2::uuid")).
		WithArgs("t1", serviceID).
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetService(context.Background(), "t1", serviceID)
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetService_DecodesTieredPricing(t *testing.T) {
	mock, store := newMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery("FROM services").
		WithArgs("t1", serviceID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "tenant_id", "name", "duration_minutes", "capacity_per_window", "active", "price_cents", "price_by_size", "created_at", "updated_at"}).
			AddRow(serviceID, "t1", "Full groom", 90, 0, true, int64(0), []byte(`{"small":4000,"large":7000}`), now, now))

	svc, err := store.GetService(context.Background(), "t1", strings.ToUpper(serviceID))
	if err != nil {
		t.Fatalf("GetService: %v", err)
	}
	if !svc.Pricing.Tiered() || svc.Pricing.BySize[model.PetSizeLarge] != 7000 {
		t.Fatalf("unexpected pricing %+v", svc.Pricing)
	}
	if svc.DurationMinutes != 90 {
		t.Fatalf("unexpected duration %d", svc.DurationMinutes)
	}
}

func TestListWindows(t *testing.T) {
	mock, store := newMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery("FROM availability_windows").
		WithArgs("t1", 1).
		WillReturnRows(pgxmock.NewRows([]string{"id", "tenant_id", "weekday", "start_min", "end_min", "capacity", "active", "created_at", "updated_at"}).
			AddRow("w1", "t1", 1, 540, 720, 2, true, now, now).
			AddRow("w2", "t1", 1, 780, 1020, 1, false, now, now))

	windows, err := store.ListWindows(context.Background(), "t1", time.Monday)
	if err != nil {
		t.Fatalf("ListWindows: %v", err)
	}
	if len(windows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(windows))
	}
	if windows[0].Start != model.NewTimeOfDay(9, 0) || windows[0].End != model.NewTimeOfDay(12, 0) || windows[0].Weekday != time.Monday {
		t.Fatalf("unexpected window %+v", windows[0])
	}
	if windows[1].Active {
		t.Fatal("second window should be inactive")
	}
}

func TestRecordInbox_Duplicate(t *testing.T) {
	mock, store := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO inbox_events").
		WithArgs("evt-1", "messaging.customer.replied.v1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO inbox_events").
		WithArgs("evt-1", "messaging.customer.replied.v1").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectCommit()

	var first, second bool
	err := store.InTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		var err error
		if first, err = tx.RecordInbox(ctx, "evt-1", "messaging.customer.replied.v1"); err != nil {
			return err
		}
		second, err = tx.RecordInbox(ctx, "evt-1", "messaging.customer.replied.v1")
		return err
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
	if !first || second {
		t.Fatalf("expected first=true second=false, got %v %v", first, second)
	}
}

func TestDeleteWindow_NotFound(t *testing.T) {
	mock, store := newMock(t)
	mock.ExpectExec("DELETE FROM availability_windows").
		WithArgs("t1", windowID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	if err := store.DeleteWindow(context.Background(), "t1", windowID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMalformedIDsAreNotFoundWithoutQuerying(t *testing.T) {
	mock, store := newMock(t)
	ctx := context.Background()

	if _, err := store.GetService(ctx, "t1", "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetService: expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetAppointment(ctx, "t1", "1; DROP TABLE appointments"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetAppointment: expected ErrNotFound, got %v", err)
	}
	if err := store.DeleteBlockedDate(ctx, "t1", "b-1"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("DeleteBlockedDate: expected ErrNotFound, got %v", err)
	}
	history, err := store.ListHistory(ctx, "t1", "nope")
	if err != nil || len(history) != 0 {
		t.Fatalf("ListHistory: expected empty result, got %v, %v", history, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetRecoveryForUpdate_ComparesUUIDColumn(t *testing.T) {
	mock, store := newMock(t)
	apptID := "9a8b7c6d-5e4f-4a3b-9c2d-1e0f9a8b7c6d"

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("appointment_id = $2::uuid")).
		WithArgs("t1", apptID).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	err := store.InTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		_, err := tx.GetRecoveryForUpdate(ctx, "t1", apptID)
		return err
	})
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveService_DuplicateNameIsValidationError(t *testing.T) {
	mock, store := newMock(t)
	mock.ExpectQuery("INSERT INTO services").
		WithArgs("t1", "Bath", 30, 0, true, int64(2500), []byte(`{}`)).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	svc := &model.Service{TenantID: "t1", Name: "Bath", DurationMinutes: 30, Active: true, Pricing: model.Pricing{FixedCents: 2500}}
	err := store.SaveService(context.Background(), svc)
	var v *model.ValidationError
	if !errors.As(err, &v) || v.FieldErrors["name"] == "" {
		t.Fatalf("expected name validation error, got %v", err)
	}
}
