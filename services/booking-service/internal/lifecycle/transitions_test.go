package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/model"
)

func TestTransitionTable_Closure(t *testing.T) {
	allowed := map[[2]model.Status]bool{
		{model.StatusPending, model.StatusConfirmed}:   true,
		{model.StatusPending, model.StatusCancelled}:   true,
		{model.StatusConfirmed, model.StatusInService}: true,
		{model.StatusConfirmed, model.StatusCancelled}: true,
		{model.StatusConfirmed, model.StatusNoShow}:    true,
		{model.StatusInService, model.StatusCompleted}: true,
	}
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	for _, from := range model.AllStatuses() {
		for _, to := range model.AllStatuses() {
			want := allowed[[2]model.Status{from, to}]
			if got := Allowed(from, to); got != want {
				t.Fatalf("Allowed(%s, %s) = %v, want %v", from, to, got, want)
			}

			a := model.Appointment{Status: from, ConfirmedByCustomer: true, ConfirmedByCompany: true}
			err := apply(&a, change{to: to, actor: model.ActorCompany, at: at})
			if want {
				if err != nil {
					t.Fatalf("apply %s -> %s: %v", from, to, err)
				}
				if a.Status != to {
					t.Fatalf("status not updated for %s -> %s", from, to)
				}
				continue
			}
			if !errors.Is(err, model.ErrInvalidTransition) {
				t.Fatalf("apply %s -> %s: expected invalid transition, got %v", from, to, err)
			}
			if a.Status != from {
				t.Fatalf("failed transition %s -> %s mutated the appointment", from, to)
			}
		}
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, s := range model.AllStatuses() {
		if s.Terminal() && len(Next(s)) != 0 {
			t.Fatalf("terminal status %s has exits %v", s, Next(s))
		}
	}
}

func TestApply_ConfirmRequiresBothParties(t *testing.T) {
	a := model.Appointment{Status: model.StatusPending, ConfirmedByCustomer: true}
	err := apply(&a, change{to: model.StatusConfirmed, at: time.Now()})
	var te *model.TransitionError
	if !errors.As(err, &te) || te.Detail == "" {
		t.Fatalf("expected guarded transition error, got %v", err)
	}
	if a.Status != model.StatusPending || a.ConfirmedAt != nil {
		t.Fatal("appointment must be unchanged")
	}
}

func TestApply_StampsTimestamps(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 5, 0, 0, time.UTC)

	a := model.Appointment{Status: model.StatusConfirmed}
	if err := apply(&a, change{to: model.StatusCancelled, actor: model.ActorCustomer, reason: "sick pet", at: at}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if a.CancelledAt == nil || !a.CancelledAt.Equal(at) || a.CancelReason != "sick pet" || a.CancelledBy != model.ActorCustomer {
		t.Fatalf("cancel stamps missing: %+v", a)
	}

	b := model.Appointment{Status: model.StatusConfirmed}
	if err := apply(&b, change{to: model.StatusInService, at: at}); err != nil {
		t.Fatalf("in_service: %v", err)
	}
	if b.ArrivedAt == nil || b.StartedAt == nil {
		t.Fatal("in_service must stamp arrival and start")
	}
	if err := apply(&b, change{to: model.StatusCompleted, at: at.Add(time.Hour)}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if b.CompletedAt == nil || !b.CompletedAt.Equal(at.Add(time.Hour)) {
		t.Fatal("completed_at not stamped")
	}

	c := model.Appointment{Status: model.StatusConfirmed}
	if err := apply(&c, change{to: model.StatusNoShow, at: at}); err != nil || c.NoShowAt == nil {
		t.Fatalf("no_show: %v", err)
	}
}
