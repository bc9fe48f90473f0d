package model

import "fmt"

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusInService Status = "in_service"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

var allStatuses = []Status{
	StatusPending,
	StatusConfirmed,
	StatusInService,
	StatusCompleted,
	StatusCancelled,
	StatusNoShow,
}

// AllStatuses returns every status in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

func ParseStatus(s string) (Status, error) {
	for _, st := range allStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// HoldsCapacity reports whether an appointment in this status occupies a slot.
func (s Status) HoldsCapacity() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Actor identifies who triggered a change.
type Actor string

const (
	ActorCustomer Actor = "customer"
	ActorCompany  Actor = "company"
	ActorSystem   Actor = "system"
)

func ParseActor(s string) (Actor, error) {
	switch Actor(s) {
	case ActorCustomer, ActorCompany, ActorSystem:
		return Actor(s), nil
	}
	return "", fmt.Errorf("unknown actor %q", s)
}
