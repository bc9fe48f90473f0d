package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition matches every *TransitionError.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrConcurrencyConflict means a competing booking won the slot between the
	// availability check and the commit. The same request may be retried.
	ErrConcurrencyConflict = errors.New("booking conflicted with a concurrent request")
)

// Reason explains why a slot is not bookable.
type Reason string

const (
	ReasonServiceInactive Reason = "service_inactive"
	ReasonBlocked         Reason = "blocked"
	ReasonOutsideHours    Reason = "outside_hours"
	ReasonCapacity        Reason = "capacity"
	ReasonPast            Reason = "past"
)

// AvailabilityError rejects a booking because the requested slot is not available.
// Suggestions is never nil; an empty slice means no alternative was found.
type AvailabilityError struct {
	Reason      Reason
	Suggestions []Slot
}

func (e *AvailabilityError) Error() string {
	return fmt.Sprintf("slot not available: %s", e.Reason)
}

type TransitionError struct {
	From   Status
	To     Status
	Detail string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// ValidationError captures field level problems with a request.
type ValidationError struct {
	FieldErrors map[string]string
}

func (v *ValidationError) Error() string {
	if v == nil || len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for f := range v.FieldErrors {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+v.FieldErrors[f])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (v *ValidationError) Add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if _, exists := v.FieldErrors[field]; exists {
		return
	}
	v.FieldErrors[field] = message
}

func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// Err returns v as an error, or nil when nothing was recorded.
func (v *ValidationError) Err() error {
	if !v.HasErrors() {
		return nil
	}
	return v
}

func NewValidationError(field, message string) *ValidationError {
	v := &ValidationError{}
	v.Add(field, message)
	return v
}
