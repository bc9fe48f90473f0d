package model

import (
	"fmt"
	"time"
)

type PetSize string

const (
	PetSizeSmall  PetSize = "small"
	PetSizeMedium PetSize = "medium"
	PetSizeLarge  PetSize = "large"
	PetSizeGiant  PetSize = "giant"
)

func (s PetSize) Valid() bool {
	switch s {
	case PetSizeSmall, PetSizeMedium, PetSizeLarge, PetSizeGiant:
		return true
	}
	return false
}

// Pricing is either a fixed price or a price per pet size tier. Amounts are in cents.
type Pricing struct {
	FixedCents int64
	BySize     map[PetSize]int64
}

func (p Pricing) Tiered() bool {
	return len(p.BySize) > 0
}

// PriceFor resolves the price to snapshot for a booking.
func (p Pricing) PriceFor(size PetSize) (int64, error) {
	if !p.Tiered() {
		return p.FixedCents, nil
	}
	if size == "" {
		return 0, fmt.Errorf("pet size is required for tiered pricing")
	}
	price, ok := p.BySize[size]
	if !ok {
		return 0, fmt.Errorf("no price configured for pet size %q", size)
	}
	return price, nil
}

type Service struct {
	ID                string
	TenantID          string
	Name              string
	DurationMinutes   int
	CapacityPerWindow int
	Active            bool
	Pricing           Pricing
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

const (
	MinServiceDuration = 5
	MaxServiceDuration = 8 * 60
)

func (s Service) Validate() error {
	v := &ValidationError{}
	if s.TenantID == "" {
		v.Add("tenant_id", "required")
	}
	if s.Name == "" {
		v.Add("name", "required")
	}
	if s.DurationMinutes < MinServiceDuration || s.DurationMinutes > MaxServiceDuration {
		v.Add("duration_minutes", fmt.Sprintf("must be between %d and %d", MinServiceDuration, MaxServiceDuration))
	}
	if s.CapacityPerWindow < 0 {
		v.Add("capacity_per_window", "must not be negative")
	}
	if s.Pricing.FixedCents < 0 {
		v.Add("price", "must not be negative")
	}
	for size, cents := range s.Pricing.BySize {
		if !size.Valid() {
			v.Add("price_by_size", fmt.Sprintf("unknown pet size %q", size))
		} else if cents < 0 {
			v.Add("price_by_size", "must not be negative")
		}
	}
	return v.Err()
}
