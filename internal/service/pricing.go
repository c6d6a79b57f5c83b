package service

import (
	"math"
	"time"

	"safepaw/internal/domain"
	"safepaw/internal/models"
)

// BillableDays is the whole-day length of a window, never less than one.
func BillableDays(start, end time.Time) int64 {
	days := int64(math.Ceil(end.Sub(start).Hours() / 24))
	if days < 1 {
		return 1
	}
	return days
}

// UnitPrice is the per-day price in COP for service, falling back to the
// caregiver's lowest advertised price, or zero.
func UnitPrice(profile *models.CaregiverProfile, service string) int64 {
	if profile == nil {
		return 0
	}
	if p, ok := profile.ServicePrices[service]; ok && p > 0 {
		return p
	}
	return profile.LowestPrice()
}

// ComputePrice returns the booking price in cents.
//
// Every service is billed per day, including per-session ones like a walk.
// A price that does not fit in int64 cents is rejected.
func ComputePrice(profile *models.CaregiverProfile, service string, start, end time.Time) (int64, error) {
	unit := UnitPrice(profile, service)
	days := BillableDays(start, end)
	if unit > math.MaxInt64/100/days {
		return 0, domain.Invalid("endDate", "booking window is too long to price")
	}
	return unit * days * 100, nil
}
