package service

import (
	"strings"
	"time"

	"safepaw/internal/domain"
	"safepaw/internal/models"
)

// bookingWindow is a validated request window. Dates are UTC midnights.
type bookingWindow struct {
	start time.Time
	end   time.Time
}

// validateCreate checks a booking request against the caregiver profile and
// the current wall clock in loc. Fields are reported in request order.
func validateCreate(req *domain.CreateBookingRequest, profile *models.CaregiverProfile, now time.Time, loc *time.Location) (bookingWindow, error) {
	var w bookingWindow

	req.Service = strings.TrimSpace(req.Service)
	if req.Service == "" {
		return w, domain.Invalid("service", "is required")
	}
	if !profile.Offers(req.Service) {
		return w, domain.Invalid("service", "caregiver does not offer this service")
	}

	start, err := time.Parse(models.DateLayout, strings.TrimSpace(req.StartDate))
	if err != nil {
		return w, domain.Invalid("startDate", "expected YYYY-MM-DD")
	}
	local := now.In(loc)
	today, _ := time.Parse(models.DateLayout, local.Format(models.DateLayout))
	if start.Before(today) {
		return w, domain.Invalid("startDate", "is in the past")
	}

	startTime, err := parseClock(req.StartTime)
	if err != nil {
		return w, domain.Invalid("startTime", "expected HH:MM")
	}
	if start.Equal(today) && startTime < local.Hour()*60+local.Minute() {
		return w, domain.Invalid("startTime", "is earlier than the current time")
	}

	if strings.TrimSpace(req.EndDate) == "" {
		req.EndDate = req.StartDate
	}
	end, err := time.Parse(models.DateLayout, strings.TrimSpace(req.EndDate))
	if err != nil {
		return w, domain.Invalid("endDate", "expected YYYY-MM-DD")
	}
	if end.Before(start) {
		return w, domain.Invalid("endDate", "is before startDate")
	}

	if strings.TrimSpace(req.EndTime) != "" {
		endTime, err := parseClock(req.EndTime)
		if err != nil {
			return w, domain.Invalid("endTime", "expected HH:MM")
		}
		if end.Equal(start) && endTime <= startTime {
			return w, domain.Invalid("endTime", "must be after startTime")
		}
	}

	if strings.TrimSpace(req.Address) == "" {
		return w, domain.Invalid("address", "is required")
	}
	if strings.TrimSpace(req.PetName) == "" {
		return w, domain.Invalid("petName", "is required")
	}

	w.start, w.end = start, end
	return w, nil
}

// parseClock returns minutes since midnight for an HH:MM value.
func parseClock(raw string) (int, error) {
	t, err := time.Parse(models.TimeLayout, strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
