package models

import (
	"strings"
	"time"
)

// Service keys as stored on bookings and caregiver profiles.
const (
	ServiceWalk      = "paseo"
	ServiceDayCare   = "guarderia"
	ServiceOvernight = "hospedaje"
	ServiceHomeVisit = "visitas"
	ServiceOwnerHome = "cuidado_casa_dueno"
)

var serviceLabels = map[string]string{
	ServiceWalk:      "Paseo",
	ServiceDayCare:   "Guardería",
	ServiceOvernight: "Hospedaje",
	ServiceHomeVisit: "Visitas a domicilio",
	ServiceOwnerHome: "Cuidado en casa del dueño",
}

// KnownServices returns service keys in display order.
func KnownServices() []string {
	return []string{ServiceWalk, ServiceDayCare, ServiceOvernight, ServiceHomeVisit, ServiceOwnerHome}
}

func IsKnownService(s string) bool {
	_, ok := serviceLabels[s]
	return ok
}

// ServiceLabel returns the human label, or the key itself for unknown services.
func ServiceLabel(s string) string {
	if l, ok := serviceLabels[s]; ok {
		return l
	}
	return s
}

// CaregiverProfile is the public profile of a caregiver. Prices are whole COP.
type CaregiverProfile struct {
	ID            string           `json:"id" firestore:"-"`
	Name          string           `json:"name" firestore:"name"`
	City          string           `json:"city" firestore:"city"`
	CityKey       string           `json:"-" firestore:"cityKey"`
	Bio           string           `json:"bio,omitempty" firestore:"bio"`
	Services      []string         `json:"services" firestore:"services"`
	ServicePrices map[string]int64 `json:"servicePrices,omitempty" firestore:"servicePrices"`
	MinPrice      int64            `json:"minPrice" firestore:"minPrice"`
	RatingAvg     float64          `json:"ratingAvg" firestore:"ratingAvg"`
	RatingCount   int              `json:"ratingCount" firestore:"ratingCount"`
	PhotoURL      string           `json:"photoUrl,omitempty" firestore:"photoUrl"`
	UpdatedAt     time.Time        `json:"updatedAt" firestore:"updatedAt"`
}

// Offers reports whether the caregiver lists service.
func (c *CaregiverProfile) Offers(service string) bool {
	if c == nil {
		return false
	}
	for _, s := range c.Services {
		if s == service {
			return true
		}
	}
	return false
}

// LowestPrice is MinPrice when set, otherwise the lowest positive per-service price.
func (c *CaregiverProfile) LowestPrice() int64 {
	if c == nil {
		return 0
	}
	if c.MinPrice > 0 {
		return c.MinPrice
	}
	var lowest int64
	for _, p := range c.ServicePrices {
		if p > 0 && (lowest == 0 || p < lowest) {
			lowest = p
		}
	}
	return lowest
}

// CityKey is the case-folded form of a city that directory lookups match on.
func CityKey(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}

// CaregiverFilter narrows the directory listing. Empty fields match everything.
type CaregiverFilter struct {
	City    string
	Service string
}
