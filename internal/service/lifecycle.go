package service

import (
	"fmt"

	"safepaw/internal/domain"
	"safepaw/internal/models"
)

// AuthorizeTransition decides whether actor may move b to target.
// The role check runs first so that a wrong actor always gets ErrUnauthorized,
// whatever state the booking is in.
func AuthorizeTransition(b *models.Booking, actor models.Actor, target models.BookingStatus) error {
	if !target.IsValid() || target == models.StatusRequested {
		return fmt.Errorf("%w: unknown target %q", domain.ErrInvalidTransition, target)
	}

	if !holdsRequiredRole(b, actor, target) {
		return fmt.Errorf("%w: %s may not set %s", domain.ErrUnauthorized, actorLabel(b, actor), target)
	}

	if !b.Status.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, b.Status, target)
	}
	return nil
}

func holdsRequiredRole(b *models.Booking, actor models.Actor, target models.BookingStatus) bool {
	switch target {
	case models.StatusAccepted, models.StatusDeclined:
		return actor.Kind == models.ActorUser && actor.ID != "" && actor.ID == b.CaregiverID
	case models.StatusCancelled:
		return actor.Kind == models.ActorUser && actor.ID != "" && actor.ID == b.OwnerID
	case models.StatusPendingPayment, models.StatusPaid:
		return actor.Kind == models.ActorPaymentGateway
	default:
		return false
	}
}

func actorLabel(b *models.Booking, actor models.Actor) string {
	if actor.Kind == models.ActorPaymentGateway {
		return "payment gateway"
	}
	return models.RoleOf(b, actor.ID).String()
}
