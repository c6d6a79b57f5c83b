package models

// Role is the relation of an actor to one booking.
type Role int

const (
	RoleNeither Role = iota
	RoleOwner
	RoleCaregiver
)

func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "owner"
	case RoleCaregiver:
		return "caregiver"
	default:
		return "neither"
	}
}

// RoleOf derives the actor's role on b. An actor that is both parties
// is reported as the owner.
func RoleOf(b *Booking, actorID string) Role {
	if b == nil || actorID == "" {
		return RoleNeither
	}
	switch actorID {
	case b.OwnerID:
		return RoleOwner
	case b.CaregiverID:
		return RoleCaregiver
	default:
		return RoleNeither
	}
}

// ActorKind separates end users from system collaborators.
type ActorKind string

const (
	ActorUser           ActorKind = "user"
	ActorPaymentGateway ActorKind = "payment_gateway"
)

// Actor is the principal on whose behalf a lifecycle operation runs.
type Actor struct {
	ID   string
	Kind ActorKind
}

func UserActor(id string) Actor {
	return Actor{ID: id, Kind: ActorUser}
}

// PaymentGatewayActor is used for transitions driven by payment events.
func PaymentGatewayActor() Actor {
	return Actor{ID: "wompi", Kind: ActorPaymentGateway}
}

// Principal is an authenticated identity issued by the identity provider.
type Principal struct {
	UID   string `json:"uid"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

func (p *Principal) Actor() Actor {
	if p == nil {
		return Actor{}
	}
	return UserActor(p.UID)
}
