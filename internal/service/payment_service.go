package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"safepaw/internal/domain"
	"safepaw/internal/metrics"
	"safepaw/internal/models"
	"safepaw/internal/payment"

	"github.com/rs/zerolog"
)

// WebhookOutcome is the internal result of a payment webhook delivery.
// The sender always receives 200; the outcome is only logged and counted.
type WebhookOutcome string

const (
	OutcomePaid              WebhookOutcome = "paid"
	OutcomeRejectedSignature WebhookOutcome = "rejected_signature"
	OutcomeMalformed         WebhookOutcome = "malformed"
	OutcomeIgnored           WebhookOutcome = "ignored"
	OutcomeDuplicate         WebhookOutcome = "duplicate"
	OutcomeNotFound          WebhookOutcome = "not_found"
	OutcomeAmountMismatch    WebhookOutcome = "amount_mismatch"
	OutcomeConflict          WebhookOutcome = "conflict"
	OutcomeError             WebhookOutcome = "error"
)

const webhookDedupeTTL = 7 * 24 * time.Hour

type PaymentService struct {
	bookings     *BookingService
	gateway      domain.PaymentGateway
	kv           domain.KeyValueStore
	eventsSecret string
	currency     string
	logger       *zerolog.Logger
}

func NewPaymentService(
	bookings *BookingService,
	gateway domain.PaymentGateway,
	kv domain.KeyValueStore,
	eventsSecret, currency string,
	logger *zerolog.Logger,
) *PaymentService {
	if currency == "" {
		currency = models.DefaultCurrency
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &PaymentService{
		bookings:     bookings,
		gateway:      gateway,
		kv:           kv,
		eventsSecret: eventsSecret,
		currency:     currency,
		logger:       logger,
	}
}

func (p *PaymentService) AcceptanceToken(ctx context.Context) (string, error) {
	return p.gateway.AcceptanceToken(ctx)
}

// PaymentStart is what the owner needs to open the gateway checkout.
type PaymentStart struct {
	Booking *models.Booking       `json:"booking"`
	Intent  *domain.PaymentIntent `json:"intent"`
}

// StartPayment opens a payment intent for an ACCEPTED booking and moves it
// to PENDING_PAYMENT. Only the owner may start it.
func (p *PaymentService) StartPayment(ctx context.Context, actor models.Actor, bookingID string) (*PaymentStart, error) {
	b, err := p.bookings.store.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if actor.Kind != models.ActorUser || actor.ID == "" || actor.ID != b.OwnerID {
		return nil, fmt.Errorf("%w: only the owner can pay a booking", domain.ErrUnauthorized)
	}
	if b.Status != models.StatusAccepted {
		return nil, fmt.Errorf("%w: payment requires %s, booking is %s", domain.ErrInvalidTransition, models.StatusAccepted, b.Status)
	}
	if b.PriceInCents <= 0 {
		return nil, domain.Invalid("priceInCents", "booking has no payable amount")
	}

	intent, err := p.gateway.CreateIntent(ctx, b.PriceInCents, p.currency, b.ID)
	if err != nil {
		return nil, err
	}

	updated, err := p.bookings.transition(ctx, b, models.PaymentGatewayActor(), models.StatusPendingPayment, func(patch *models.BookingPatch) {
		patch.PaymentReference = intent.Reference
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info().Str("booking_id", b.ID).Str("reference", intent.Reference).Int64("amount_in_cents", intent.AmountInCents).Msg("payment intent created")
	return &PaymentStart{Booking: updated, Intent: intent}, nil
}

// HandleWebhook verifies and applies a gateway event. It never returns an
// error: every outcome is logged and counted instead.
func (p *PaymentService) HandleWebhook(ctx context.Context, body []byte, signature string) WebhookOutcome {
	outcome, ev := p.handleWebhook(ctx, body, signature)
	metrics.IncWebhook(string(outcome))

	logEvt := p.logger.Info()
	if outcome != OutcomePaid && outcome != OutcomeIgnored && outcome != OutcomeDuplicate {
		logEvt = p.logger.Warn()
	}
	if ev != nil {
		tx := ev.Data.Transaction
		logEvt = logEvt.Str("event", ev.Event).Str("transaction_id", tx.ID).Str("reference", tx.Reference).Str("tx_status", tx.Status)
	}
	logEvt.Str("outcome", string(outcome)).Msg("wompi webhook processed")

	return outcome
}

func (p *PaymentService) handleWebhook(ctx context.Context, body []byte, signature string) (WebhookOutcome, *payment.Event) {
	if p.eventsSecret == "" {
		p.logger.Error().Msg("wompi events secret not configured, refusing webhook")
		return OutcomeRejectedSignature, nil
	}
	if !payment.VerifySignature(p.eventsSecret, body, signature) {
		return OutcomeRejectedSignature, nil
	}

	ev, err := payment.ParseEvent(body)
	if err != nil {
		return OutcomeMalformed, nil
	}
	tx := ev.Data.Transaction
	if ev.Event != payment.EventTransactionUpdated || tx.Status != payment.TransactionApproved {
		return OutcomeIgnored, ev
	}

	bookingID, ok := payment.BookingIDFromReference(tx.Reference)
	if !ok {
		return OutcomeNotFound, ev
	}

	dedupeKey := ""
	if p.kv != nil && tx.ID != "" {
		dedupeKey = "wompi:tx:" + tx.ID + ":" + tx.Status
		claimed, _, err := p.kv.Claim(ctx, dedupeKey, webhookDedupeTTL)
		if err != nil {
			p.logger.Warn().Err(err).Str("transaction_id", tx.ID).Msg("webhook dedupe unavailable, continuing")
			dedupeKey = ""
		} else if !claimed {
			return OutcomeDuplicate, ev
		}
	}

	outcome := p.markPaid(ctx, bookingID, tx)
	if dedupeKey != "" && outcome != OutcomePaid && outcome != OutcomeDuplicate {
		if err := p.kv.Release(ctx, dedupeKey); err != nil {
			p.logger.Warn().Err(err).Str("key", dedupeKey).Msg("failed to release webhook dedupe key")
		}
	}
	return outcome, ev
}

func (p *PaymentService) markPaid(ctx context.Context, bookingID string, tx payment.Transaction) WebhookOutcome {
	b, err := p.bookings.store.GetByID(ctx, bookingID)
	if errors.Is(err, domain.ErrNotFound) {
		return OutcomeNotFound
	}
	if err != nil {
		p.logger.Error().Err(err).Str("booking_id", bookingID).Msg("load booking for webhook")
		return OutcomeError
	}

	if b.Status == models.StatusPaid {
		return OutcomeDuplicate
	}
	if b.PaymentReference != "" && b.PaymentReference != tx.Reference {
		p.logger.Warn().Str("booking_id", b.ID).Str("expected", b.PaymentReference).Str("got", tx.Reference).Msg("webhook reference does not match booking")
		return OutcomeIgnored
	}
	if tx.AmountInCents != b.PriceInCents {
		return OutcomeAmountMismatch
	}

	_, err = p.bookings.transition(ctx, b, models.PaymentGatewayActor(), models.StatusPaid, nil)
	switch {
	case err == nil:
		return OutcomePaid
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrInvalidTransition):
		return OutcomeConflict
	default:
		return OutcomeError
	}
}
