package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
)

const (
	EventTransactionUpdated = "transaction.updated"

	TransactionApproved = "APPROVED"
	TransactionDeclined = "DECLINED"
	TransactionVoided   = "VOIDED"
	TransactionError    = "ERROR"
)

// SignatureHeaders are checked in order for the webhook signature.
var SignatureHeaders = []string{"X-Signature", "Integrity-Signature"}

var ErrMalformedEvent = errors.New("malformed wompi event")

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks header against the HMAC of the raw body.
// The header may carry the bare hex digest or a "sha256=" prefixed one.
func VerifySignature(secret string, body []byte, header string) bool {
	if secret == "" {
		return false
	}
	got := strings.ToLower(strings.TrimSpace(header))
	got = strings.TrimPrefix(got, "sha256=")
	if got == "" {
		return false
	}
	return hmac.Equal([]byte(got), []byte(Sign(secret, body)))
}

type Transaction struct {
	ID            string `json:"id"`
	Reference     string `json:"reference"`
	Status        string `json:"status"`
	AmountInCents int64  `json:"amount_in_cents"`
	Currency      string `json:"currency"`
}

// Event is the subset of a Wompi webhook body the booking core reads.
type Event struct {
	Event string `json:"event"`
	Data  struct {
		Transaction Transaction `json:"transaction"`
	} `json:"data"`
	SentAt string `json:"sent_at"`
}

func ParseEvent(body []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, ErrMalformedEvent
	}
	if ev.Event == "" {
		return nil, ErrMalformedEvent
	}
	return &ev, nil
}
