package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"safepaw/internal/domain"
	"safepaw/internal/models"

	"github.com/rs/zerolog"
)

// WompiClient talks to the Wompi merchant API.
type WompiClient struct {
	baseURL    string
	publicKey  string
	httpClient *http.Client
	now        func() time.Time
	logger     *zerolog.Logger
}

func NewWompiClient(baseURL, publicKey string, timeout time.Duration, logger *zerolog.Logger) *WompiClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &WompiClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		publicKey:  publicKey,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
		logger:     logger,
	}
}

type merchantResponse struct {
	Data struct {
		PresignedAcceptance struct {
			AcceptanceToken string `json:"acceptance_token"`
			Permalink       string `json:"permalink"`
		} `json:"presigned_acceptance"`
	} `json:"data"`
}

// AcceptanceToken fetches the presigned acceptance token of the merchant.
func (c *WompiClient) AcceptanceToken(ctx context.Context) (string, error) {
	if c.baseURL == "" || c.publicKey == "" {
		return "", domain.Unavailable("wompi", fmt.Errorf("wompi configuration incomplete"))
	}

	endpoint := fmt.Sprintf("%s/v1/merchants/%s", c.baseURL, url.PathEscape(c.publicKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build wompi request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", domain.Unavailable("wompi", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().Int("status", resp.StatusCode).Msg("wompi merchant lookup failed")
		return "", domain.Unavailable("wompi", fmt.Errorf("merchant lookup status %d", resp.StatusCode))
	}

	var body merchantResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", domain.Unavailable("wompi", fmt.Errorf("decode merchant: %w", err))
	}

	token := body.Data.PresignedAcceptance.AcceptanceToken
	if token == "" {
		return "", domain.Unavailable("wompi", fmt.Errorf("merchant response has no acceptance_token"))
	}
	return token, nil
}

// CreateIntent prepares a payment intent for a booking. The checkout itself
// happens client-side with the returned reference.
func (c *WompiClient) CreateIntent(_ context.Context, amountInCents int64, currency, bookingID string) (*domain.PaymentIntent, error) {
	if amountInCents <= 0 {
		return nil, domain.Invalid("amountInCents", "must be a positive number")
	}
	if bookingID == "" {
		return nil, domain.Invalid("bookingId", "is required")
	}
	if currency == "" {
		currency = models.DefaultCurrency
	}

	return &domain.PaymentIntent{
		Reference:     NewReference(bookingID, c.now()),
		Currency:      strings.ToUpper(currency),
		AmountInCents: amountInCents,
		BookingID:     bookingID,
	}, nil
}
