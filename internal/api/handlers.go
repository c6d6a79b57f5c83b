package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"safepaw/internal/domain"
	"safepaw/internal/export"
	"safepaw/internal/models"
	"safepaw/internal/payment"
	"safepaw/internal/service"
)

const (
	maxJSONBody    = 64 << 10
	maxWebhookBody = 1 << 20
)

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return domain.Invalid("body", "invalid JSON body")
	}
	return nil
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateBookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	req.IdempotencyKey = strings.TrimSpace(r.Header.Get("Idempotency-Key"))

	booking, err := s.deps.Bookings.CreateBooking(r.Context(), actorFrom(r), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := s.deps.Bookings.GetBooking(r.Context(), actorFrom(r), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleTransition(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	raw := strings.TrimSpace(body.Status)
	if raw == "" {
		s.writeServiceError(w, r, domain.Invalid("status", "is required"))
		return
	}

	target := models.BookingStatus(strings.ToUpper(raw))
	booking, err := s.deps.Bookings.RequestTransition(r.Context(), r.PathValue("id"), actorFrom(r), target)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleStartPayment(w http.ResponseWriter, r *http.Request) {
	start, err := s.deps.Payments.StartPayment(r.Context(), actorFrom(r), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, start)
}

func (s *HTTPServer) handleOwnerBookings(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	bookings, err := s.deps.Bookings.ListByOwner(r.Context(), actor.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bookings": bookings,
		"buckets":  models.PartitionByStatus(bookings),
	})
}

func (s *HTTPServer) handleCaregiverBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var status models.BookingStatus
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		status = models.BookingStatus(strings.ToUpper(raw))
	}

	limit := 0
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeServiceError(w, r, domain.Invalid("limit", "must be a non-negative integer"))
			return
		}
		limit = n
	}

	page, err := s.deps.Bookings.ListByCaregiver(r.Context(), actorFrom(r).ID, status, q.Get("cursor"), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *HTTPServer) handlePendingCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Bookings.CountPending(r.Context(), actorFrom(r).ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	caregiverID := actorFrom(r).ID
	bookings, err := s.deps.Bookings.ExportByCaregiver(r.Context(), caregiverID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName(caregiverID, time.Now().In(s.deps.Location))+`"`)
	if err := export.WriteBookings(w, bookings, s.deps.Location); err != nil {
		s.logger.Error().Err(err).Str("caregiver_id", caregiverID).Msg("export failed")
	}
}

func (s *HTTPServer) handleListCaregivers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := s.deps.Caregivers.List(r.Context(), models.CaregiverFilter{
		City:    q.Get("city"),
		Service: q.Get("service"),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []*models.CaregiverProfile{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"caregivers": list})
}

func (s *HTTPServer) handleGetCaregiver(w http.ResponseWriter, r *http.Request) {
	profile, err := s.deps.Caregivers.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *HTTPServer) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	var in models.CaregiverProfile
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	profile, err := s.deps.Caregivers.SaveProfile(r.Context(), actorFrom(r), in)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *HTTPServer) handleAcceptanceToken(w http.ResponseWriter, r *http.Request) {
	token, err := s.deps.Payments.AcceptanceToken(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"acceptanceToken": token})
}

// handleWompiWebhook always answers 200 so the gateway stops retrying;
// the outcome is logged and counted by the payment service.
func (s *HTTPServer) handleWompiWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		s.logger.Warn().Err(err).Msg("webhook body unreadable")
		writeJSON(w, http.StatusOK, map[string]string{"outcome": string(service.OutcomeMalformed)})
		return
	}

	signature := ""
	for _, h := range payment.SignatureHeaders {
		if v := strings.TrimSpace(r.Header.Get(h)); v != "" {
			signature = v
			break
		}
	}

	outcome := s.deps.Payments.HandleWebhook(r.Context(), body, signature)
	writeJSON(w, http.StatusOK, map[string]string{"outcome": string(outcome)})
}

func (s *HTTPServer) handleSignUpload(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Timestamp int64 `json:"timestamp"`
	}
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, &body); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
	}
	if body.Timestamp == 0 {
		body.Timestamp = time.Now().Unix()
	}

	sig, err := s.deps.Media.SignUpload(body.Timestamp)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sig)
}

func (s *HTTPServer) handleUploadPhoto(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, service.MaxPhotoBytes+(64<<10))
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeServiceError(w, r, domain.Invalid("file", "is too large"))
			return
		}
		s.writeServiceError(w, r, domain.Invalid("file", "is required"))
		return
	}
	defer file.Close()

	if header.Size > service.MaxPhotoBytes {
		s.writeServiceError(w, r, domain.Invalid("file", "is too large"))
		return
	}

	url, err := s.deps.Media.UploadPhoto(r.Context(), file, header.Filename)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"photoUrl": url})
}
