package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"safepaw/internal/models"
)

const sseKeepAlive = 15 * time.Second

// handleBookingEvents streams the booking as server-sent events: the current
// state first, then one "booking" event per write. A "deleted" event ends
// the stream when the record disappears.
func (s *HTTPServer) handleBookingEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	var (
		mu      sync.Mutex
		latest  *models.Booking
		pending bool
	)
	signal := make(chan struct{}, 1)
	onChange := func(b *models.Booking) {
		mu.Lock()
		latest, pending = b, true
		mu.Unlock()
		select {
		case signal <- struct{}{}:
		default:
		}
	}

	ctx := r.Context()
	cancel, err := s.deps.Bookings.Subscribe(ctx, actorFrom(r), r.PathValue("id"), onChange)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	defer cancel()

	// the write deadline would otherwise cut long-lived streams
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-signal:
			mu.Lock()
			b, ready := latest, pending
			pending = false
			mu.Unlock()
			if !ready {
				continue
			}
			if b == nil {
				_, _ = fmt.Fprint(w, "event: deleted\ndata: {}\n\n")
				flusher.Flush()
				return
			}
			data, err := json.Marshal(b)
			if err != nil {
				s.logger.Error().Err(err).Str("booking_id", b.ID).Msg("encode booking event")
				return
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: booking\ndata: %s\n\n", b.Version, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
