package database

import (
	"sync"

	"safepaw/internal/models"
)

// watchHub fans committed booking writes out to in-process subscribers.
type watchHub struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]func(*models.Booking)
}

func newWatchHub() *watchHub {
	return &watchHub{subs: make(map[string]map[int]func(*models.Booking))}
}

func (h *watchHub) add(bookingID string, fn func(*models.Booking)) func() {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.subs[bookingID] == nil {
		h.subs[bookingID] = make(map[int]func(*models.Booking))
	}
	h.subs[bookingID][id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[bookingID], id)
			if len(h.subs[bookingID]) == 0 {
				delete(h.subs, bookingID)
			}
		})
	}
}

func (h *watchHub) notify(b *models.Booking) {
	h.mu.RLock()
	fns := make([]func(*models.Booking), 0, len(h.subs[b.ID]))
	for _, fn := range h.subs[b.ID] {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(b.Clone())
	}
}

func (h *watchHub) count(bookingID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[bookingID])
}
