package payment

import (
	"strconv"
	"strings"
	"time"
)

const referencePrefix = "SAFEPAW-"

// NewReference embeds the booking id in a unique payment reference:
// SAFEPAW-<bookingID>-<unix millis>.
func NewReference(bookingID string, now time.Time) string {
	return referencePrefix + bookingID + "-" + strconv.FormatInt(now.UnixMilli(), 10)
}

// BookingIDFromReference recovers the booking id from a reference built by NewReference.
func BookingIDFromReference(reference string) (string, bool) {
	rest, ok := strings.CutPrefix(reference, referencePrefix)
	if !ok {
		return "", false
	}
	i := strings.LastIndex(rest, "-")
	if i <= 0 {
		return "", false
	}
	if _, err := strconv.ParseInt(rest[i+1:], 10, 64); err != nil {
		return "", false
	}
	return rest[:i], true
}
