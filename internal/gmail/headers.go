package gmail

import (
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
)

// ParseDate parses a message date as sent by API clients: RFC 3339, epoch
// milliseconds, or an RFC 5322 Date header value. It returns the zero time
// when the value cannot be parsed.
func ParseDate(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC()
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil && ms > 0 {
		return time.UnixMilli(ms).UTC()
	}
	return parseDate(raw)
}

// parseDate parses an RFC 5322 Date header value.
func parseDate(raw string) time.Time {
	var h mail.Header
	h.Set("Date", raw)
	t, err := h.Date()
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
