package tangguh

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// maxRetryAfter caps server-communicated delays at one hour. Anything larger
// is almost certainly a clock problem on the far side.
const maxRetryAfter = time.Hour

// ParseRetryAfter parses a Retry-After style header value into a delay.
// It supports both the delay-seconds form and the HTTP-date form. The second
// return value is false when the value carries no usable hint: empty input,
// malformed content, non-positive seconds or a date in the past.
func ParseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds <= 0 {
			return 0, false
		}
		delay := time.Duration(seconds) * time.Second
		if delay > maxRetryAfter {
			delay = maxRetryAfter
		}
		return delay, true
	}

	if t, err := http.ParseTime(value); err == nil {
		delay := time.Until(t)
		if delay <= 0 {
			return 0, false
		}
		if delay > maxRetryAfter {
			delay = maxRetryAfter
		}
		return delay, true
	}

	return 0, false
}
