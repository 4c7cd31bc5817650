package source

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/NasaVasa/pricewatch/internal/domain"
)

func classifyStatus(status int, header http.Header, body string, now time.Time) *domain.FetchError {
	err := fmt.Errorf("unexpected response: %s", body)
	switch {
	case status == http.StatusTooManyRequests:
		return &domain.FetchError{Status: status, RetryAfter: parseRetryAfter(header.Get("Retry-After"), now), Temporary: true, Err: err}
	case status >= 500:
		return &domain.FetchError{Status: status, Temporary: true, Err: err}
	default:
		return &domain.FetchError{Status: status, Err: err}
	}
}

// parseRetryAfter reads either delay-seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if delay := at.Sub(now); delay > 0 {
			return delay
		}
	}
	return 0
}
