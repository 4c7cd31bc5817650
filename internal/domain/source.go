package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrPermanentFetch matches every fetch error that must not be retried.
var ErrPermanentFetch = errors.New("permanent fetch error")

// PriceQuote is a competitor's current price for one product.
type PriceQuote struct {
	Price    decimal.Decimal
	Currency string
	URL      string
}

type PriceSource interface {
	FetchPrice(ctx context.Context, pair Pair) (PriceQuote, error)
}

// FetchError describes a failed price fetch and whether retrying may help.
type FetchError struct {
	Status     int
	RetryAfter time.Duration
	Temporary  bool
	Err        error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("source status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("source: %v", e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func (e *FetchError) Is(target error) bool {
	return target == ErrPermanentFetch && !e.Temporary
}

// IsTemporaryFetch reports whether err is a fetch failure worth retrying.
func IsTemporaryFetch(err error) bool {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Temporary
	}
	return false
}

// FetchRetryAfter returns the server-requested delay carried by err, if any.
func FetchRetryAfter(err error) time.Duration {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.RetryAfter
	}
	return 0
}
