package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/NasaVasa/pricewatch/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxBodyBytes = 1 << 20

type Client struct {
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
	now     func() time.Time
}

func NewClient(timeout time.Duration, ratePerSec float64, logger *zap.Logger) *Client {
	limit := rate.Inf
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
	}
	return &Client{
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
		now:     time.Now,
	}
}

// FetchPrice reads the current price of pair from its source URL. Failures are returned as *domain.FetchError.
func (c *Client) FetchPrice(ctx context.Context, pair domain.Pair) (domain.PriceQuote, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.PriceQuote{}, &domain.FetchError{Temporary: true, Err: fmt.Errorf("rate limit wait: %w", err)}
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, pair.SourceURL, nil)
	if err != nil {
		return domain.PriceQuote{}, &domain.FetchError{Err: fmt.Errorf("create request: %w", err)}
	}
	request.Header.Set("Accept", "application/json")

	start := time.Now()
	response, err := c.client.Do(request)
	if err != nil {
		c.logger.Warn(
			"source request failed",
			zap.Uint("product_id", pair.ProductID),
			zap.Uint("competitor_id", pair.CompetitorID),
			zap.String("url", pair.SourceURL),
			zap.Error(err),
		)
		return domain.PriceQuote{}, &domain.FetchError{Temporary: transientTransport(err), Err: err}
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxBodyBytes))
	if err != nil {
		return domain.PriceQuote{}, &domain.FetchError{Status: response.StatusCode, Temporary: true, Err: fmt.Errorf("read response body: %w", err)}
	}

	c.logger.Debug(
		"source request complete",
		zap.Uint("product_id", pair.ProductID),
		zap.Uint("competitor_id", pair.CompetitorID),
		zap.String("url", pair.SourceURL),
		zap.Int("status", response.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return domain.PriceQuote{}, classifyStatus(response.StatusCode, response.Header, truncate(body, 200), c.now())
	}

	var payload priceResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.PriceQuote{}, &domain.FetchError{Status: response.StatusCode, Err: fmt.Errorf("decode price: %w", err)}
	}
	if !payload.Price.Valid {
		return domain.PriceQuote{}, &domain.FetchError{Status: response.StatusCode, Err: errors.New("price missing")}
	}
	if !payload.Price.Decimal.IsPositive() {
		return domain.PriceQuote{}, &domain.FetchError{Status: response.StatusCode, Err: fmt.Errorf("price %s is not positive", payload.Price.Decimal)}
	}

	return domain.PriceQuote{Price: payload.Price.Decimal, Currency: payload.Currency, URL: pair.SourceURL}, nil
}

// transientTransport reports whether a failed round trip may succeed if repeated. Network and
// timeout failures qualify; a bad scheme, URL or TLS setup fails the same way every time.
func transientTransport(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
