package offline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/NasaVasa/pricewatch/internal/domain"
	"github.com/shopspring/decimal"
)

// ErrNetwork marks failures where the server could not be reached or was unavailable. Only these
// failures are deferred to the queue.
var ErrNetwork = errors.New("server unreachable")

// StatusError is a response the server gave and will give again on replay.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (e *StatusError) Is(target error) bool {
	return target == domain.ErrNotFound && e.Status == http.StatusNotFound
}

// Remote is the set of server operations the client can defer.
type Remote interface {
	LookupProduct(ctx context.Context, barcode string) (*domain.Product, error)
	MarkAlertRead(ctx context.Context, alertID uint) error
	UpdatePrice(ctx context.Context, productID uint, price decimal.Decimal) error
}

type HTTPRemote struct {
	baseURL string
	client  *http.Client
}

func NewHTTPRemote(baseURL string, timeout time.Duration) *HTTPRemote {
	return &HTTPRemote{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (r *HTTPRemote) LookupProduct(ctx context.Context, barcode string) (*domain.Product, error) {
	var product domain.Product
	endpoint := "/api/products/lookup?barcode=" + url.QueryEscape(barcode)
	if err := r.do(ctx, http.MethodGet, endpoint, nil, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *HTTPRemote) MarkAlertRead(ctx context.Context, alertID uint) error {
	return r.do(ctx, http.MethodPost, fmt.Sprintf("/api/alerts/%d/read", alertID), nil, nil)
}

func (r *HTTPRemote) UpdatePrice(ctx context.Context, productID uint, price decimal.Decimal) error {
	body := map[string]decimal.Decimal{"price": price}
	return r.do(ctx, http.MethodPut, fmt.Sprintf("/api/products/%d/price", productID), body, nil)
}

// ListAlerts reads the server's recent alerts with their read state.
func (r *HTTPRemote) ListAlerts(ctx context.Context, limit int) ([]domain.AlertView, error) {
	var alerts []domain.AlertView
	if err := r.do(ctx, http.MethodGet, fmt.Sprintf("/api/alerts?limit=%d", limit), nil, &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

// Online reports whether the server answers its health check.
func (r *HTTPRemote) Online(ctx context.Context) bool {
	return r.do(ctx, http.MethodGet, "/health", nil, nil) == nil
}

func (r *HTTPRemote) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	request, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return err
	}
	request.Header.Set("Accept", "application/json")
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := r.client.Do(request)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer response.Body.Close()

	if response.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", ErrNetwork, response.StatusCode)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(response.Body, 1<<16)).Decode(&payload)
		return &StatusError{Status: response.StatusCode, Message: payload.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
