package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/NasaVasa/pricewatch/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type fakeAlerts struct {
	views   []domain.AlertView
	limit   int
	readIDs []uint
	err     error
}

func (f *fakeAlerts) ListRecent(ctx context.Context, limit int) ([]domain.AlertView, error) {
	f.limit = limit
	return f.views, f.err
}

func (f *fakeAlerts) MarkRead(ctx context.Context, alertID uint, at time.Time) error {
	if alertID == 404 {
		return domain.ErrNotFound
	}
	f.readIDs = append(f.readIDs, alertID)
	return f.err
}

type fakeProducts struct {
	products map[string]domain.Product
	prices   map[uint]decimal.Decimal
}

func (f *fakeProducts) GetBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	product, ok := f.products[sku]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &product, nil
}

func (f *fakeProducts) UpdateListPrice(ctx context.Context, productID uint, price decimal.Decimal) error {
	if productID == 404 {
		return domain.ErrNotFound
	}
	f.prices[productID] = price
	return nil
}

type fakeHistory struct {
	productID, competitorID uint
	limit                   int
}

func (f *fakeHistory) RecentObservations(ctx context.Context, productID, competitorID uint, limit int) ([]domain.PriceObservation, error) {
	f.productID, f.competitorID, f.limit = productID, competitorID, limit
	return []domain.PriceObservation{{ID: 1, ProductID: productID, CompetitorID: competitorID, Price: decimal.NewFromInt(10)}}, nil
}

type testServer struct {
	alerts   *fakeAlerts
	products *fakeProducts
	history  *fakeHistory
	handler  http.Handler
}

func newTestServer(ping func(ctx context.Context) error) *testServer {
	s := &testServer{
		alerts: &fakeAlerts{},
		products: &fakeProducts{
			products: map[string]domain.Product{"4006381333931": {ID: 7, Name: "Kettle", SKU: "4006381333931"}},
			prices:   make(map[uint]decimal.Decimal),
		},
		history: &fakeHistory{},
	}
	s.handler = NewRouter(Deps{
		Alerts:   s.alerts,
		Products: s.products,
		History:  s.history,
		Ping:     ping,
		Logger:   zap.NewNop(),
	}, []string{"http://localhost:3000"})
	return s
}

func (s *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	if rec := newTestServer(nil).do(t, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	failing := newTestServer(func(ctx context.Context) error { return errors.New("db down") })
	if rec := failing.do(t, http.MethodGet, "/health", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestListAlerts(t *testing.T) {
	s := newTestServer(nil)
	s.alerts.views = []domain.AlertView{{Alert: domain.Alert{ID: 1, Significance: domain.SignificanceHigh}, Read: true}}

	rec := s.do(t, http.MethodGet, "/api/alerts?limit=1000", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if s.alerts.limit != maxAlertLimit {
		t.Fatalf("expected limit clamped to %d, got %d", maxAlertLimit, s.alerts.limit)
	}
	var views []domain.AlertView
	if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(views) != 1 || !views[0].Read || views[0].ID != 1 {
		t.Fatalf("unexpected alerts %+v", views)
	}

	if rec := s.do(t, http.MethodGet, "/api/alerts?limit=abc", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}
}

func TestMarkAlertRead(t *testing.T) {
	s := newTestServer(nil)

	rec := s.do(t, http.MethodPost, "/api/alerts/12/read", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(s.alerts.readIDs) != 1 || s.alerts.readIDs[0] != 12 {
		t.Fatalf("unexpected reads %v", s.alerts.readIDs)
	}

	if rec := s.do(t, http.MethodPost, "/api/alerts/404/read", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/api/alerts/x/read", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestLookupProduct(t *testing.T) {
	s := newTestServer(nil)

	rec := s.do(t, http.MethodGet, "/api/products/lookup?barcode=4006381333931", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var product domain.Product
	if err := json.Unmarshal(rec.Body.Bytes(), &product); err != nil || product.ID != 7 {
		t.Fatalf("unexpected product %+v (%v)", product, err)
	}

	if rec := s.do(t, http.MethodGet, "/api/products/lookup?barcode=missing", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	rec = s.do(t, http.MethodGet, "/api/products/lookup", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["error"] == "" {
		t.Fatalf("expected error body, got %s", rec.Body)
	}
}

func TestUpdatePrice(t *testing.T) {
	s := newTestServer(nil)

	rec := s.do(t, http.MethodPut, "/api/products/7/price", `{"price":"12.34"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if got := s.products.prices[7]; got.String() != "12.34" {
		t.Fatalf("unexpected stored price %s", got)
	}

	tests := []struct {
		target string
		body   string
		want   int
	}{
		{target: "/api/products/7/price", body: `{"price":-1}`, want: http.StatusBadRequest},
		{target: "/api/products/7/price", body: `{"cost":1}`, want: http.StatusBadRequest},
		{target: "/api/products/7/price", body: `{}`, want: http.StatusBadRequest},
		{target: "/api/products/404/price", body: `{"price":5}`, want: http.StatusNotFound},
	}
	for _, tt := range tests {
		if rec := s.do(t, http.MethodPut, tt.target, tt.body); rec.Code != tt.want {
			t.Fatalf("PUT %s %s: expected %d, got %d", tt.target, tt.body, tt.want, rec.Code)
		}
	}
}

func TestPriceHistory(t *testing.T) {
	s := newTestServer(nil)

	rec := s.do(t, http.MethodGet, "/api/products/7/price-history?competitor_id=3&limit=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if s.history.productID != 7 || s.history.competitorID != 3 || s.history.limit != 5 {
		t.Fatalf("unexpected query %+v", s.history)
	}

	if rec := s.do(t, http.MethodGet, "/api/products/7/price-history", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without competitor, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/products/7/price", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}
