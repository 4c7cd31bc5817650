package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/NasaVasa/pricewatch/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultAlertLimit   = 50
	maxAlertLimit       = 200
	defaultHistoryLimit = 30
	maxHistoryLimit     = 500
)

type handler struct {
	deps Deps
}

type updatePriceRequest struct {
	Price *decimal.Decimal `json:"price"`
}

type markReadResponse struct {
	ID     uint      `json:"id"`
	Read   bool      `json:"read"`
	ReadAt time.Time `json:"read_at"`
}

type updatePriceResponse struct {
	ID    uint            `json:"id"`
	Price decimal.Decimal `json:"price"`
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if h.deps.Ping != nil {
		if err := h.deps.Ping(r.Context()); err != nil {
			h.deps.Logger.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":    "unhealthy",
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"), defaultAlertLimit, maxAlertLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	alerts, err := h.deps.Alerts.ListRecent(r.Context(), limit)
	if err != nil {
		h.internalError(w, "list alerts", err)
		return
	}
	if alerts == nil {
		alerts = []domain.AlertView{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (h *handler) markAlertRead(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid alert id")
		return
	}
	at := time.Now().UTC()
	if err := h.deps.Alerts.MarkRead(r.Context(), id, at); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		h.internalError(w, "mark alert read", err)
		return
	}
	writeJSON(w, http.StatusOK, markReadResponse{ID: id, Read: true, ReadAt: at})
}

func (h *handler) lookupProduct(w http.ResponseWriter, r *http.Request) {
	barcode := strings.TrimSpace(r.URL.Query().Get("barcode"))
	if barcode == "" {
		writeError(w, http.StatusBadRequest, "barcode is required")
		return
	}
	product, err := h.deps.Products.GetBySKU(r.Context(), barcode)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		h.internalError(w, "lookup product", err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (h *handler) updatePrice(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	var body updatePriceRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Price == nil || !body.Price.IsPositive() {
		writeError(w, http.StatusBadRequest, "price must be a positive number")
		return
	}
	if err := h.deps.Products.UpdateListPrice(r.Context(), id, *body.Price); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		h.internalError(w, "update price", err)
		return
	}
	writeJSON(w, http.StatusOK, updatePriceResponse{ID: id, Price: *body.Price})
}

func (h *handler) priceHistory(w http.ResponseWriter, r *http.Request) {
	productID, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	competitorID, err := parseID(r.URL.Query().Get("competitor_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "competitor_id is required")
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"), defaultHistoryLimit, maxHistoryLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	observations, err := h.deps.History.RecentObservations(r.Context(), productID, competitorID, limit)
	if err != nil {
		h.internalError(w, "price history", err)
		return
	}
	if observations == nil {
		observations = []domain.PriceObservation{}
	}
	writeJSON(w, http.StatusOK, observations)
}

func (h *handler) internalError(w http.ResponseWriter, op string, err error) {
	h.deps.Logger.Error("request failed", zap.String("op", op), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func parseID(value string) (uint, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid id")
	}
	return uint(id), nil
}

func parseLimit(value string, fallback, maxLimit int) (int, error) {
	if strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	limit, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || limit <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit, nil
}
