package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"stocksaga/internal/pkg/logger"
	"stocksaga/internal/service/inventory/application"
	"stocksaga/internal/service/inventory/domain"
)

const defaultMovementLimit = 50

// InventoryHandler 库存与告警的运维 HTTP 入口
type InventoryHandler struct {
	ledger *application.LedgerService
	alerts *application.AlertService
}

func NewInventoryHandler(ledger *application.LedgerService, alerts *application.AlertService) *InventoryHandler {
	return &InventoryHandler{ledger: ledger, alerts: alerts}
}

func (h *InventoryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/inventory/stock", h.stock)
	mux.HandleFunc("POST /api/inventory/adjust", h.adjust)
	mux.HandleFunc("POST /api/inventory/threshold", h.threshold)
	mux.HandleFunc("GET /api/inventory/movements", h.movements)

	mux.HandleFunc("GET /api/stock-alerts", h.openAlerts)
	mux.HandleFunc("GET /api/stock-alerts/history", h.alertHistory)
	mux.HandleFunc("GET /api/stock-alerts/product", h.productAlerts)
	mux.HandleFunc("POST /api/stock-alerts/resolve", h.resolveAlert)
}

type stockView struct {
	ProductID     int64 `json:"productId"`
	PhysicalStock int   `json:"physicalStock"`
	Reserved      int   `json:"reserved"`
	Available     int   `json:"available"`
	MinThreshold  int   `json:"minThreshold"`
	Version       int64 `json:"version"`
}

func toStockView(e *domain.StockLedgerEntry) stockView {
	return stockView{
		ProductID:     e.ProductID,
		PhysicalStock: e.PhysicalStock,
		Reserved:      e.Reserved,
		Available:     e.Available,
		MinThreshold:  e.MinThreshold,
		Version:       e.Version,
	}
}

type movementView struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"productId"`
	Kind      string    `json:"kind"`
	Delta     int       `json:"delta"`
	OrderID   int64     `json:"orderId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type adjustRequest struct {
	ProductID int64 `json:"productId"`
	Delta     int   `json:"delta"`
}

type thresholdRequest struct {
	ProductID    int64 `json:"productId"`
	MinThreshold int   `json:"minThreshold"`
}

// stock 带 productId 时返回单个商品，否则返回全部
func (h *InventoryHandler) stock(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	if r.URL.Query().Get("productId") == "" {
		entries, err := h.ledger.List(ctx)
		if err != nil {
			writeError(w, r, err)
			return
		}
		views := make([]stockView, len(entries))
		for i, e := range entries {
			views[i] = toStockView(e)
		}
		writeJSON(w, http.StatusOK, views)
		return
	}

	productID, ok := int64Param(w, r, "productId")
	if !ok {
		return
	}
	entry, err := h.ledger.Snapshot(ctx, productID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStockView(entry))
}

func (h *InventoryHandler) adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	entry, err := h.ledger.AdjustPhysicalStock(extract(r), req.ProductID, req.Delta)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStockView(entry))
}

func (h *InventoryHandler) threshold(w http.ResponseWriter, r *http.Request) {
	var req thresholdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	entry, err := h.ledger.SetMinThreshold(extract(r), req.ProductID, req.MinThreshold)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStockView(entry))
}

func (h *InventoryHandler) movements(w http.ResponseWriter, r *http.Request) {
	productID, ok := int64Param(w, r, "productId")
	if !ok {
		return
	}
	limit := defaultMovementLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	movements, err := h.ledger.Movements(extract(r), productID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	views := make([]movementView, len(movements))
	for i, m := range movements {
		views[i] = movementView{
			ID:        m.ID,
			ProductID: m.ProductID,
			Kind:      string(m.Kind),
			Delta:     m.Delta,
			OrderID:   m.OrderID,
			CreatedAt: m.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *InventoryHandler) openAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.alerts.ListOpen(extract(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(alerts))
}

func (h *InventoryHandler) alertHistory(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.alerts.ListHistory(extract(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(alerts))
}

func (h *InventoryHandler) productAlerts(w http.ResponseWriter, r *http.Request) {
	productID, ok := int64Param(w, r, "productId")
	if !ok {
		return
	}
	alerts, err := h.alerts.ListByProduct(extract(r), productID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(alerts))
}

func (h *InventoryHandler) resolveAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}
	alert, err := h.alerts.Resolve(extract(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func nonNil(alerts []*domain.StockAlert) []*domain.StockAlert {
	if alerts == nil {
		return []*domain.StockAlert{}
	}
	return alerts
}

// writeError 把领域错误映射为状态码，其余错误只返回通用信息
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var insufficient *domain.InsufficientStockError
	switch {
	case errors.Is(err, domain.ErrEntryNotFound),
		errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrAlertNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrNegativePhysicalStock),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidThreshold),
		errors.As(err, &insufficient):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, domain.ErrConcurrentModification):
		http.Error(w, "stock ledger is busy, retry later", http.StatusConflict)
	default:
		logger.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("inventory request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func int64Param(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	if err != nil {
		http.Error(w, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return v, true
}

func extract(r *http.Request) context.Context {
	return otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
}
