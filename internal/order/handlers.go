package order

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/gardencraft/storefront-api/internal/common"
	"github.com/gardencraft/storefront-api/internal/db"
)

// AdminHandler provides administrative order management endpoints.
type AdminHandler struct {
	Q *db.Queries
}

type orderView struct {
	ID                string          `json:"id"`
	OrderNumber       string          `json:"orderNumber"`
	GuestName         string          `json:"guestName"`
	GuestEmail        string          `json:"guestEmail"`
	Subtotal          int64           `json:"subtotal"`
	ShippingCost      int64           `json:"shippingCost"`
	TaxAmount         int64           `json:"taxAmount"`
	Total             int64           `json:"total"`
	ShippingAddress   json.RawMessage `json:"shippingAddress"`
	PaymentStatus     string          `json:"paymentStatus"`
	FulfillmentStatus string          `json:"fulfillmentStatus"`
	PaidAt            *time.Time      `json:"paidAt,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
}

type orderItemView struct {
	ProductID           string          `json:"productId"`
	Quantity            int32           `json:"quantity"`
	UnitPrice           int64           `json:"unitPrice"`
	Total               int64           `json:"total"`
	VariantSelections   json.RawMessage `json:"variantSelections,omitempty"`
	PersonalizationText string          `json:"personalizationText,omitempty"`
}

func toOrderView(o db.Order) orderView {
	view := orderView{
		ID:                uuidString(o.ID),
		OrderNumber:       o.OrderNumber,
		GuestName:         o.GuestName,
		GuestEmail:        o.GuestEmail,
		Subtotal:          o.Subtotal,
		ShippingCost:      o.ShippingCost,
		TaxAmount:         o.TaxAmount,
		Total:             o.Total,
		ShippingAddress:   json.RawMessage(o.ShippingAddress),
		PaymentStatus:     o.PaymentStatus,
		FulfillmentStatus: o.FulfillmentStatus,
		CreatedAt:         o.CreatedAt.Time,
	}
	if o.PaidAt.Valid {
		paid := o.PaidAt.Time
		view.PaidAt = &paid
	}
	return view
}

func toOrderItemView(it db.OrderItem) orderItemView {
	view := orderItemView{
		ProductID: uuidString(it.ProductID),
		Quantity:  it.Quantity,
		UnitPrice: it.UnitPrice,
		Total:     it.Total,
	}
	if len(it.VariantSelections) > 0 {
		view.VariantSelections = json.RawMessage(it.VariantSelections)
	}
	if it.PersonalizationText.Valid {
		view.PersonalizationText = it.PersonalizationText.String
	}
	return view
}

// List returns recent orders, newest first.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := common.ParsePagination(r, 20)
	if perPage > 100 {
		perPage = 100
	}
	orders, err := h.Q.ListRecentOrders(r.Context(), int32(perPage), int32((page-1)*perPage))
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list orders", nil)
		return
	}
	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, toOrderView(o))
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": views,
		"pagination": common.Pagination{
			Page:    page,
			PerPage: perPage,
		},
	})
}

// Get returns one order with its line items.
func (h *AdminHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUID(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
		return
	}
	order, err := h.Q.GetOrderByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load order", nil)
		return
	}
	items, err := h.Q.ListOrderItems(r.Context(), id)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load order items", nil)
		return
	}
	itemViews := make([]orderItemView, 0, len(items))
	for _, it := range items {
		itemViews = append(itemViews, toOrderItemView(it))
	}
	view := toOrderView(order)
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"order": view,
			"items": itemViews,
		},
	})
}

// Count reports how many orders arrived in the requested trailing window.
// Defaults to the last 24 hours.
func (h *AdminHandler) Count(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if v, err := strconv.Atoi(r.URL.Query().Get("hours")); err == nil && v > 0 {
		hours = v
	}
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	count, err := h.Q.CountOrdersSince(r.Context(), since)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to count orders", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{"count": count, "sinceHours": hours},
	})
}

type patchFulfillmentRequest struct {
	Status string `json:"status"`
}

// PatchFulfillment advances the fulfillment status with state-machine
// validation. Transitions only move forward.
func (h *AdminHandler) PatchFulfillment(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUID(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
		return
	}
	var req patchFulfillmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if fulfillmentRank(req.Status) < 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unsupported status", nil)
		return
	}
	order, err := h.Q.GetOrderByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load order", nil)
		return
	}
	if fulfillmentRank(order.FulfillmentStatus) >= fulfillmentRank(req.Status) {
		common.JSONError(w, http.StatusConflict, "INVALID_STATE", "cannot transition to equal or previous state", nil)
		return
	}
	if err := h.Q.UpdateOrderFulfillmentStatus(r.Context(), id, req.Status); err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to update fulfillment status", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func fulfillmentRank(status string) int {
	switch status {
	case db.FulfillmentStatusUnfulfilled:
		return 0
	case db.FulfillmentStatusShipped:
		return 1
	case db.FulfillmentStatusDelivered:
		return 2
	default:
		return -1
	}
}
