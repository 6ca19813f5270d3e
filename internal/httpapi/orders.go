package httpapi

import (
	"net/http"

	"github.com/safar/storefront/internal/apperr"
	"github.com/safar/storefront/internal/checkout"
	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/store"
	"github.com/shopspring/decimal"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type createOrderRequest struct {
	Items         []checkout.ItemInput `json:"items"`
	Address       string               `json:"address"`
	PaymentMethod string               `json:"payment_method"`
	Discount      decimal.Decimal      `json:"discount"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	result, err := h.checkout.CreateOrder(r.Context(), checkout.CreateOrderInput{
		UserID:         identityFromContext(r.Context()).UserID,
		Items:          req.Items,
		Address:        req.Address,
		PaymentMethod:  req.PaymentMethod,
		Discount:       req.Discount,
		IdempotencyKey: r.Header.Get(HeaderIdempotencyKey),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	h.respondJSON(w, status, result)
}

func (h *Handler) issueIntent(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	intent, err := h.checkout.IssueIntent(r.Context(), identityFromContext(r.Context()).UserID, orderID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]*checkout.PaymentIntent{"payment_intent": intent})
}

func (h *Handler) verifyPayment(w http.ResponseWriter, r *http.Request) {
	var req checkout.VerifyInput
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	result, err := h.checkout.Verify(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, result)
}

func (h *Handler) listMyOrders(w http.ResponseWriter, r *http.Request) {
	_, limit := store.NormalizePage(1, queryInt(r, "limit", store.DefaultPageSize))

	page, err := h.store.ListOrdersForUser(r.Context(), identityFromContext(r.Context()).UserID,
		r.URL.Query().Get("cursor"), limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, page)
}

type orderDetails struct {
	Order    *models.Order    `json:"order"`
	Payments []models.Payment `json:"payments"`
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	order, err := h.store.GetOrderForUser(r.Context(), orderID, identityFromContext(r.Context()).UserID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	payments, err := h.store.ListPaymentsForOrder(r.Context(), order.ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, orderDetails{Order: order, Payments: payments})
}

func (h *Handler) listAllOrders(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status != "" && !models.ValidOrderStatus(status) {
		h.respondError(w, r, apperr.Validation("invalid order status %q", status))
		return
	}
	page, limit := store.NormalizePage(queryInt(r, "page", 1), queryInt(r, "limit", store.DefaultPageSize))

	result, err := h.store.ListOrders(r.Context(), status, page, limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, result)
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	order, err := h.checkout.UpdateOrderStatus(r.Context(), orderID, req.Status)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, order)
}

func (h *Handler) dashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.DashboardStats(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, stats)
}
