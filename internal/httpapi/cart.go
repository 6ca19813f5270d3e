package httpapi

import (
	"net/http"

	"github.com/safar/storefront/internal/apperr"
	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/store"
)

type cartItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

func (h *Handler) respondCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.store.GetCart(r.Context(), identityFromContext(r.Context()).UserID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, cart)
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	h.respondCart(w, r)
}

func (h *Handler) addToCart(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if req.ProductID <= 0 || req.Quantity < 0 {
		h.respondError(w, r, apperr.Validation("product_id and a positive quantity are required"))
		return
	}
	if req.Quantity > models.MaxItemQuantity {
		h.respondError(w, r, apperr.Validation("quantity must not exceed %d", models.MaxItemQuantity))
		return
	}

	if err := h.store.AddToCart(r.Context(), identityFromContext(r.Context()).UserID, req.ProductID, req.Quantity); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondCart(w, r)
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productID")
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	if req.Quantity > models.MaxItemQuantity {
		h.respondError(w, r, apperr.Validation("quantity must not exceed %d", models.MaxItemQuantity))
		return
	}

	userID := identityFromContext(r.Context()).UserID
	if err := h.store.UpdateCartQuantity(r.Context(), userID, productID, req.Quantity); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondCart(w, r)
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productID")
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if err := h.store.RemoveCartItem(r.Context(), identityFromContext(r.Context()).UserID, productID); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondCart(w, r)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.store.ClearCart(r.Context(), identityFromContext(r.Context()).UserID); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondCart(w, r)
}

func (h *Handler) mergeCart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []store.CartLine `json:"items"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	if err := h.store.MergeCart(r.Context(), identityFromContext(r.Context()).UserID, req.Items); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondCart(w, r)
}
