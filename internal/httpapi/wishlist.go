package httpapi

import (
	"net/http"

	"github.com/safar/storefront/internal/apperr"
)

func (h *Handler) respondWishlist(w http.ResponseWriter, r *http.Request) {
	wishlist, err := h.store.GetWishlist(r.Context(), identityFromContext(r.Context()).UserID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, wishlist)
}

func (h *Handler) getWishlist(w http.ResponseWriter, r *http.Request) {
	h.respondWishlist(w, r)
}

func (h *Handler) addToWishlist(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID int64 `json:"product_id"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if req.ProductID <= 0 {
		h.respondError(w, r, apperr.Validation("product_id is required"))
		return
	}

	if err := h.store.AddToWishlist(r.Context(), identityFromContext(r.Context()).UserID, req.ProductID); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondWishlist(w, r)
}

func (h *Handler) removeFromWishlist(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productID")
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if err := h.store.RemoveFromWishlist(r.Context(), identityFromContext(r.Context()).UserID, productID); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondWishlist(w, r)
}

func (h *Handler) mergeWishlist(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductIDs []int64 `json:"product_ids"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	if err := h.store.MergeWishlist(r.Context(), identityFromContext(r.Context()).UserID, req.ProductIDs); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondWishlist(w, r)
}
