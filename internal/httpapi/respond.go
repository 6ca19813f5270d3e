package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/safar/storefront/internal/apperr"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/store"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Kind    apperr.Kind `json:"kind"`
	Message string      `json:"message"`
	Detail  string      `json:"detail,omitempty"`
	OrderID int64       `json:"order_id,omitempty"`
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Error encoding JSON response", zap.Error(err))
	}
}

// respondError writes the classified error. Internal detail is only included
// outside production.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	err = classify(err)
	status := apperr.HTTPStatus(err)

	body := errorBody{
		Kind:    apperr.KindOf(err),
		Message: apperr.PublicMessage(err),
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		body.OrderID = appErr.OrderID
	}
	if !h.production {
		body.Detail = err.Error()
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}

	h.respondJSON(w, status, map[string]errorBody{"error": body})
}

// classify maps storage sentinels that reach a handler directly onto the
// client-facing taxonomy.
func classify(err error) error {
	switch {
	case errors.Is(err, database.ErrProductNotFound):
		return apperr.NotFound("product not found")
	case errors.Is(err, database.ErrOrderNotFound):
		return apperr.NotFound("order not found")
	case errors.Is(err, database.ErrUserNotFound):
		return apperr.NotFound("user not found")
	case errors.Is(err, database.ErrCartItemNotFound):
		return apperr.NotFound("item not found in cart")
	case errors.Is(err, database.ErrWishlistNotFound):
		return apperr.NotFound("product not in wishlist")
	case errors.Is(err, store.ErrInvalidCursor):
		return apperr.Validation("invalid cursor")
	case errors.Is(err, database.ErrEmailTaken):
		return apperr.Conflict("email already in use")
	case errors.Is(err, database.ErrInsufficientStock):
		return apperr.Conflict("insufficient stock")
	case errors.Is(err, database.ErrQuantityLimit):
		return apperr.Validation("quantity must not exceed %d", models.MaxItemQuantity)
	}
	return err
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("request body is empty")
		}
		return apperr.Validation("invalid request body")
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid %s", name)
	}
	return id, nil
}

// queryInt returns def when the parameter is absent or not a number.
func queryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return def
	}
	return v
}
