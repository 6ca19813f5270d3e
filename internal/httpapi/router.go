// Package httpapi exposes the storefront over HTTP.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type Handler struct {
	checkout   Checkout
	store      Store
	logger     *zap.Logger
	production bool
}

// NewHandler builds the API handler. production hides internal error detail
// from responses.
func NewHandler(checkout Checkout, store Store, logger *zap.Logger, production bool) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		checkout:   checkout,
		store:      store,
		logger:     logger,
		production: production,
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(h.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.listProducts)
		r.Get("/products/{id}", h.getProduct)

		// Called back by the client after the gateway checkout; the
		// signature is the credential.
		r.Post("/payments/verify", h.verifyPayment)

		r.Group(func(r chi.Router) {
			r.Use(h.authenticate)

			r.Get("/users/me", h.getMe)
			r.Put("/users/me", h.updateMe)

			r.Post("/orders", h.createOrder)
			r.Get("/orders/my", h.listMyOrders)
			r.Get("/orders/{id}", h.getOrder)
			r.Post("/orders/{id}/payment-intent", h.issueIntent)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", h.getCart)
				r.Post("/items", h.addToCart)
				r.Put("/items/{productID}", h.updateCartItem)
				r.Delete("/items/{productID}", h.removeCartItem)
				r.Delete("/", h.clearCart)
				r.Post("/merge", h.mergeCart)
			})

			r.Route("/wishlist", func(r chi.Router) {
				r.Get("/", h.getWishlist)
				r.Post("/items", h.addToWishlist)
				r.Delete("/items/{productID}", h.removeFromWishlist)
				r.Post("/merge", h.mergeWishlist)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(h.requireAdmin)
				r.Get("/orders", h.listAllOrders)
				r.Put("/orders/{id}/status", h.updateOrderStatus)
				r.Get("/stats", h.dashboardStats)
			})
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Warn("Health check failed", zap.Error(err))
		h.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
