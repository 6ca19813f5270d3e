package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"validation", Validation("items required"), http.StatusBadRequest},
		{"not found", NotFound("product %d not found", 7), http.StatusNotFound},
		{"conflict", Conflict("out of stock"), http.StatusConflict},
		{"gateway", PaymentGateway(1, errors.New("dial tcp")), http.StatusBadGateway},
		{"signature", SignatureMismatch(), http.StatusBadRequest},
		{"unauthorized", Unauthorized("missing user"), http.StatusUnauthorized},
		{"forbidden", Forbidden("admin only"), http.StatusForbidden},
		{"wrapped", fmt.Errorf("create order: %w", NotFound("user not found")), http.StatusNotFound},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := PaymentGateway(42, cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindPaymentGateway, KindOf(err))
	assert.Equal(t, int64(42), err.OrderID)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestPublicMessageHidesInternals(t *testing.T) {
	assert.Equal(t, "internal server error", PublicMessage(errors.New("pq: relation does not exist")))
	assert.Equal(t, "product 3 not found", PublicMessage(NotFound("product %d not found", 3)))
	assert.Equal(t, "payment gateway unavailable", PublicMessage(PaymentGateway(1, errors.New("secret detail"))))
}
