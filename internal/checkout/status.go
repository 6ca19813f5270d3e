package checkout

import (
	"context"
	"database/sql"
	"errors"

	"github.com/safar/storefront/internal/apperr"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/events"
	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/store"
	"go.uber.org/zap"
)

// paymentStatusFor derives the payment status that keeps an order consistent
// after an admin moves it to next.
func paymentStatusFor(order *models.Order, next string) (string, error) {
	switch order.OrderStatus {
	case models.OrderStatusCancelled, models.OrderStatusDelivered:
		return "", apperr.Conflict("order %d is %s and can no longer change", order.ID, order.OrderStatus)
	}

	cod := order.PaymentMethod == models.PaymentMethodCOD
	paid := order.PaymentStatus == models.PaymentStatusCompleted

	switch next {
	case models.OrderStatusCancelled:
		if paid {
			return "", apperr.Conflict("order %d is paid and cannot be cancelled without a refund", order.ID)
		}
		return models.PaymentStatusFailed, nil
	case models.OrderStatusPending:
		if paid {
			return "", apperr.Conflict("order %d is paid and cannot return to pending", order.ID)
		}
		return order.PaymentStatus, nil
	case models.OrderStatusDelivered:
		if cod {
			return models.PaymentStatusCompleted, nil
		}
		fallthrough
	default:
		if !cod && !paid {
			return "", apperr.Conflict("order %d has no completed payment", order.ID)
		}
		return order.PaymentStatus, nil
	}
}

// UpdateOrderStatus is the admin transition. Order and payment status move
// together, and open payment intents are failed when the order is cancelled.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID int64, status string) (*models.Order, error) {
	if !models.ValidOrderStatus(status) {
		return nil, apperr.Validation("invalid order status %q", status)
	}

	var order *models.Order
	var changed bool
	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var err error
		order, err = store.LockOrder(ctx, tx, orderID)
		if err != nil {
			if errors.Is(err, database.ErrOrderNotFound) {
				return apperr.NotFound("order %d not found", orderID)
			}
			return err
		}
		if order.OrderStatus == status {
			changed = false
			return nil
		}

		paymentStatus, err := paymentStatusFor(order, status)
		if err != nil {
			return err
		}

		if _, err := store.TransitionOrder(ctx, tx, order.ID, []string{order.OrderStatus}, status, paymentStatus); err != nil {
			return err
		}
		if status == models.OrderStatusCancelled {
			if _, err := store.FailPendingPaymentsForOrder(ctx, tx, order.ID); err != nil {
				return err
			}
		}

		order.OrderStatus = status
		order.PaymentStatus = paymentStatus
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.logger.Info("Order status updated",
			zap.Int64("order_id", order.ID),
			zap.String("order_status", order.OrderStatus),
			zap.String("payment_status", order.PaymentStatus))

		e := events.New(events.OrderStatusChanged, order.ID)
		e.UserID = order.UserID
		e.Amount = order.TotalAmount
		e.Status = order.OrderStatus
		s.publish(ctx, e)
	}

	return order, nil
}
