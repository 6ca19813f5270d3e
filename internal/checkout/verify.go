package checkout

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/safar/storefront/internal/apperr"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/events"
	"github.com/safar/storefront/internal/gateway"
	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/store"
	"go.uber.org/zap"
)

type VerifyInput struct {
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Signature        string `json:"gateway_signature"`
	// OrderID is only consulted when no payment row exists for the intent.
	OrderID int64 `json:"order_id,omitempty"`
}

type VerifyResult struct {
	OrderID       int64  `json:"order_id"`
	PaymentStatus string `json:"payment_status"`
	OrderStatus   string `json:"order_status"`
}

// verifyOutcome is what the transaction decided; events are published from it
// after commit.
type verifyOutcome struct {
	result   VerifyResult
	userID   int64
	payment  *models.Payment
	changed  bool
	mismatch bool
}

// Verify checks the gateway signature and finalizes payment and order state
// in one transaction. A mismatch is committed before the
// SignatureMismatch error is returned. Repeating a successful verification is
// a no-op that reports the same state.
func (s *Service) Verify(ctx context.Context, in VerifyInput) (*VerifyResult, error) {
	in.GatewayOrderID = strings.TrimSpace(in.GatewayOrderID)
	in.GatewayPaymentID = strings.TrimSpace(in.GatewayPaymentID)
	in.Signature = strings.TrimSpace(in.Signature)
	if in.GatewayOrderID == "" || in.GatewayPaymentID == "" || in.Signature == "" {
		return nil, apperr.Validation("gateway_order_id, gateway_payment_id and gateway_signature are required")
	}

	valid := gateway.VerifySignature(s.cfg.SignatureSecret, in.GatewayOrderID, in.GatewayPaymentID, in.Signature)

	var out verifyOutcome
	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		out = verifyOutcome{mismatch: !valid}

		payment, err := store.LockPaymentByGatewayOrderID(ctx, tx, in.GatewayOrderID)
		if err != nil && !errors.Is(err, database.ErrPaymentNotFound) {
			return err
		}
		if errors.Is(err, database.ErrPaymentNotFound) {
			payment = nil
		}

		orderID := in.OrderID
		if payment != nil {
			if in.OrderID != 0 && in.OrderID != payment.OrderID {
				s.logger.Warn("Verification order id does not match payment",
					zap.String("gateway_order_id", in.GatewayOrderID),
					zap.Int64("supplied_order_id", in.OrderID),
					zap.Int64("order_id", payment.OrderID))
			}
			orderID = payment.OrderID
			out.payment = payment
		}

		if !valid {
			return s.applyMismatch(ctx, tx, payment, orderID, &out)
		}
		return s.applySuccess(ctx, tx, payment, orderID, in, &out)
	})
	if err != nil {
		return nil, err
	}

	s.publishVerification(ctx, in.GatewayOrderID, out)

	if out.mismatch {
		s.logger.Warn("Payment signature mismatch",
			zap.String("gateway_order_id", in.GatewayOrderID),
			zap.Int64("order_id", out.result.OrderID))
		return nil, apperr.SignatureMismatch()
	}

	s.logger.Info("Payment verified",
		zap.String("gateway_order_id", in.GatewayOrderID),
		zap.Int64("order_id", out.result.OrderID),
		zap.Bool("changed", out.changed))
	return &out.result, nil
}

func (s *Service) applyMismatch(ctx context.Context, tx *sql.Tx, payment *models.Payment, orderID int64, out *verifyOutcome) error {
	out.result.PaymentStatus = models.PaymentFailed

	if payment != nil {
		out.result.PaymentStatus = payment.Status
		if payment.Status == models.PaymentSuccess {
			// A captured payment is never downgraded by a bad signature.
			out.result.OrderID = payment.OrderID
			return nil
		}
		changed, err := store.MarkPaymentFailed(ctx, tx, payment.ID)
		if err != nil {
			return err
		}
		out.changed = changed
		out.result.PaymentStatus = models.PaymentFailed
	}

	if orderID == 0 {
		return nil
	}

	order, err := store.LockOrder(ctx, tx, orderID)
	if err != nil {
		if errors.Is(err, database.ErrOrderNotFound) {
			return nil
		}
		return err
	}
	out.result.OrderID = order.ID
	out.result.OrderStatus = order.OrderStatus
	out.userID = order.UserID

	if order.PaymentMethod != models.PaymentMethodOnline {
		return nil
	}

	cancelled, err := store.TransitionOrder(ctx, tx, order.ID,
		[]string{models.OrderStatusPending}, models.OrderStatusCancelled, models.PaymentStatusFailed)
	if err != nil {
		return err
	}
	if cancelled {
		out.changed = true
		out.result.OrderStatus = models.OrderStatusCancelled
	}
	return nil
}

func (s *Service) applySuccess(ctx context.Context, tx *sql.Tx, payment *models.Payment, orderID int64, in VerifyInput, out *verifyOutcome) error {
	if payment == nil && orderID == 0 {
		return apperr.NotFound("payment record not found")
	}

	out.result.PaymentStatus = models.PaymentSuccess
	if payment != nil {
		switch payment.Status {
		case models.PaymentFailed:
			return apperr.Conflict("payment for %s has already failed", in.GatewayOrderID)
		case models.PaymentPending:
			ok, err := store.MarkPaymentSucceeded(ctx, tx, payment.ID, in.GatewayPaymentID, in.Signature)
			if err != nil {
				return err
			}
			out.changed = ok
		}
	}

	order, err := store.LockOrder(ctx, tx, orderID)
	if err != nil {
		if errors.Is(err, database.ErrOrderNotFound) {
			return apperr.NotFound("order %d not found", orderID)
		}
		return err
	}
	out.result.OrderID = order.ID
	out.result.OrderStatus = order.OrderStatus
	out.userID = order.UserID

	if payment == nil && order.PaymentMethod != models.PaymentMethodOnline {
		return apperr.Conflict("order %d is not an online payment order", order.ID)
	}

	confirmed, err := store.TransitionOrder(ctx, tx, order.ID,
		[]string{models.OrderStatusPending, models.OrderStatusConfirmed},
		models.OrderStatusConfirmed, models.PaymentStatusCompleted)
	if err != nil {
		return err
	}
	if confirmed {
		out.changed = out.changed || order.OrderStatus != models.OrderStatusConfirmed ||
			order.PaymentStatus != models.PaymentStatusCompleted
		out.result.OrderStatus = models.OrderStatusConfirmed
		if payment == nil {
			// Captured under an unrecorded intent; retire the order's others.
			if _, err := store.FailPendingPaymentsForOrder(ctx, tx, order.ID); err != nil {
				return err
			}
		}
		return nil
	}

	if order.OrderStatus == models.OrderStatusCancelled {
		s.logger.Warn("Payment captured for cancelled order",
			zap.Int64("order_id", order.ID),
			zap.String("gateway_order_id", in.GatewayOrderID))
	}
	return nil
}

func (s *Service) publishVerification(ctx context.Context, gatewayOrderID string, out verifyOutcome) {
	if !out.changed {
		return
	}

	t := events.PaymentSucceeded
	if out.mismatch {
		t = events.PaymentFailed
	}
	e := events.New(t, out.result.OrderID)
	e.UserID = out.userID
	e.GatewayOrderID = gatewayOrderID
	e.Status = out.result.PaymentStatus
	if out.payment != nil {
		e.Amount = out.payment.Amount
		if e.UserID == 0 {
			e.UserID = out.payment.UserID
		}
	}
	s.publish(ctx, e)
}
