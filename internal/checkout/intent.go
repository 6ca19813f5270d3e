package checkout

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/safar/storefront/internal/apperr"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/events"
	"github.com/safar/storefront/internal/gateway"
	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/pricing"
	"github.com/safar/storefront/internal/store"
	"go.uber.org/zap"
)

// PaymentIntent is what a client needs to open the gateway checkout.
type PaymentIntent struct {
	GatewayOrderID string `json:"gateway_order_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Receipt        string `json:"receipt"`
	KeyID          string `json:"key_id,omitempty"`
	OrderID        int64  `json:"order_id"`
}

func (s *Service) intentFrom(payment *models.Payment) *PaymentIntent {
	return &PaymentIntent{
		GatewayOrderID: payment.GatewayOrderID,
		Amount:         pricing.MinorUnits(payment.Amount),
		Currency:       payment.Currency,
		Receipt:        receiptFor(payment.OrderID),
		KeyID:          s.cfg.PublicKeyID,
		OrderID:        payment.OrderID,
	}
}

// IssueIntent creates, or returns the already open, gateway intent for an
// online order owned by userID.
func (s *Service) IssueIntent(ctx context.Context, userID, orderID int64) (*PaymentIntent, error) {
	order, err := store.GetOrderForUser(ctx, s.db, orderID, userID)
	if err != nil {
		if errors.Is(err, database.ErrOrderNotFound) {
			return nil, apperr.NotFound("order %d not found", orderID)
		}
		return nil, err
	}
	return s.issue(ctx, order)
}

func (s *Service) issue(ctx context.Context, order *models.Order) (*PaymentIntent, error) {
	if order.PaymentMethod != models.PaymentMethodOnline {
		return nil, apperr.Conflict("order %d is not an online payment order", order.ID)
	}
	if !awaitingPayment(order) {
		return nil, apperr.Conflict("order %d is not awaiting payment", order.ID)
	}

	existing, err := store.GetPendingPaymentForOrder(ctx, s.db, order.ID)
	switch {
	case err == nil:
		return s.intentFrom(existing), nil
	case !errors.Is(err, database.ErrPaymentNotFound):
		return nil, fmt.Errorf("lookup pending payment: %w", err)
	}

	amount := pricing.MinorUnits(order.TotalAmount)
	if amount <= 0 {
		return nil, apperr.Validation("order %d has no payable amount", order.ID)
	}

	intent, err := s.gateway.CreateIntent(ctx, gateway.IntentRequest{
		AmountMinorUnits: amount,
		Currency:         s.cfg.Currency,
		Receipt:          receiptFor(order.ID),
		Notes: map[string]string{
			"user_id":  strconv.FormatInt(order.UserID, 10),
			"order_id": strconv.FormatInt(order.ID, 10),
		},
	})
	if err != nil {
		s.logger.Warn("Payment intent creation failed",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
		return nil, apperr.PaymentGateway(order.ID, err)
	}

	products := make([]models.PaymentProduct, 0, len(order.Items))
	for _, item := range order.Items {
		products = append(products, models.PaymentProduct{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	payment := &models.Payment{
		UserID:         order.UserID,
		OrderID:        order.ID,
		Products:       products,
		Amount:         order.TotalAmount,
		Currency:       s.cfg.Currency,
		GatewayOrderID: intent.ID,
	}
	if err := store.InsertPayment(ctx, s.db, payment); err != nil {
		if database.IsUniqueViolation(err, store.ConstraintOnePendingPerOrder) ||
			database.IsUniqueViolation(err, store.ConstraintGatewayOrderID) {
			return s.resolveIntentRace(ctx, order.ID, intent.ID)
		}
		return nil, err
	}

	s.logger.Info("Payment intent created",
		zap.Int64("order_id", order.ID),
		zap.String("gateway_order_id", intent.ID),
		zap.Int64("amount", amount))

	e := events.New(events.PaymentIntentCreated, order.ID)
	e.UserID = order.UserID
	e.GatewayOrderID = intent.ID
	e.Amount = order.TotalAmount
	e.Status = models.PaymentPending
	s.publish(ctx, e)

	return s.intentFrom(payment), nil
}

// resolveIntentRace returns the payment row that won a concurrent insert.
func (s *Service) resolveIntentRace(ctx context.Context, orderID int64, gatewayOrderID string) (*PaymentIntent, error) {
	payment, err := store.GetPaymentByGatewayOrderID(ctx, s.db, gatewayOrderID)
	if errors.Is(err, database.ErrPaymentNotFound) {
		payment, err = store.GetPendingPaymentForOrder(ctx, s.db, orderID)
		if err == nil {
			s.logger.Warn("Discarding duplicate gateway intent",
				zap.Int64("order_id", orderID),
				zap.String("gateway_order_id", gatewayOrderID),
				zap.String("kept_gateway_order_id", payment.GatewayOrderID))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("resolve concurrent payment intent: %w", err)
	}
	return s.intentFrom(payment), nil
}
