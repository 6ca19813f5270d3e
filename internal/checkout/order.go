package checkout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/safar/storefront/internal/apperr"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/events"
	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/pricing"
	"github.com/safar/storefront/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ItemInput struct {
	ProductID int64 `json:"id"`
	Quantity  int   `json:"quantity"`
}

type CreateOrderInput struct {
	UserID        int64
	Items         []ItemInput
	Address       string
	PaymentMethod string
	// Discount is the client-claimed discount; it is clamped by the pricing
	// policy and never trusted as-is.
	Discount       decimal.Decimal
	IdempotencyKey string
}

type CreateOrderResult struct {
	Order         *models.Order  `json:"order"`
	PaymentIntent *PaymentIntent `json:"payment_intent"`
	// Replayed is set when an existing order was returned for a repeated
	// idempotency key.
	Replayed bool `json:"-"`
}

var errIdempotencyRace = errors.New("order for idempotency key created concurrently")

func normalizePaymentMethod(m string) (string, bool) {
	switch strings.ToUpper(strings.TrimSpace(m)) {
	case models.PaymentMethodCOD:
		return models.PaymentMethodCOD, true
	case models.PaymentMethodOnline:
		return models.PaymentMethodOnline, true
	}
	return "", false
}

// mergeItems validates items and folds repeated products into one line,
// sorted by product id so row locks are always taken in the same order.
func mergeItems(items []ItemInput) ([]ItemInput, error) {
	if len(items) == 0 {
		return nil, apperr.Validation("items must not be empty")
	}

	qty := make(map[int64]int, len(items))
	for _, item := range items {
		if item.ProductID <= 0 {
			return nil, apperr.Validation("invalid product id %d", item.ProductID)
		}
		if item.Quantity < 1 {
			return nil, apperr.Validation("quantity for product %d must be at least 1", item.ProductID)
		}
		if item.Quantity > models.MaxItemQuantity-qty[item.ProductID] {
			return nil, apperr.Validation("quantity for product %d must not exceed %d", item.ProductID, models.MaxItemQuantity)
		}
		qty[item.ProductID] += item.Quantity
	}

	merged := make([]ItemInput, 0, len(qty))
	for id, q := range qty {
		merged = append(merged, ItemInput{ProductID: id, Quantity: q})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ProductID < merged[j].ProductID })
	return merged, nil
}

// CreateOrder prices the items from the catalog and persists a Pending order.
// Online orders continue straight into intent issuance; if the gateway fails
// the returned error carries the order id for IssueIntent retries.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*CreateOrderResult, error) {
	if in.UserID <= 0 {
		return nil, apperr.Validation("user id is required")
	}
	items, err := mergeItems(in.Items)
	if err != nil {
		return nil, err
	}
	address := strings.TrimSpace(in.Address)
	if address == "" {
		return nil, apperr.Validation("address is required")
	}
	method, ok := normalizePaymentMethod(in.PaymentMethod)
	if !ok {
		return nil, apperr.Validation("payment method must be cod or online")
	}
	key := strings.TrimSpace(in.IdempotencyKey)

	if key != "" {
		existing, err := store.GetOrderByIdempotencyKey(ctx, s.db, in.UserID, key)
		switch {
		case err == nil:
			return s.resume(ctx, existing)
		case !errors.Is(err, database.ErrOrderNotFound):
			return nil, fmt.Errorf("lookup idempotency key: %w", err)
		}
	}

	var order *models.Order
	err = database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		exists, err := store.UserExists(ctx, tx, in.UserID)
		if err != nil {
			return err
		}
		if !exists {
			return apperr.NotFound("user not found")
		}

		lines := make([]pricing.Line, 0, len(items))
		orderItems := make([]models.OrderItem, 0, len(items))
		for _, item := range items {
			product, err := store.LockProductForOrder(ctx, tx, item.ProductID)
			if err != nil {
				if errors.Is(err, database.ErrProductNotFound) {
					return apperr.NotFound("product %d not found", item.ProductID)
				}
				return err
			}
			if !product.InStock {
				return apperr.Conflict("product %s is out of stock", product.Name)
			}
			if s.cfg.ReserveStock && product.StockQuantity < item.Quantity {
				return apperr.Conflict("insufficient stock for product %s", product.Name)
			}

			line := pricing.Line{ProductID: product.ID, UnitPrice: product.Price, Quantity: item.Quantity}
			lines = append(lines, line)
			orderItems = append(orderItems, models.OrderItem{
				ProductID:   product.ID,
				ProductName: product.Name,
				Quantity:    item.Quantity,
				UnitPrice:   product.Price,
				Subtotal:    line.Subtotal(),
			})
		}

		quote := pricing.Quote(lines, s.cfg.Pricing, in.Discount)
		if quote.ItemTotal.Add(quote.Shipping).Add(quote.Tax).GreaterThan(pricing.MaxAmount) {
			return apperr.Validation("order total exceeds %s", pricing.MaxAmount.StringFixed(2))
		}

		order = &models.Order{
			UserID:          in.UserID,
			ItemTotal:       quote.ItemTotal,
			Shipping:        quote.Shipping,
			Tax:             quote.Tax,
			Discount:        quote.Discount,
			TotalAmount:     quote.Total,
			DeliveryAddress: address,
			PaymentMethod:   method,
			PaymentStatus:   models.PaymentStatusPending,
			OrderStatus:     models.OrderStatusPending,
			Items:           orderItems,
		}
		if key != "" {
			order.IdempotencyKey = &key
		}

		if err := store.InsertOrder(ctx, tx, order); err != nil {
			if database.IsUniqueViolation(err, "orders_user_idempotency_key") {
				return errIdempotencyRace
			}
			return err
		}

		productIDs := make([]int64, 0, len(items))
		for _, item := range items {
			if s.cfg.ReserveStock {
				if err := store.DecrementStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
					if errors.Is(err, database.ErrInsufficientStock) {
						return apperr.Conflict("insufficient stock for product %d", item.ProductID)
					}
					return err
				}
			}
			productIDs = append(productIDs, item.ProductID)
		}

		return store.RemoveCartProducts(ctx, tx, in.UserID, productIDs)
	})
	if errors.Is(err, errIdempotencyRace) {
		existing, err := store.GetOrderByIdempotencyKey(ctx, s.db, in.UserID, key)
		if err != nil {
			return nil, fmt.Errorf("load order for idempotency key: %w", err)
		}
		return s.resume(ctx, existing)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", order.UserID),
		zap.String("payment_method", order.PaymentMethod),
		zap.String("total_amount", order.TotalAmount.StringFixed(2)))

	e := events.New(events.OrderCreated, order.ID)
	e.UserID = order.UserID
	e.Amount = order.TotalAmount
	e.Status = order.OrderStatus
	s.publish(ctx, e)

	result := &CreateOrderResult{Order: order}
	if order.PaymentMethod == models.PaymentMethodCOD {
		return result, nil
	}

	intent, err := s.issue(ctx, order)
	if err != nil {
		return nil, err
	}
	result.PaymentIntent = intent
	return result, nil
}

// resume returns an order found by idempotency key, re-using or re-issuing
// its payment intent when it is still awaiting online payment.
func (s *Service) resume(ctx context.Context, order *models.Order) (*CreateOrderResult, error) {
	result := &CreateOrderResult{Order: order, Replayed: true}
	if order.PaymentMethod != models.PaymentMethodOnline || !awaitingPayment(order) {
		return result, nil
	}

	intent, err := s.issue(ctx, order)
	if err != nil {
		return nil, err
	}
	result.PaymentIntent = intent
	return result, nil
}

func awaitingPayment(order *models.Order) bool {
	return order.OrderStatus == models.OrderStatusPending && order.PaymentStatus == models.PaymentStatusPending
}
