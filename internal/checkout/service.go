// Package checkout turns a cart into a priced order, issues the payment
// gateway intent for it and finalizes order and payment state once the
// gateway signs off on the payment.
//
// Order creation and intent issuance are two separate steps. A gateway
// failure leaves the order Pending, and IssueIntent can be retried against it
// without creating a second order.
package checkout

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/storefront/internal/events"
	"github.com/safar/storefront/internal/gateway"
	"github.com/safar/storefront/internal/pricing"
	"go.uber.org/zap"
)

// Gateway creates payment intents upstream.
type Gateway interface {
	CreateIntent(ctx context.Context, req gateway.IntentRequest) (*gateway.Intent, error)
}

type Config struct {
	Pricing pricing.Policy
	// Currency is sent to the gateway with every intent.
	Currency string
	// PublicKeyID is returned to clients so they can open the gateway's
	// checkout for an intent.
	PublicKeyID string
	// SignatureSecret verifies gateway payment signatures.
	SignatureSecret string
	// ReserveStock decrements stock atomically with order creation.
	ReserveStock bool
}

type Service struct {
	db        *sql.DB
	gateway   Gateway
	publisher events.Publisher
	logger    *zap.Logger
	cfg       Config
}

// NewService wires a checkout service. It panics on a nil db or gateway or an
// empty signature secret. A nil publisher disables events.
func NewService(db *sql.DB, gw Gateway, publisher events.Publisher, logger *zap.Logger, cfg Config) *Service {
	if db == nil || gw == nil {
		panic("checkout.NewService: nil db or gateway")
	}
	if cfg.SignatureSecret == "" {
		panic("checkout.NewService: empty signature secret")
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	return &Service{
		db:        db,
		gateway:   gw,
		publisher: publisher,
		logger:    logger,
		cfg:       cfg,
	}
}

// publish is best-effort: state is already committed, so a broker failure is
// logged and swallowed.
func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Error("Failed to publish event",
			zap.String("type", string(e.Type)),
			zap.Int64("order_id", e.OrderID),
			zap.Error(err))
	}
}

func receiptFor(orderID int64) string {
	return fmt.Sprintf("receipt_%d", orderID)
}
