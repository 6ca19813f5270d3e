package checkout_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/safar/storefront/internal/apperr"
	"github.com/safar/storefront/internal/checkout"
	"github.com/safar/storefront/internal/events"
	"github.com/safar/storefront/internal/gateway"
	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/pricing"
	"github.com/safar/storefront/internal/store"
	"github.com/safar/storefront/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testSecret = "test-secret"

type fakeGateway struct {
	mu       sync.Mutex
	calls    int
	requests []gateway.IntentRequest
	err      error
	seq      atomic.Int64
}

func (g *fakeGateway) CreateIntent(_ context.Context, req gateway.IntentRequest) (*gateway.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	return &gateway.Intent{
		ID:       fmt.Sprintf("order_test_%d", g.seq.Add(1)),
		Amount:   req.AmountMinorUnits,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
	}, nil
}

func (g *fakeGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fixture struct {
	db        *sql.DB
	gw        *fakeGateway
	publisher *events.MemoryPublisher
	svc       *checkout.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	gw := &fakeGateway{}
	publisher := &events.MemoryPublisher{}
	svc := checkout.NewService(db, gw, publisher, zaptest.NewLogger(t), checkout.Config{
		Pricing: pricing.Policy{
			ShippingFlatFee: decimal.NewFromInt(100),
			DiscountCap:     decimal.NewFromInt(100),
		},
		Currency:        "INR",
		PublicKeyID:     "rzp_test_key",
		SignatureSecret: testSecret,
		ReserveStock:    true,
	})
	return &fixture{db: db, gw: gw, publisher: publisher, svc: svc}
}

func (f *fixture) onlineOrder(t *testing.T, userID, productID int64, qty int) *checkout.CreateOrderResult {
	t.Helper()
	result, err := f.svc.CreateOrder(context.Background(), checkout.CreateOrderInput{
		UserID:        userID,
		Items:         []checkout.ItemInput{{ProductID: productID, Quantity: qty}},
		Address:       "221B Baker Street",
		PaymentMethod: "online",
	})
	require.NoError(t, err)
	require.NotNil(t, result.PaymentIntent)
	return result
}

func TestCreateOnlineOrderAndVerify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user := testutil.CreateUser(t, f.db)
	product := testutil.CreateProduct(t, f.db, "100.00", 10)

	result := f.onlineOrder(t, user.ID, product.ID, 2)

	order := result.Order
	assert.True(t, decimal.NewFromInt(200).Equal(order.ItemTotal), "item total %s", order.ItemTotal)
	assert.True(t, decimal.NewFromInt(100).Equal(order.Shipping), "shipping %s", order.Shipping)
	assert.True(t, decimal.NewFromInt(300).Equal(order.TotalAmount), "total %s", order.TotalAmount)
	assert.Equal(t, models.OrderStatusPending, order.OrderStatus)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)

	intent := result.PaymentIntent
	assert.Equal(t, int64(30000), intent.Amount)
	assert.Equal(t, "INR", intent.Currency)
	assert.Equal(t, fmt.Sprintf("receipt_%d", order.ID), intent.Receipt)
	assert.Equal(t, "rzp_test_key", intent.KeyID)

	require.Len(t, f.gw.requests, 1)
	assert.Equal(t, fmt.Sprint(order.ID), f.gw.requests[0].Notes["order_id"])
	assert.Equal(t, fmt.Sprint(user.ID), f.gw.requests[0].Notes["user_id"])

	after, err := store.GetProduct(ctx, f.db, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, after.StockQuantity)

	sig := gateway.Sign(testSecret, intent.GatewayOrderID, "pay_1")
	verified, err := f.svc.Verify(ctx, checkout.VerifyInput{
		GatewayOrderID:   intent.GatewayOrderID,
		GatewayPaymentID: "pay_1",
		Signature:        sig,
	})
	require.NoError(t, err)
	assert.Equal(t, order.ID, verified.OrderID)
	assert.Equal(t, models.PaymentSuccess, verified.PaymentStatus)
	assert.Equal(t, models.OrderStatusConfirmed, verified.OrderStatus)

	stored, err := store.GetOrder(ctx, f.db, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, stored.OrderStatus)
	assert.Equal(t, models.PaymentStatusCompleted, stored.PaymentStatus)

	payment, err := store.GetPaymentByGatewayOrderID(ctx, f.db, intent.GatewayOrderID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSuccess, payment.Status)
	require.NotNil(t, payment.GatewayPaymentID)
	assert.Equal(t, "pay_1", *payment.GatewayPaymentID)

	assert.Len(t, f.publisher.OfType(events.OrderCreated), 1)
	assert.Len(t, f.publisher.OfType(events.PaymentIntentCreated), 1)
	assert.Len(t, f.publisher.OfType(events.PaymentSucceeded), 1)
}

func TestVerifyIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user := testutil.CreateUser(t, f.db)
	product := testutil.CreateProduct(t, f.db, "50.00", 5)
	intent := f.onlineOrder(t, user.ID, product.ID, 1).PaymentIntent

	in := checkout.VerifyInput{
		GatewayOrderID:   intent.GatewayOrderID,
		GatewayPaymentID: "pay_2",
		Signature:        gateway.Sign(testSecret, intent.GatewayOrderID, "pay_2"),
	}

	first, err := f.svc.Verify(ctx, in)
	require.NoError(t, err)
	second, err := f.svc.Verify(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, f.publisher.OfType(events.PaymentSucceeded), 1)
}

func TestVerifySignatureMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user := testutil.CreateUser(t, f.db)
	product := testutil.CreateProduct(t, f.db, "50.00", 5)
	result := f.onlineOrder(t, user.ID, product.ID, 1)
	intent := result.PaymentIntent

	_, err := f.svc.Verify(ctx, checkout.VerifyInput{
		GatewayOrderID:   intent.GatewayOrderID,
		GatewayPaymentID: "pay_3",
		Signature:        gateway.Sign("wrong-secret", intent.GatewayOrderID, "pay_3"),
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindSignatureMismatch, apperr.KindOf(err))

	payment, err := store.GetPaymentByGatewayOrderID(ctx, f.db, intent.GatewayOrderID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, payment.Status)

	order, err := store.GetOrder(ctx, f.db, result.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, order.OrderStatus)
	assert.Equal(t, models.PaymentStatusFailed, order.PaymentStatus)
	assert.Len(t, f.publisher.OfType(events.PaymentFailed), 1)

	// A failed payment cannot be revived by a later valid signature.
	_, err = f.svc.Verify(ctx, checkout.VerifyInput{
		GatewayOrderID:   intent.GatewayOrderID,
		GatewayPaymentID: "pay_3",
		Signature:        gateway.Sign(testSecret, intent.GatewayOrderID, "pay_3"),
	})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestVerifyMismatchNeverDowngradesSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user := testutil.CreateUser(t, f.db)
	product := testutil.CreateProduct(t, f.db, "50.00", 5)
	result := f.onlineOrder(t, user.ID, product.ID, 1)
	intent := result.PaymentIntent

	_, err := f.svc.Verify(ctx, checkout.VerifyInput{
		GatewayOrderID:   intent.GatewayOrderID,
		GatewayPaymentID: "pay_4",
		Signature:        gateway.Sign(testSecret, intent.GatewayOrderID, "pay_4"),
	})
	require.NoError(t, err)

	_, err = f.svc.Verify(ctx, checkout.VerifyInput{
		GatewayOrderID:   intent.GatewayOrderID,
		GatewayPaymentID: "pay_4",
		Signature:        "deadbeef",
	})
	assert.Equal(t, apperr.KindSignatureMismatch, apperr.KindOf(err))

	payment, err := store.GetPaymentByGatewayOrderID(ctx, f.db, intent.GatewayOrderID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSuccess, payment.Status)

	order, err := store.GetOrder(ctx, f.db, result.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, order.OrderStatus)
}

func TestVerifyUnknownIntent(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Verify(context.Background(), checkout.VerifyInput{
		GatewayOrderID:   "order_unknown",
		GatewayPaymentID: "pay_x",
		Signature:        gateway.Sign(testSecret, "order_unknown", "pay_x"),
	})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestVerifyRequiresFields(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Verify(context.Background(), checkout.VerifyInput{GatewayOrderID: "order_1"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

// unpaidOnlineOrder creates an online order whose intent issuance failed, so
// no payment row exists for it.
func (f *fixture) unpaidOnlineOrder(t *testing.T, userID, productID int64) int64 {
	t.Helper()
	f.gw.err = gateway.ErrTimeout
	defer func() { f.gw.err = nil }()

	_, err := f.svc.CreateOrder(context.Background(), checkout.CreateOrderInput{
		UserID:        userID,
		Items:         []checkout.ItemInput{{ProductID: productID, Quantity: 1}},
		Address:       "somewhere",
		PaymentMethod: "online",
	})
	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	require.NotZero(t, appErr.OrderID)
	return appErr.OrderID
}

func TestVerifySignatureForOtherPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user := testutil.CreateUser(t, f.db)
	product := testutil.CreateProduct(t, f.db, "50.00", 5)
	result := f.onlineOrder(t, user.ID, product.ID, 1)
	intent := result.PaymentIntent

	_, err := f.svc.Verify(ctx, checkout.VerifyInput{
		GatewayOrderID:   intent.GatewayOrderID,
		GatewayPaymentID: "pay_1",
		Signature:        gateway.Sign(testSecret, intent.GatewayOrderID, "pay_other"),
	})
	assert.Equal(t, apperr.KindSignatureMismatch, apperr.KindOf(err))

	payment, err := store.GetPaymentByGatewayOrderID(ctx, f.db, intent.GatewayOrderID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, payment.Status)

	order, err := store.GetOrder(ctx, f.db, result.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, order.OrderStatus)
}

func TestVerifyWithOrderIDAndNoPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user := testutil.CreateUser(t, f.db)
	product := testutil.CreateProduct(t, f.db, "80.00", 10)

	t.Run("valid signature confirms the order", func(t *testing.T) {
		orderID := f.unpaidOnlineOrder(t, user.ID, product.ID)

		// A recorded intent for the order that the capture did not use.
		stale, err := f.svc.IssueIntent(ctx, user.ID, orderID)
		require.NoError(t, err)

		res, err := f.svc.Verify(ctx, checkout.VerifyInput{
			GatewayOrderID:   "order_external_1",
			GatewayPaymentID: "pay_5",
			Signature:        gateway.Sign(testSecret, "order_external_1", "pay_5"),
			OrderID:          orderID,
		})
		require.NoError(t, err)
		assert.Equal(t, orderID, res.OrderID)
		assert.Equal(t, models.PaymentSuccess, res.PaymentStatus)
		assert.Equal(t, models.OrderStatusConfirmed, res.OrderStatus)

		order, err := store.GetOrder(ctx, f.db, orderID)
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusConfirmed, order.OrderStatus)
		assert.Equal(t, models.PaymentStatusCompleted, order.PaymentStatus)

		payment, err := store.GetPaymentByGatewayOrderID(ctx, f.db, stale.GatewayOrderID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentFailed, payment.Status)
	})

	t.Run("mismatch cancels the order", func(t *testing.T) {
		orderID := f.unpaidOnlineOrder(t, user.ID, product.ID)

		_, err := f.svc.Verify(ctx, checkout.VerifyInput{
			GatewayOrderID:   "order_external_2",
			GatewayPaymentID: "pay_6",
			Signature:        gateway.Sign("wrong-secret", "order_external_2", "pay_6"),
			OrderID:          orderID,
		})
		assert.Equal(t, apperr.KindSignatureMismatch, apperr.KindOf(err))

		order, err := store.GetOrder(ctx, f.db, orderID)
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusCancelled, order.OrderStatus)
		assert.Equal(t, models.PaymentStatusFailed, order.PaymentStatus)
	})

	t.Run("cod order is never confirmed", func(t *testing.T) {
		result, err := f.svc.CreateOrder(ctx, checkout.CreateOrderInput{
			UserID:        user.ID,
			Items:         []checkout.ItemInput{{ProductID: product.ID, Quantity: 1}},
			Address:       "somewhere",
			PaymentMethod: "cod",
		})
		require.NoError(t, err)

		_, err = f.svc.Verify(ctx, checkout.VerifyInput{
			GatewayOrderID:   "order_external_3",
			GatewayPaymentID: "pay_7",
			Signature:        gateway.Sign(testSecret, "order_external_3", "pay_7"),
			OrderID:          result.Order.ID,
		})
		assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

		order, err := store.GetOrder(ctx, f.db, result.Order.ID)
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusPending, order.OrderStatus)
		assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
	})
}

func TestCreateOrderProductFlaggedOutOfStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user := testutil.CreateUser(t, f.db)
	product := testutil.CreateOutOfStockProduct(t, f.db, "10.00", 5)

	_, err := f.svc.CreateOrder(ctx, checkout.CreateOrderInput{
		UserID:        user.ID,
		Items:         []checkout.ItemInput{{ProductID: product.ID, Quantity: 1}},
		Address:       "somewhere",
		PaymentMethod: "online",
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	var count int
	require.NoError(t, f.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE user_id = $1`, user.ID).Scan(&count))
	assert.Zero(t, count)

	after, err := store.GetProduct(ctx, f.db, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, after.StockQuantity)
	assert.Zero(t, f.gw.Calls())
}

func TestCreateOrderOutOfStockWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user := testutil.CreateUser(t, f.db)
	plenty := testutil.CreateProduct(t, f.db, "10.00", 10)
	scarce := testutil.CreateProduct(t, f.db, "10.00", 1)

	_, err := f.svc.CreateOrder(ctx, checkout.CreateOrderInput{
		UserID: user.ID,
		Items: []checkout.ItemInput{
			{ProductID: plenty.ID, Quantity: 1},
			{ProductID: scarce.ID, Quantity: 2},
		},
		Address:       "somewhere",
		PaymentMethod: "cod",
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	var count int
	require.NoError(t, f.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE user_id = $1`, user.ID).Scan(&count))
	assert.Zero(t, count)

	after, err := store.GetProduct(ctx, f.db, plenty.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, after.StockQuantity)
	assert.Zero(t, f.gw.Calls())
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)
	user := testutil.CreateUser(t, f.db)
	product := testutil.CreateProduct(t, f.db, "10.00", 10)
	pricey := testutil.CreateProduct(t, f.db, "9999999999.00", 10)

	tests := []struct {
		name string
		in   checkout.CreateOrderInput
		kind apperr.Kind
	}{
		{
			name: "no items",
			in:   checkout.CreateOrderInput{UserID: user.ID, Address: "a", PaymentMethod: "cod"},
			kind: apperr.KindValidation,
		},
		{
			name: "zero quantity",
			in: checkout.CreateOrderInput{UserID: user.ID, Address: "a", PaymentMethod: "cod",
				Items: []checkout.ItemInput{{ProductID: product.ID, Quantity: 0}}},
			kind: apperr.KindValidation,
		},
		{
			name: "quantity above limit",
			in: checkout.CreateOrderInput{UserID: user.ID, Address: "a", PaymentMethod: "cod",
				Items: []checkout.ItemInput{{ProductID: product.ID, Quantity: models.MaxItemQuantity + 1}}},
			kind: apperr.KindValidation,
		},
		{
			name: "repeated lines above limit",
			in: checkout.CreateOrderInput{UserID: user.ID, Address: "a", PaymentMethod: "cod",
				Items: []checkout.ItemInput{
					{ProductID: product.ID, Quantity: models.MaxItemQuantity},
					{ProductID: product.ID, Quantity: 1},
				}},
			kind: apperr.KindValidation,
		},
		{
			name: "repeated lines overflowing int",
			in: checkout.CreateOrderInput{UserID: user.ID, Address: "a", PaymentMethod: "cod",
				Items: []checkout.ItemInput{
					{ProductID: product.ID, Quantity: math.MaxInt/2 + 1},
					{ProductID: product.ID, Quantity: math.MaxInt/2 + 1},
				}},
			kind: apperr.KindValidation,
		},
		{
			name: "total above storable amount",
			in: checkout.CreateOrderInput{UserID: user.ID, Address: "a", PaymentMethod: "cod",
				Items: []checkout.ItemInput{{ProductID: pricey.ID, Quantity: 2}}},
			kind: apperr.KindValidation,
		},
		{
			name: "blank address",
			in: checkout.CreateOrderInput{UserID: user.ID, Address: "  ", PaymentMethod: "cod",
				Items: []checkout.ItemInput{{ProductID: product.ID, Quantity: 1}}},
			kind: apperr.KindValidation,
		},
		{
			name: "unknown payment method",
			in: checkout.CreateOrderInput{UserID: user.ID, Address: "a", PaymentMethod: "barter",
				Items: []checkout.ItemInput{{ProductID: product.ID, Quantity: 1}}},
			kind: apperr.KindValidation,
		},
		{
			name: "unknown user",
			in: checkout.CreateOrderInput{UserID: user.ID + 1000, Address: "a", PaymentMethod: "cod",
				Items: []checkout.ItemInput{{ProductID: product.ID, Quantity: 1}}},
			kind: apperr.KindNotFound,
		},
		{
			name: "unknown product",
			in: checkout.CreateOrderInput{UserID: user.ID, Address: "a", PaymentMethod: "cod",
				Items: []checkout.ItemInput{{ProductID: product.ID + 1000, Quantity: 1}}},
			kind: apperr.KindNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateOrder(context.Background(), tt.in)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}

	var count int
	require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM orders WHERE user_id = $1`, user.ID).Scan(&count))
	assert.Zero(t, count)
}

func TestCreateCODOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user := testutil.CreateUser(t, f.db)
	product := testutil.CreateProduct(t, f.db, "40.00", 10)
	require.NoError(t, store.AddToCart(ctx, f.db, user.ID, product.ID, 3))

	result, err := f.svc.CreateOrder(ctx, checkout.CreateOrderInput{
		UserID:        user.ID,
		Items:         []checkout.ItemInput{{ProductID: product.ID, Quantity: 1}, {ProductID: product.ID, Quantity: 2}},
		Address:       "somewhere",
		PaymentMethod: "COD",
		Discount:      decimal.NewFromInt(500),
	})
	require.NoError(t, err)
	assert.Nil(t, result.PaymentIntent)
	assert.Zero(t, f.gw.Calls())

	order := result.Order
	require.Len(t, order.Items, 1)
	assert.Equal(t, 3, order.Items[0].Quantity)
	assert.True(t, decimal.NewFromInt(100).Equal(order.Discount), "discount capped, got %s", order.Discount)
	assert.True(t, decimal.NewFromInt(120).Equal(order.TotalAmount), "total %s", order.TotalAmount)

	cart, err := store.GetCart(ctx, f.db, user.ID)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}

func TestCreateOrderIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user := testutil.CreateUser(t, f.db)
	product := testutil.CreateProduct(t, f.db, "25.00", 10)

	in := checkout.CreateOrderInput{
		UserID:         user.ID,
		Items:          []checkout.ItemInput{{ProductID: product.ID, Quantity: 1}},
		Address:        "somewhere",
		PaymentMethod:  "online",
		IdempotencyKey: "checkout-1",
	}

	first, err := f.svc.CreateOrder(ctx, in)
	require.NoError(t, err)
	second, err := f.svc.CreateOrder(ctx, in)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, first.PaymentIntent.GatewayOrderID, second.PaymentIntent.GatewayOrderID)
	assert.Equal(t, 1, f.gw.Calls())

	after, err := store.GetProduct(ctx, f.db, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, after.StockQuantity)
}

func TestGatewayFailureKeepsOrderForRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user := testutil.CreateUser(t, f.db)
	product := testutil.CreateProduct(t, f.db, "100.00", 10)

	f.gw.err = gateway.ErrTimeout
	_, err := f.svc.CreateOrder(ctx, checkout.CreateOrderInput{
		UserID:        user.ID,
		Items:         []checkout.ItemInput{{ProductID: product.ID, Quantity: 1}},
		Address:       "somewhere",
		PaymentMethod: "online",
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindPaymentGateway, apperr.KindOf(err))
	assert.True(t, errors.Is(err, gateway.ErrTimeout))

	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	require.NotZero(t, appErr.OrderID)

	order, err := store.GetOrder(ctx, f.db, appErr.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, order.OrderStatus)

	f.gw.err = nil
	intent, err := f.svc.IssueIntent(ctx, user.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20000), intent.Amount)

	again, err := f.svc.IssueIntent(ctx, user.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, intent.GatewayOrderID, again.GatewayOrderID)
	assert.Equal(t, 2, f.gw.Calls())

	_, err = f.svc.IssueIntent(ctx, user.ID+1000, order.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestConcurrentOrdersDoNotOversell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	product := testutil.CreateProduct(t, f.db, "10.00", 5)
	users := make([]*models.User, 10)
	for i := range users {
		users[i] = testutil.CreateUser(t, f.db)
	}

	var wg sync.WaitGroup
	var succeeded atomic.Int64
	for _, user := range users {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := f.svc.CreateOrder(ctx, checkout.CreateOrderInput{
				UserID:        userID,
				Items:         []checkout.ItemInput{{ProductID: product.ID, Quantity: 1}},
				Address:       "somewhere",
				PaymentMethod: "cod",
			})
			if err == nil {
				succeeded.Add(1)
			}
		}(user.ID)
	}
	wg.Wait()

	assert.Equal(t, int64(5), succeeded.Load())

	after, err := store.GetProduct(ctx, f.db, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, after.StockQuantity)
	assert.False(t, after.InStock)
}

func TestUpdateOrderStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user := testutil.CreateUser(t, f.db)
	product := testutil.CreateProduct(t, f.db, "10.00", 10)

	cod, err := f.svc.CreateOrder(ctx, checkout.CreateOrderInput{
		UserID:        user.ID,
		Items:         []checkout.ItemInput{{ProductID: product.ID, Quantity: 1}},
		Address:       "somewhere",
		PaymentMethod: "cod",
	})
	require.NoError(t, err)

	order, err := f.svc.UpdateOrderStatus(ctx, cod.Order.ID, models.OrderStatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, order.PaymentStatus)

	_, err = f.svc.UpdateOrderStatus(ctx, cod.Order.ID, models.OrderStatusPending)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	online := f.onlineOrder(t, user.ID, product.ID, 1)

	_, err = f.svc.UpdateOrderStatus(ctx, online.Order.ID, models.OrderStatusShipped)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	order, err = f.svc.UpdateOrderStatus(ctx, online.Order.ID, models.OrderStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, order.PaymentStatus)

	payment, err := store.GetPaymentByGatewayOrderID(ctx, f.db, online.PaymentIntent.GatewayOrderID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, payment.Status)

	_, err = f.svc.UpdateOrderStatus(ctx, online.Order.ID, "Lost")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = f.svc.UpdateOrderStatus(ctx, online.Order.ID+1000, models.OrderStatusShipped)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	assert.Len(t, f.publisher.OfType(events.OrderStatusChanged), 2)
}
