package httpapi

import (
	"context"
	"database/sql"

	"github.com/safar/storefront/internal/checkout"
	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/store"
)

// Checkout is the order and payment workflow behind the order endpoints.
type Checkout interface {
	CreateOrder(ctx context.Context, in checkout.CreateOrderInput) (*checkout.CreateOrderResult, error)
	IssueIntent(ctx context.Context, userID, orderID int64) (*checkout.PaymentIntent, error)
	Verify(ctx context.Context, in checkout.VerifyInput) (*checkout.VerifyResult, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status string) (*models.Order, error)
}

// Store is the read and cart/wishlist side of the API.
type Store interface {
	Ping(ctx context.Context) error

	GetUser(ctx context.Context, id int64) (*models.User, error)
	UpdateUser(ctx context.Context, id int64, name, email string) (*models.User, error)

	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	ListProducts(ctx context.Context, filter store.ProductFilter, page, pageSize int) (*store.OffsetPage, error)

	GetOrderForUser(ctx context.Context, id, userID int64) (*models.Order, error)
	ListPaymentsForOrder(ctx context.Context, orderID int64) ([]models.Payment, error)
	ListOrdersForUser(ctx context.Context, userID int64, cursor string, limit int) (*store.CursorPage, error)
	ListOrders(ctx context.Context, status string, page, pageSize int) (*store.OffsetPage, error)
	DashboardStats(ctx context.Context) (*store.DashboardStats, error)

	GetCart(ctx context.Context, userID int64) (*models.Cart, error)
	AddToCart(ctx context.Context, userID, productID int64, quantity int) error
	UpdateCartQuantity(ctx context.Context, userID, productID int64, quantity int) error
	RemoveCartItem(ctx context.Context, userID, productID int64) error
	ClearCart(ctx context.Context, userID int64) error
	MergeCart(ctx context.Context, userID int64, lines []store.CartLine) error

	GetWishlist(ctx context.Context, userID int64) (*models.Wishlist, error)
	AddToWishlist(ctx context.Context, userID, productID int64) error
	RemoveFromWishlist(ctx context.Context, userID, productID int64) error
	MergeWishlist(ctx context.Context, userID int64, productIDs []int64) error
}

// SQLStore serves Store from postgres through the store package.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return store.GetUser(ctx, s.db, id)
}

func (s *SQLStore) UpdateUser(ctx context.Context, id int64, name, email string) (*models.User, error) {
	return store.UpdateUser(ctx, s.db, id, name, email)
}

func (s *SQLStore) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	return store.GetProduct(ctx, s.db, id)
}

func (s *SQLStore) ListProducts(ctx context.Context, filter store.ProductFilter, page, pageSize int) (*store.OffsetPage, error) {
	return store.ListProducts(ctx, s.db, filter, page, pageSize)
}

func (s *SQLStore) GetOrderForUser(ctx context.Context, id, userID int64) (*models.Order, error) {
	return store.GetOrderForUser(ctx, s.db, id, userID)
}

func (s *SQLStore) ListPaymentsForOrder(ctx context.Context, orderID int64) ([]models.Payment, error) {
	return store.ListPaymentsForOrder(ctx, s.db, orderID)
}

func (s *SQLStore) ListOrdersForUser(ctx context.Context, userID int64, cursor string, limit int) (*store.CursorPage, error) {
	return store.ListOrdersCursor(ctx, s.db, userID, cursor, limit)
}

func (s *SQLStore) ListOrders(ctx context.Context, status string, page, pageSize int) (*store.OffsetPage, error) {
	return store.ListOrders(ctx, s.db, status, page, pageSize)
}

func (s *SQLStore) DashboardStats(ctx context.Context) (*store.DashboardStats, error) {
	return store.GetDashboardStats(ctx, s.db)
}

func (s *SQLStore) GetCart(ctx context.Context, userID int64) (*models.Cart, error) {
	return store.GetCart(ctx, s.db, userID)
}

func (s *SQLStore) AddToCart(ctx context.Context, userID, productID int64, quantity int) error {
	return store.AddToCart(ctx, s.db, userID, productID, quantity)
}

func (s *SQLStore) UpdateCartQuantity(ctx context.Context, userID, productID int64, quantity int) error {
	return store.UpdateCartQuantity(ctx, s.db, userID, productID, quantity)
}

func (s *SQLStore) RemoveCartItem(ctx context.Context, userID, productID int64) error {
	return store.RemoveCartItem(ctx, s.db, userID, productID)
}

func (s *SQLStore) ClearCart(ctx context.Context, userID int64) error {
	return store.ClearCart(ctx, s.db, userID)
}

func (s *SQLStore) MergeCart(ctx context.Context, userID int64, lines []store.CartLine) error {
	return store.MergeCart(ctx, s.db, userID, lines)
}

func (s *SQLStore) GetWishlist(ctx context.Context, userID int64) (*models.Wishlist, error) {
	return store.GetWishlist(ctx, s.db, userID)
}

func (s *SQLStore) AddToWishlist(ctx context.Context, userID, productID int64) error {
	return store.AddToWishlist(ctx, s.db, userID, productID)
}

func (s *SQLStore) RemoveFromWishlist(ctx context.Context, userID, productID int64) error {
	return store.RemoveFromWishlist(ctx, s.db, userID, productID)
}

func (s *SQLStore) MergeWishlist(ctx context.Context, userID int64, productIDs []int64) error {
	return store.MergeWishlist(ctx, s.db, userID, productIDs)
}
