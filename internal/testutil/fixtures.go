package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/store"
	"github.com/shopspring/decimal"
)

var seq atomic.Int64

func CreateUser(t *testing.T, db *sql.DB) *models.User {
	t.Helper()
	n := seq.Add(1)
	user, err := store.CreateUser(context.Background(), db,
		fmt.Sprintf("user%d@example.com", n), fmt.Sprintf("User %d", n), models.RoleUser)
	if err != nil {
		t.Fatalf("Create user: %v", err)
	}
	return user
}

// CreateProduct inserts an in-stock product with the given price and stock.
func CreateProduct(t *testing.T, db *sql.DB, price string, stock int) *models.Product {
	t.Helper()
	return createProduct(t, db, price, stock, true)
}

// CreateOutOfStockProduct inserts a product flagged out of stock even though
// stock_quantity may be positive.
func CreateOutOfStockProduct(t *testing.T, db *sql.DB, price string, stock int) *models.Product {
	t.Helper()
	return createProduct(t, db, price, stock, false)
}

func createProduct(t *testing.T, db *sql.DB, price string, stock int, inStock bool) *models.Product {
	t.Helper()
	n := seq.Add(1)
	product, err := store.CreateProduct(context.Background(), db, store.NewProduct{
		SKU:      fmt.Sprintf("SKU-%d", n),
		Name:     fmt.Sprintf("Product %d", n),
		Category: "test",
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		InStock:  inStock,
	})
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}
	return product
}
