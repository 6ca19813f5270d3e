package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
	"github.com/shopspring/decimal"
)

type CartLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

func GetCart(ctx context.Context, db DBTX, userID int64) (*models.Cart, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT c.product_id, p.name, p.price, p.in_stock, c.quantity, c.added_at
		 FROM cart_items c
		 JOIN products p ON p.id = c.product_id
		 WHERE c.user_id = $1
		 ORDER BY c.added_at, c.product_id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	defer rows.Close()

	cart := &models.Cart{UserID: userID, Items: []models.CartItem{}}
	for rows.Next() {
		var item models.CartItem
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Price, &item.InStock, &item.Quantity, &item.AddedAt); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		item.Subtotal = item.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		cart.Total = cart.Total.Add(item.Subtotal)
		cart.Items = append(cart.Items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return cart, nil
}

// AddToCart adds quantity of a product, incrementing an existing line. A line
// is never allowed to grow past models.MaxItemQuantity.
func AddToCart(ctx context.Context, db DBTX, userID, productID int64, quantity int) error {
	if quantity > models.MaxItemQuantity {
		return database.ErrQuantityLimit
	}
	if err := requireUser(ctx, db, userID); err != nil {
		return err
	}
	if _, err := GetProduct(ctx, db, productID); err != nil {
		return err
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO cart_items (user_id, product_id, quantity, added_at, updated_at)
		 VALUES ($1, $2, $3, NOW(), NOW())
		 ON CONFLICT (user_id, product_id)
		 DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = NOW()
		 WHERE cart_items.quantity + EXCLUDED.quantity <= $4`,
		userID, productID, quantity, models.MaxItemQuantity)
	if err != nil {
		return fmt.Errorf("add to cart: %w", err)
	}

	ok, err := affected(result)
	if err != nil {
		return err
	}
	if !ok {
		return database.ErrQuantityLimit
	}
	return nil
}

// UpdateCartQuantity sets a line's quantity; a quantity <= 0 removes it.
func UpdateCartQuantity(ctx context.Context, db DBTX, userID, productID int64, quantity int) error {
	if quantity <= 0 {
		return RemoveCartItem(ctx, db, userID, productID)
	}
	if quantity > models.MaxItemQuantity {
		return database.ErrQuantityLimit
	}

	result, err := db.ExecContext(ctx,
		`UPDATE cart_items SET quantity = $1, updated_at = NOW()
		 WHERE user_id = $2 AND product_id = $3`,
		quantity, userID, productID)
	if err != nil {
		return fmt.Errorf("update cart quantity: %w", err)
	}

	ok, err := affected(result)
	if err != nil {
		return err
	}
	if !ok {
		return database.ErrCartItemNotFound
	}
	return nil
}

func RemoveCartItem(ctx context.Context, db DBTX, userID, productID int64) error {
	result, err := db.ExecContext(ctx,
		`DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`,
		userID, productID)
	if err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}

	ok, err := affected(result)
	if err != nil {
		return err
	}
	if !ok {
		return database.ErrCartItemNotFound
	}
	return nil
}

func ClearCart(ctx context.Context, db DBTX, userID int64) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// RemoveCartProducts drops the given products from the user's cart. Missing
// lines are ignored.
func RemoveCartProducts(ctx context.Context, db DBTX, userID int64, productIDs []int64) error {
	_, err := db.ExecContext(ctx,
		`DELETE FROM cart_items WHERE user_id = $1 AND product_id = ANY($2)`,
		userID, pq.Array(productIDs))
	if err != nil {
		return fmt.Errorf("remove cart products: %w", err)
	}
	return nil
}

// MergeCart folds a guest cart into the user's cart. Lines without a product
// or with a non-positive quantity are skipped, as are unknown products. Merged
// quantities are capped at models.MaxItemQuantity.
func MergeCart(ctx context.Context, db *sql.DB, userID int64, lines []CartLine) error {
	if err := requireUser(ctx, db, userID); err != nil {
		return err
	}

	var ids []int64
	for _, l := range lines {
		if l.ProductID != 0 && l.Quantity > 0 {
			ids = append(ids, l.ProductID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	known, err := GetProductsByIDs(ctx, db, ids)
	if err != nil {
		return err
	}

	return database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		for _, l := range lines {
			if l.Quantity <= 0 {
				continue
			}
			if _, ok := known[l.ProductID]; !ok {
				continue
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO cart_items (user_id, product_id, quantity, added_at, updated_at)
				 VALUES ($1, $2, $3, NOW(), NOW())
				 ON CONFLICT (user_id, product_id)
				 DO UPDATE SET quantity = LEAST(cart_items.quantity + EXCLUDED.quantity, $4), updated_at = NOW()`,
				userID, l.ProductID, min(l.Quantity, models.MaxItemQuantity), models.MaxItemQuantity)
			if err != nil {
				return fmt.Errorf("merge cart item %d: %w", l.ProductID, err)
			}
		}
		return nil
	})
}
