package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
)

func GetWishlist(ctx context.Context, db DBTX, userID int64) (*models.Wishlist, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT p.id, p.sku, p.name, p.description, p.category, p.price, p.stock_quantity,
		        p.in_stock, p.is_featured, p.created_at, p.updated_at, p.version
		 FROM wishlist_items w
		 JOIN products p ON p.id = w.product_id
		 WHERE w.user_id = $1
		 ORDER BY w.added_at, p.id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("get wishlist: %w", err)
	}
	defer rows.Close()

	wishlist := &models.Wishlist{UserID: userID, Products: []models.Product{}}
	for rows.Next() {
		var product models.Product
		if err := scanProduct(rows, &product); err != nil {
			return nil, fmt.Errorf("scan wishlist product: %w", err)
		}
		wishlist.Products = append(wishlist.Products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return wishlist, nil
}

// AddToWishlist is a no-op when the product is already listed.
func AddToWishlist(ctx context.Context, db DBTX, userID, productID int64) error {
	if err := requireUser(ctx, db, userID); err != nil {
		return err
	}
	if _, err := GetProduct(ctx, db, productID); err != nil {
		return err
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO wishlist_items (user_id, product_id, added_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (user_id, product_id) DO NOTHING`,
		userID, productID)
	if err != nil {
		return fmt.Errorf("add to wishlist: %w", err)
	}
	return nil
}

func RemoveFromWishlist(ctx context.Context, db DBTX, userID, productID int64) error {
	result, err := db.ExecContext(ctx,
		`DELETE FROM wishlist_items WHERE user_id = $1 AND product_id = $2`,
		userID, productID)
	if err != nil {
		return fmt.Errorf("remove from wishlist: %w", err)
	}

	ok, err := affected(result)
	if err != nil {
		return err
	}
	if !ok {
		return database.ErrWishlistNotFound
	}
	return nil
}

// MergeWishlist adds every known product in productIDs to the user's
// wishlist. Unknown ids are skipped.
func MergeWishlist(ctx context.Context, db *sql.DB, userID int64, productIDs []int64) error {
	if len(productIDs) == 0 {
		return nil
	}
	if err := requireUser(ctx, db, userID); err != nil {
		return err
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO wishlist_items (user_id, product_id, added_at)
		 SELECT $1, p.id, NOW()
		 FROM products p
		 WHERE p.id = ANY($2)
		 ON CONFLICT (user_id, product_id) DO NOTHING`,
		userID, pq.Array(productIDs))
	if err != nil {
		return fmt.Errorf("merge wishlist: %w", err)
	}
	return nil
}
