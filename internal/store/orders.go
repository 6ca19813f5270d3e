package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
)

const orderColumns = `id, user_id, order_number, item_total, shipping, tax, discount, total_amount,
	delivery_address, payment_method, payment_status, order_status, idempotency_key,
	created_at, updated_at, version`

func scanOrder(row rowScanner, order *models.Order) error {
	return row.Scan(
		&order.ID,
		&order.UserID,
		&order.OrderNumber,
		&order.ItemTotal,
		&order.Shipping,
		&order.Tax,
		&order.Discount,
		&order.TotalAmount,
		&order.DeliveryAddress,
		&order.PaymentMethod,
		&order.PaymentStatus,
		&order.OrderStatus,
		&order.IdempotencyKey,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.Version,
	)
}

func generateOrderNumber() string {
	return fmt.Sprintf("ORD-%s-%s", time.Now().UTC().Format("20060102"),
		strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10]))
}

// InsertOrder writes order and its items. ID, OrderNumber and timestamps are
// filled in from the database.
func InsertOrder(ctx context.Context, tx *sql.Tx, order *models.Order) error {
	order.OrderNumber = generateOrderNumber()

	err := tx.QueryRowContext(ctx,
		`INSERT INTO orders (user_id, order_number, item_total, shipping, tax, discount, total_amount,
		                     delivery_address, payment_method, payment_status, order_status, idempotency_key,
		                     created_at, updated_at, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW(), 1)
		 RETURNING id, created_at, updated_at, version`,
		order.UserID, order.OrderNumber, order.ItemTotal, order.Shipping, order.Tax, order.Discount,
		order.TotalAmount, order.DeliveryAddress, order.PaymentMethod, order.PaymentStatus,
		order.OrderStatus, order.IdempotencyKey,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt, &order.Version)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		err := tx.QueryRowContext(ctx,
			`INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price, subtotal, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, NOW())
			 RETURNING id, created_at`,
			order.ID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice, item.Subtotal,
		).Scan(&item.ID, &item.CreatedAt)
		if err != nil {
			return fmt.Errorf("create order item: %w", err)
		}
	}

	return nil
}

func getOrderRow(ctx context.Context, db DBTX, query string, args ...any) (*models.Order, error) {
	order := &models.Order{}
	if err := scanOrder(db.QueryRowContext(ctx, query, args...), order); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

func GetOrder(ctx context.Context, db DBTX, id int64) (*models.Order, error) {
	order, err := getOrderRow(ctx, db, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if order.Items, err = getOrderItems(ctx, db, order.ID); err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrderForUser returns the order only when it belongs to userID.
func GetOrderForUser(ctx context.Context, db DBTX, id, userID int64) (*models.Order, error) {
	order, err := getOrderRow(ctx, db,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return nil, err
	}
	if order.Items, err = getOrderItems(ctx, db, order.ID); err != nil {
		return nil, err
	}
	return order, nil
}

func GetOrderByIdempotencyKey(ctx context.Context, db DBTX, userID int64, key string) (*models.Order, error) {
	order, err := getOrderRow(ctx, db,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 AND idempotency_key = $2`, userID, key)
	if err != nil {
		return nil, err
	}
	if order.Items, err = getOrderItems(ctx, db, order.ID); err != nil {
		return nil, err
	}
	return order, nil
}

// LockOrder reads the order row under FOR UPDATE, without items.
func LockOrder(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error) {
	return getOrderRow(ctx, tx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

func getOrderItems(ctx context.Context, db DBTX, orderID int64) ([]models.OrderItem, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, order_id, product_id, product_name, quantity, unit_price, subtotal, created_at
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY id`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.ProductName,
			&item.Quantity,
			&item.UnitPrice,
			&item.Subtotal,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// TransitionOrder moves the order to orderStatus/paymentStatus only if its
// current order status is one of from. It reports whether a row changed.
func TransitionOrder(ctx context.Context, db DBTX, id int64, from []string, orderStatus, paymentStatus string) (bool, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE orders
		 SET order_status = $1,
		     payment_status = $2,
		     updated_at = NOW(),
		     version = version + 1
		 WHERE id = $3
		   AND order_status = ANY($4)`,
		orderStatus, paymentStatus, id, pq.Array(from))
	if err != nil {
		return false, fmt.Errorf("transition order %d: %w", id, err)
	}
	return affected(result)
}

func ListOrdersCursor(ctx context.Context, db DBTX, userID int64, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	query := `SELECT ` + orderColumns + `
		FROM orders
		WHERE user_id = $1
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	rows, err := db.QueryContext(ctx, query, userID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrders(rows)
	if err != nil {
		return nil, err
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// ListOrders pages through all orders, newest first. An empty status lists
// every status.
func ListOrders(ctx context.Context, db DBTX, status string, page, pageSize int) (*OffsetPage, error) {
	page, pageSize = NormalizePage(page, pageSize)
	where := ""
	args := []any{}
	if status != "" {
		where = " WHERE order_status = $1"
		args = append(args, status)
	}

	var total int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}

	args = append(args, pageSize, (page-1)*pageSize)
	query := fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		orderColumns, where, len(args)-1, len(args))

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrders(rows)
	if err != nil {
		return nil, err
	}

	return newOffsetPage(orders, total, page, pageSize), nil
}

func scanOrders(rows *sql.Rows) ([]models.Order, error) {
	orders := []models.Order{}
	for rows.Next() {
		var order models.Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}
