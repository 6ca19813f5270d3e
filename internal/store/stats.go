package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/storefront/internal/models"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

type TopProduct struct {
	Product   models.Product `json:"product"`
	TotalSold int64          `json:"total_sold"`
}

type DashboardStats struct {
	TotalOrders    int64           `json:"total_orders"`
	TotalEarnings  decimal.Decimal `json:"total_earnings"`
	TotalCustomers int64           `json:"total_customers"`
	TopProducts    []TopProduct    `json:"top_products"`
	RecentOrders   []models.Order  `json:"recent_orders"`
}

// GetDashboardStats runs the admin aggregates concurrently. Earnings exclude
// cancelled orders.
func GetDashboardStats(ctx context.Context, db *sql.DB) (*DashboardStats, error) {
	stats := &DashboardStats{}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&stats.TotalOrders)
		if err != nil {
			return fmt.Errorf("count orders: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		err := db.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(total_amount), 0) FROM orders WHERE order_status <> $1`,
			models.OrderStatusCancelled).Scan(&stats.TotalEarnings)
		if err != nil {
			return fmt.Errorf("sum earnings: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		err := db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM users WHERE role = $1`, models.RoleUser).Scan(&stats.TotalCustomers)
		if err != nil {
			return fmt.Errorf("count customers: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		top, err := topProducts(ctx, db, 5)
		if err != nil {
			return err
		}
		stats.TopProducts = top
		return nil
	})

	g.Go(func() error {
		rows, err := db.QueryContext(ctx,
			`SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC, id DESC LIMIT 10`)
		if err != nil {
			return fmt.Errorf("recent orders: %w", err)
		}
		defer rows.Close()

		stats.RecentOrders, err = scanOrders(rows)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return stats, nil
}

func topProducts(ctx context.Context, db DBTX, limit int) ([]TopProduct, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT p.id, p.sku, p.name, p.description, p.category, p.price, p.stock_quantity,
		        p.in_stock, p.is_featured, p.created_at, p.updated_at, p.version, t.total_sold
		 FROM (
		     SELECT product_id, SUM(quantity) AS total_sold
		     FROM order_items
		     GROUP BY product_id
		 ) t
		 JOIN products p ON p.id = t.product_id
		 ORDER BY t.total_sold DESC, p.id
		 LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("top products: %w", err)
	}
	defer rows.Close()

	top := []TopProduct{}
	for rows.Next() {
		var tp TopProduct
		p := &tp.Product
		err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.Category, &p.Price,
			&p.StockQuantity, &p.InStock, &p.IsFeatured, &p.CreatedAt, &p.UpdatedAt, &p.Version,
			&tp.TotalSold)
		if err != nil {
			return nil, fmt.Errorf("scan top product: %w", err)
		}
		top = append(top, tp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return top, nil
}
