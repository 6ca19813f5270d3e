package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
)

// Constraint names from the payments migration.
const (
	ConstraintGatewayOrderID     = "payments_gateway_order_id_key"
	ConstraintOnePendingPerOrder = "payments_one_pending_per_order"
)

const paymentColumns = `id, user_id, order_id, products, amount, currency, gateway_order_id,
	gateway_payment_id, gateway_signature, status, created_at, updated_at`

func scanPayment(row rowScanner, payment *models.Payment) error {
	var products []byte
	err := row.Scan(
		&payment.ID,
		&payment.UserID,
		&payment.OrderID,
		&products,
		&payment.Amount,
		&payment.Currency,
		&payment.GatewayOrderID,
		&payment.GatewayPaymentID,
		&payment.GatewaySignature,
		&payment.Status,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(products, &payment.Products); err != nil {
		return fmt.Errorf("decode payment products: %w", err)
	}
	return nil
}

func getPaymentRow(ctx context.Context, db DBTX, query string, args ...any) (*models.Payment, error) {
	payment := &models.Payment{}
	if err := scanPayment(db.QueryRowContext(ctx, query, args...), payment); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return payment, nil
}

// InsertPayment creates a PENDING payment. Unique violations on
// ConstraintGatewayOrderID or ConstraintOnePendingPerOrder are returned
// wrapped so callers can resolve to the existing row.
func InsertPayment(ctx context.Context, db DBTX, payment *models.Payment) error {
	products, err := json.Marshal(payment.Products)
	if err != nil {
		return fmt.Errorf("encode payment products: %w", err)
	}

	payment.Status = models.PaymentPending
	err = db.QueryRowContext(ctx,
		`INSERT INTO payments (user_id, order_id, products, amount, currency, gateway_order_id, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		 RETURNING id, created_at, updated_at`,
		payment.UserID, payment.OrderID, string(products), payment.Amount, payment.Currency,
		payment.GatewayOrderID, payment.Status,
	).Scan(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create payment: %w", err)
	}

	return nil
}

func GetPaymentByGatewayOrderID(ctx context.Context, db DBTX, gatewayOrderID string) (*models.Payment, error) {
	return getPaymentRow(ctx, db,
		`SELECT `+paymentColumns+` FROM payments WHERE gateway_order_id = $1`, gatewayOrderID)
}

// LockPaymentByGatewayOrderID reads the payment under FOR UPDATE so
// concurrent verifications of one intent serialize.
func LockPaymentByGatewayOrderID(ctx context.Context, tx *sql.Tx, gatewayOrderID string) (*models.Payment, error) {
	return getPaymentRow(ctx, tx,
		`SELECT `+paymentColumns+` FROM payments WHERE gateway_order_id = $1 FOR UPDATE`, gatewayOrderID)
}

func GetPendingPaymentForOrder(ctx context.Context, db DBTX, orderID int64) (*models.Payment, error) {
	return getPaymentRow(ctx, db,
		`SELECT `+paymentColumns+` FROM payments WHERE order_id = $1 AND status = $2`,
		orderID, models.PaymentPending)
}

func ListPaymentsForOrder(ctx context.Context, db DBTX, orderID int64) ([]models.Payment, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE order_id = $1 ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	payments := []models.Payment{}
	for rows.Next() {
		var payment models.Payment
		if err := scanPayment(rows, &payment); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, payment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return payments, nil
}

// MarkPaymentSucceeded records the gateway payment id and signature. It only
// applies to PENDING or already-SUCCESS rows; it reports whether a row
// matched.
func MarkPaymentSucceeded(ctx context.Context, tx *sql.Tx, id int64, gatewayPaymentID, signature string) (bool, error) {
	result, err := tx.ExecContext(ctx,
		`UPDATE payments
		 SET gateway_payment_id = $1,
		     gateway_signature = $2,
		     status = $3,
		     updated_at = NOW()
		 WHERE id = $4
		   AND status IN ($5, $3)`,
		gatewayPaymentID, signature, models.PaymentSuccess, id, models.PaymentPending)
	if err != nil {
		return false, fmt.Errorf("mark payment %d succeeded: %w", id, err)
	}
	return affected(result)
}

// MarkPaymentFailed moves a PENDING payment to FAILED. Terminal rows are left
// untouched.
func MarkPaymentFailed(ctx context.Context, tx *sql.Tx, id int64) (bool, error) {
	result, err := tx.ExecContext(ctx,
		`UPDATE payments
		 SET status = $1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND status = $3`,
		models.PaymentFailed, id, models.PaymentPending)
	if err != nil {
		return false, fmt.Errorf("mark payment %d failed: %w", id, err)
	}
	return affected(result)
}

func affected(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return n > 0, nil
}

// FailPendingPaymentsForOrder closes any open intent for an order that is
// being cancelled outside the verification flow.
func FailPendingPaymentsForOrder(ctx context.Context, tx *sql.Tx, orderID int64) (int64, error) {
	result, err := tx.ExecContext(ctx,
		`UPDATE payments
		 SET status = $1,
		     updated_at = NOW()
		 WHERE order_id = $2
		   AND status = $3`,
		models.PaymentFailed, orderID, models.PaymentPending)
	if err != nil {
		return 0, fmt.Errorf("fail pending payments for order %d: %w", orderID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return n, nil
}
