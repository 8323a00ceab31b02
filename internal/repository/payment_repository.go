package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/digkill/finassist/internal/models"
)

var ErrOrderAlreadyCompleted = errors.New("order already completed")

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) CreateOrder(ctx context.Context, order *models.PaymentOrder) error {
	const query = `
INSERT INTO payment_orders (id, user_id, plan, amount, currency, receipt, status)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, order.ID, order.UserID, order.Plan, order.Amount, order.Currency, order.Receipt, order.Status); err != nil {
		return fmt.Errorf("insert payment order: %w", err)
	}
	return nil
}

func (r *PaymentRepository) FindOrder(ctx context.Context, id string) (*models.PaymentOrder, error) {
	const query = `
SELECT id, user_id, plan, amount, currency, receipt, status, created_at, updated_at
FROM payment_orders WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	var o models.PaymentOrder
	if err := row.Scan(&o.ID, &o.UserID, &o.Plan, &o.Amount, &o.Currency, &o.Receipt, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan payment order: %w", err)
	}
	return &o, nil
}

// CompleteOrder marks the order completed, records the payment and upgrades the
// profile in a single transaction. Expired orders can still be completed since
// the gateway has already taken the money. ErrOrderAlreadyCompleted is returned when
// the order was completed before.
func (r *PaymentRepository) CompleteOrder(ctx context.Context, payment *models.Payment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE payment_orders SET status = ?, updated_at = NOW() WHERE id = ? AND status <> ?`,
		models.OrderCompleted, payment.OrderID, models.OrderCompleted)
	if err != nil {
		return fmt.Errorf("complete order: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("order rows affected: %w", err)
	}
	if affected == 0 {
		return ErrOrderAlreadyCompleted
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO payments (id, order_id, user_id, plan, amount, currency, signature, status)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID, payment.OrderID, payment.UserID, payment.Plan, payment.Amount, payment.Currency, payment.Signature, payment.Status); err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE profiles SET plan = ?, questions_used = 0, usage_reset_at = NOW(), updated_at = NOW() WHERE id = ?`,
		payment.Plan, payment.UserID); err != nil {
		return fmt.Errorf("upgrade profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit payment: %w", err)
	}
	return nil
}

// ExpireOrders marks pending orders created before cutoff as expired.
func (r *PaymentRepository) ExpireOrders(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `UPDATE payment_orders SET status = ?, updated_at = NOW() WHERE status = ? AND created_at < ?`
	res, err := r.db.ExecContext(ctx, query, models.OrderExpired, models.OrderCreated, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire orders: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire rows affected: %w", err)
	}
	return affected, nil
}

func (r *PaymentRepository) ListPayments(ctx context.Context, status string, limit int) ([]models.Payment, error) {
	query := `
SELECT id, order_id, user_id, plan, amount, currency, status, created_at
FROM payments`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	payments := []models.Payment{}
	for rows.Next() {
		var p models.Payment
		if err := rows.Scan(&p.ID, &p.OrderID, &p.UserID, &p.Plan, &p.Amount, &p.Currency, &p.Status, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
