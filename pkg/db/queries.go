// User-isolated queries: every read and write below is scoped by user_id so
// one tenant can never see another's history.
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrUserIDRequired = errors.New("user_id is required for data isolation")
	ErrNotFound       = errors.New("record not found")
)

// RecordOrder inserts an order row. Rejected orders are stored too; the
// history must show what was attempted, not only what succeeded.
func (d *Database) RecordOrder(ctx context.Context, o Order) error {
	if o.UserID == "" {
		return ErrUserIDRequired
	}
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO orders (
			id, user_id, mode, symbol, side, type, price, qty, filled_qty, avg_price, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))
	`,
		o.ID, o.UserID, o.Mode, o.Symbol, o.Side, o.Type, o.Price, o.Qty, o.FilledQty, o.AvgPrice, o.Status, o.CreatedAt,
	)
	return err
}

// UpdateOrderStatus sets status and fill figures for a user's order.
func (d *Database) UpdateOrderStatus(ctx context.Context, userID, id, status string, filledQty, avgPrice float64) error {
	if userID == "" {
		return ErrUserIDRequired
	}
	res, err := d.DB.ExecContext(ctx, `
		UPDATE orders SET status = ?, filled_qty = ?, avg_price = ?
		WHERE id = ? AND user_id = ?
	`, status, filledQty, avgPrice, id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordTrade inserts a fill row.
func (d *Database) RecordTrade(ctx context.Context, t Trade) error {
	if t.UserID == "" {
		return ErrUserIDRequired
	}
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO trades (id, order_id, user_id, symbol, side, price, qty, fee, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))
	`, t.ID, t.OrderID, t.UserID, t.Symbol, t.Side, t.Price, t.Qty, t.Fee, t.CreatedAt)
	return err
}

// ListOrdersByUser returns a user's orders, newest first.
func (d *Database) ListOrdersByUser(ctx context.Context, userID string, limit int) ([]Order, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, user_id, mode, symbol, side, type, price, qty, filled_qty, avg_price, status, created_at
		FROM orders WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var res []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.Mode, &o.Symbol, &o.Side, &o.Type,
			&o.Price, &o.Qty, &o.FilledQty, &o.AvgPrice, &o.Status, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

// ListTradesByUser returns a user's fills, newest first.
func (d *Database) ListTradesByUser(ctx context.Context, userID string, limit int) ([]Trade, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, order_id, user_id, symbol, side, price, qty, fee, created_at
		FROM trades WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var res []Trade
	for rows.Next() {
		var t Trade
		if err := rows.Scan(&t.ID, &t.OrderID, &t.UserID, &t.Symbol, &t.Side, &t.Price, &t.Qty, &t.Fee, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// AppendAudit inserts one audit row. Entries are append-only; there is no
// update or delete path.
func (d *Database) AppendAudit(ctx context.Context, r AuditRecord) error {
	if r.UserID == "" {
		return ErrUserIDRequired
	}
	id := r.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO audit_log (id, user_id, action, previous_mode, new_mode, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))
	`, id, r.UserID, r.Action, r.PreviousMode, r.NewMode, r.Details, r.CreatedAt)
	return err
}

// ListAudit returns a user's audit trail, newest first.
func (d *Database) ListAudit(ctx context.Context, userID string, limit int) ([]AuditRecord, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, user_id, action, COALESCE(previous_mode, ''), COALESCE(new_mode, ''), COALESCE(details, ''), created_at
		FROM audit_log WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var res []AuditRecord
	for rows.Next() {
		var r AuditRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.Action, &r.PreviousMode, &r.NewMode, &r.Details, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		res = append(res, r)
	}
	return res, rows.Err()
}
