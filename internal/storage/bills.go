package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"payrecord/internal/core"
)

const billColumns = `id, user_id, date, payee, payer, pay_amount, receive_amount, is_paid, paid_date,
	actual_receive_amount, notes, is_recurring, recurring_interval, clone_key, created_at, updated_at`

const insertBillSQL = `INSERT INTO bills (` + billColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func scanBill(s rowScanner) (core.Bill, error) {
	var (
		b                                   core.Bill
		date, createdAt, updatedAt          string
		payee, payer, notes, cloneKey       sql.NullString
		payAmount, receiveAmount, actualAmt sql.NullString
		paidDate                            sql.NullString
		isPaid, isRecurring                 int
		interval                            sql.NullInt64
	)
	if err := s.Scan(&b.ID, &b.UserID, &date, &payee, &payer, &payAmount, &receiveAmount, &isPaid, &paidDate,
		&actualAmt, &notes, &isRecurring, &interval, &cloneKey, &createdAt, &updatedAt); err != nil {
		return core.Bill{}, err
	}

	d, err := core.ParseDate(date)
	if err != nil {
		return core.Bill{}, fmt.Errorf("bill %s: %w", b.ID, err)
	}
	b.Date = d
	b.Payee = stringPtr(payee)
	b.Payer = stringPtr(payer)
	if b.PayAmount, err = decimalPtr(payAmount); err != nil {
		return core.Bill{}, err
	}
	if b.ReceiveAmount, err = decimalPtr(receiveAmount); err != nil {
		return core.Bill{}, err
	}
	if b.ActualReceiveAmount, err = decimalPtr(actualAmt); err != nil {
		return core.Bill{}, err
	}
	if b.PaidDate, err = datePtr(paidDate); err != nil {
		return core.Bill{}, err
	}
	b.IsPaid = isPaid != 0
	b.IsRecurring = isRecurring != 0
	b.RecurringInterval = intPtr(interval)
	b.Notes = stringPtr(notes)
	b.CloneKey = stringPtr(cloneKey)
	b.CreatedAt = parseTime(createdAt)
	b.UpdatedAt = parseTime(updatedAt)
	return b, nil
}

func billArgs(b core.Bill) []any {
	return []any{
		b.ID, b.UserID, b.Date.String(), nullString(b.Payee), nullString(b.Payer),
		nullDecimal(b.PayAmount), nullDecimal(b.ReceiveAmount), boolInt(b.IsPaid), nullDate(b.PaidDate),
		nullDecimal(b.ActualReceiveAmount), nullString(b.Notes), boolInt(b.IsRecurring),
		nullInt(b.RecurringInterval), nullString(b.CloneKey), formatTime(b.CreatedAt), formatTime(b.UpdatedAt),
	}
}

func (r *SQLiteRepository) queryBills(ctx context.Context, query string, args ...any) ([]core.Bill, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bills []core.Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bill: %w", err)
		}
		bills = append(bills, b)
	}
	return bills, rows.Err()
}

// ListBillsByDateRange returns the user's bills with start <= date <= end, ordered by date.
func (r *SQLiteRepository) ListBillsByDateRange(ctx context.Context, userID string, start, end core.Date) ([]core.Bill, error) {
	bills, err := r.queryBills(ctx,
		`SELECT `+billColumns+` FROM bills
		 WHERE user_id = ? AND date >= ? AND date <= ?
		 ORDER BY date ASC, created_at ASC`,
		userID, start.String(), end.String())
	if err != nil {
		return nil, fmt.Errorf("list bills %s..%s: %w", start, end, err)
	}
	return bills, nil
}

// ListBillsFrom returns the user's bills dated on or after start.
func (r *SQLiteRepository) ListBillsFrom(ctx context.Context, userID string, start core.Date) ([]core.Bill, error) {
	bills, err := r.queryBills(ctx,
		`SELECT `+billColumns+` FROM bills WHERE user_id = ? AND date >= ? ORDER BY date ASC`,
		userID, start.String())
	if err != nil {
		return nil, fmt.Errorf("list bills from %s: %w", start, err)
	}
	return bills, nil
}

// ListUnpaidBillsUntil returns unpaid bills dated on or before until, ordered by date.
func (r *SQLiteRepository) ListUnpaidBillsUntil(ctx context.Context, userID string, until core.Date) ([]core.Bill, error) {
	bills, err := r.queryBills(ctx,
		`SELECT `+billColumns+` FROM bills
		 WHERE user_id = ? AND is_paid = 0 AND date <= ?
		 ORDER BY date ASC`,
		userID, until.String())
	if err != nil {
		return nil, fmt.Errorf("list unpaid bills: %w", err)
	}
	return bills, nil
}

// GetBill returns a bill owned by userID.
func (r *SQLiteRepository) GetBill(ctx context.Context, userID, id string) (core.Bill, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+billColumns+` FROM bills WHERE id = ? AND user_id = ?`, id, userID)
	b, err := scanBill(row)
	if err != nil {
		return core.Bill{}, notFound(err, "bill")
	}
	return b, nil
}

// CreateBill stores b, assigning ID and timestamps.
func (r *SQLiteRepository) CreateBill(ctx context.Context, b core.Bill) (core.Bill, error) {
	now := r.now()
	b.ID = newID()
	b.CreatedAt = now
	b.UpdatedAt = now

	if _, err := r.db.ExecContext(ctx, insertBillSQL, billArgs(b)...); err != nil {
		return core.Bill{}, fmt.Errorf("create bill: %w", err)
	}

	slog.DebugContext(ctx, "Bill saved to SQLite", "bill_id", b.ID, "user_id", b.UserID, "date", b.Date.String())
	return b, nil
}

// UpdateBill overwrites every mutable column of an owned bill.
func (r *SQLiteRepository) UpdateBill(ctx context.Context, b core.Bill) (core.Bill, error) {
	b.UpdatedAt = r.now()
	res, err := r.db.ExecContext(ctx,
		`UPDATE bills SET date = ?, payee = ?, payer = ?, pay_amount = ?, receive_amount = ?, is_paid = ?,
		 paid_date = ?, actual_receive_amount = ?, notes = ?, is_recurring = ?, recurring_interval = ?,
		 clone_key = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		b.Date.String(), nullString(b.Payee), nullString(b.Payer), nullDecimal(b.PayAmount),
		nullDecimal(b.ReceiveAmount), boolInt(b.IsPaid), nullDate(b.PaidDate), nullDecimal(b.ActualReceiveAmount),
		nullString(b.Notes), boolInt(b.IsRecurring), nullInt(b.RecurringInterval), nullString(b.CloneKey),
		formatTime(b.UpdatedAt), b.ID, b.UserID)
	if err != nil {
		return core.Bill{}, fmt.Errorf("update bill: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Bill{}, fmt.Errorf("bill: %w", core.ErrNotFound)
	}
	return b, nil
}

// DeleteBill removes an owned bill.
func (r *SQLiteRepository) DeleteBill(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM bills WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete bill: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("bill: %w", core.ErrNotFound)
	}
	return nil
}

// DeleteBillsInRange removes the user's bills with start <= date <= end.
func (r *SQLiteRepository) DeleteBillsInRange(ctx context.Context, userID string, start, end core.Date) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM bills WHERE user_id = ? AND date >= ? AND date <= ?`,
		userID, start.String(), end.String())
	if err != nil {
		return 0, fmt.Errorf("delete bills %s..%s: %w", start, end, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete bills rows affected: %w", err)
	}
	return int(n), nil
}

// ListCounterparties returns the distinct non-empty payees and payers of the user's bills.
func (r *SQLiteRepository) ListCounterparties(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT payee FROM bills WHERE user_id = ? AND payee IS NOT NULL AND payee <> ''
		 UNION
		 SELECT payer FROM bills WHERE user_id = ? AND payer IS NOT NULL AND payer <> ''`,
		userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list counterparties: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan counterparty: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ApplyReconciliation deletes and inserts bills in one transaction.
// Inserts whose clone key already exists for the user are ignored, so the
// returned created count is the number of rows actually written.
func (r *SQLiteRepository) ApplyReconciliation(ctx context.Context, userID string, deleteIDs []string, creates []core.Bill) (deleted, created int, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range deleteIDs {
		res, err := tx.ExecContext(ctx, `DELETE FROM bills WHERE id = ? AND user_id = ?`, id, userID)
		if err != nil {
			return 0, 0, fmt.Errorf("delete bill %s: %w", id, err)
		}
		n, _ := res.RowsAffected()
		deleted += int(n)
	}

	now := r.now()
	stmt, err := tx.PrepareContext(ctx, insertBillSQL+` ON CONFLICT(user_id, clone_key) DO NOTHING`)
	if err != nil {
		return 0, 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, b := range creates {
		if b.UserID != userID {
			return 0, 0, fmt.Errorf("bill for user %s in reconciliation of %s: %w", b.UserID, userID, core.ErrUnauthorized)
		}
		b.ID = newID()
		b.CreatedAt = now
		b.UpdatedAt = now
		res, err := stmt.ExecContext(ctx, billArgs(b)...)
		if err != nil {
			return 0, 0, fmt.Errorf("insert bill: %w", err)
		}
		n, _ := res.RowsAffected()
		created += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit transaction: %w", err)
	}
	return deleted, created, nil
}
