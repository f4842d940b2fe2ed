package storage

import (
	"context"
	"database/sql"
	"fmt"

	"payrecord/internal/core"
)

// ListMerchants returns the user's saved merchant configurations ordered by name.
func (r *SQLiteRepository) ListMerchants(ctx context.Context, userID string) ([]core.Merchant, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, icon, updated_at FROM merchants WHERE user_id = ? ORDER BY name ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list merchants: %w", err)
	}
	defer rows.Close()

	var merchants []core.Merchant
	for rows.Next() {
		var (
			m         core.Merchant
			icon      sql.NullString
			updatedAt string
		)
		if err := rows.Scan(&m.ID, &m.UserID, &m.Name, &icon, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan merchant: %w", err)
		}
		m.Icon = stringPtr(icon)
		m.UpdatedAt = parseTime(updatedAt)
		merchants = append(merchants, m)
	}
	return merchants, rows.Err()
}

// UpsertMerchant creates or replaces the icon of the (user, name) merchant.
func (r *SQLiteRepository) UpsertMerchant(ctx context.Context, userID, name string, icon *string) (core.Merchant, error) {
	m := core.Merchant{
		ID:        newID(),
		UserID:    userID,
		Name:      name,
		Icon:      icon,
		UpdatedAt: r.now(),
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO merchants (id, user_id, name, icon, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, name) DO UPDATE SET icon = excluded.icon, updated_at = excluded.updated_at
		 RETURNING id`,
		m.ID, userID, name, nullString(icon), formatTime(m.UpdatedAt)).Scan(&m.ID)
	if err != nil {
		return core.Merchant{}, fmt.Errorf("upsert merchant: %w", err)
	}
	return m, nil
}

// DeleteMerchant removes the (user, name) configuration. Missing rows are not an error.
func (r *SQLiteRepository) DeleteMerchant(ctx context.Context, userID, name string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM merchants WHERE user_id = ? AND name = ?`, userID, name); err != nil {
		return fmt.Errorf("delete merchant: %w", err)
	}
	return nil
}
