package storage

import (
	"context"
	"fmt"

	"payrecord/internal/core"
)

// AppendActivity records an audit entry.
func (r *SQLiteRepository) AppendActivity(ctx context.Context, e core.ActivityEntry) error {
	if e.ID == "" {
		e.ID = newID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO activity_logs (id, user_id, action, details, ip, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Action, e.Details, e.IP, formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

// ListActivity returns the user's latest entries, newest first.
func (r *SQLiteRepository) ListActivity(ctx context.Context, userID string, limit int) ([]core.ActivityEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, action, details, ip, created_at FROM activity_logs
		 WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var entries []core.ActivityEntry
	for rows.Next() {
		var (
			e         core.ActivityEntry
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.Details, &e.IP, &createdAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
