package storage

import (
	"context"
	"database/sql"
	"fmt"

	"payrecord/internal/core"
)

const userColumns = `id, username, password_hash, nickname, telegram_token, telegram_chat_id, created_at`

func scanUser(s rowScanner) (core.User, error) {
	var (
		u                         core.User
		nickname, tgToken, tgChat sql.NullString
		createdAt                 string
	)
	if err := s.Scan(&u.ID, &u.Username, &u.PasswordHash, &nickname, &tgToken, &tgChat, &createdAt); err != nil {
		return core.User{}, err
	}
	u.Nickname = stringPtr(nickname)
	u.TelegramToken = stringPtr(tgToken)
	u.TelegramChatID = stringPtr(tgChat)
	u.CreatedAt = parseTime(createdAt)
	return u, nil
}

// CreateUser stores a new user. A taken username yields core.ErrConflict.
func (r *SQLiteRepository) CreateUser(ctx context.Context, username, passwordHash string) (core.User, error) {
	u := core.User{
		ID:           newID(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    r.now(),
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Username, u.PasswordHash, formatTime(u.CreatedAt))
	if isUniqueViolation(err) {
		return core.User{}, fmt.Errorf("user %q: %w", username, core.ErrConflict)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (r *SQLiteRepository) GetUserByID(ctx context.Context, id string) (core.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return core.User{}, notFound(err, "user")
	}
	return u, nil
}

func (r *SQLiteRepository) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username))
	if err != nil {
		return core.User{}, notFound(err, "user")
	}
	return u, nil
}

// ListUsers returns all users ordered by creation time.
func (r *SQLiteRepository) ListUsers(ctx context.Context) ([]core.User, error) {
	return r.listUsers(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at ASC`)
}

// ListNotifiableUsers returns users with a Telegram chat id.
func (r *SQLiteRepository) ListNotifiableUsers(ctx context.Context) ([]core.User, error) {
	return r.listUsers(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE telegram_chat_id IS NOT NULL AND telegram_chat_id <> ''
		 ORDER BY created_at ASC`)
}

func (r *SQLiteRepository) listUsers(ctx context.Context, query string) ([]core.User, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []core.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateUser persists the profile fields and password hash of u.
func (r *SQLiteRepository) UpdateUser(ctx context.Context, u core.User) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, nickname = ?, telegram_token = ?, telegram_chat_id = ? WHERE id = ?`,
		u.PasswordHash, nullString(u.Nickname), nullString(u.TelegramToken), nullString(u.TelegramChatID), u.ID)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user: %w", core.ErrNotFound)
	}
	return nil
}
