package services

import (
	"context"
	"log/slog"

	"payrecord/internal/core"
)

// ActivityStore persists audit entries.
type ActivityStore interface {
	AppendActivity(ctx context.Context, e core.ActivityEntry) error
	ListActivity(ctx context.Context, userID string, limit int) ([]core.ActivityEntry, error)
}

// ActivityRecorder appends audit entries. Implementations never fail the caller.
type ActivityRecorder interface {
	Record(ctx context.Context, userID, action, details, origin string)
}

// ActivityLog is the best-effort audit trail.
type ActivityLog struct {
	store ActivityStore
}

// RecentActivityLimit is the number of entries returned by Recent.
const RecentActivityLimit = 100

func NewActivityLog(store ActivityStore) *ActivityLog {
	return &ActivityLog{store: store}
}

// Record appends an entry. Failures are logged and swallowed.
func (a *ActivityLog) Record(ctx context.Context, userID, action, details, origin string) {
	if a == nil || a.store == nil {
		return
	}
	err := a.store.AppendActivity(ctx, core.ActivityEntry{
		UserID:  userID,
		Action:  action,
		Details: details,
		IP:      origin,
	})
	if err != nil {
		slog.WarnContext(ctx, "Failed to append activity log",
			"user_id", userID,
			"action", action,
			"error", err)
	}
}

// Recent returns the user's latest entries, newest first.
func (a *ActivityLog) Recent(ctx context.Context, userID string) ([]core.ActivityEntry, error) {
	if userID == "" {
		return nil, core.ErrUnauthorized
	}
	return a.store.ListActivity(ctx, userID, RecentActivityLimit)
}

type noopActivity struct{}

func (noopActivity) Record(context.Context, string, string, string, string) {}

func orNoop(a ActivityRecorder) ActivityRecorder {
	if a == nil {
		return noopActivity{}
	}
	return a
}
