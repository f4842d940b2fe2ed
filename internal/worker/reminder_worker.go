// Package worker schedules bill reminder digests. Each run either queues one
// job per eligible user on the broker or, without a broker, sends the
// digests itself with bounded concurrency.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"payrecord/internal/amqp"
	"payrecord/internal/core"
	"payrecord/internal/services"
)

// Notifier builds and delivers reminder digests.
type Notifier interface {
	EligibleUsers(ctx context.Context) ([]core.User, error)
	NotifyUser(ctx context.Context, userID string) (string, error)
}

// Publisher queues a reminder job for a user.
type Publisher interface {
	PublishReminder(ctx context.Context, userID string) error
}

// PublishObserver counts publish attempts by outcome.
type PublishObserver interface {
	IncReminderPublish(outcome string)
}

// RunResult summarizes one scheduling pass.
type RunResult struct {
	Users     int
	Published int
	Notified  int
	Failed    int
}

// ReminderWorker runs reminder passes.
type ReminderWorker struct {
	notifier    Notifier
	publisher   Publisher
	concurrency int
	observer    PublishObserver
}

// NewReminderWorker creates a worker. publisher and observer may be nil;
// without a publisher every digest is sent inline.
func NewReminderWorker(notifier Notifier, publisher Publisher, concurrency int, observer PublishObserver) *ReminderWorker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &ReminderWorker{
		notifier:    notifier,
		publisher:   publisher,
		concurrency: concurrency,
		observer:    observer,
	}
}

// RunOnce schedules reminders for every eligible user. Users whose job
// cannot be published are notified inline.
func (w *ReminderWorker) RunOnce(ctx context.Context) (RunResult, error) {
	users, err := w.notifier.EligibleUsers(ctx)
	if err != nil {
		return RunResult{}, fmt.Errorf("load eligible users: %w", err)
	}
	res := RunResult{Users: len(users)}

	var inline []string
	for _, u := range users {
		if w.publisher == nil {
			inline = append(inline, u.ID)
			continue
		}
		if err := w.publisher.PublishReminder(ctx, u.ID); err != nil {
			slog.WarnContext(ctx, "Failed to publish reminder, notifying inline",
				"user_id", u.ID,
				"error", err)
			w.observe("failed")
			inline = append(inline, u.ID)
			continue
		}
		w.observe("ok")
		res.Published++
	}

	notified, failed := w.notifyAll(ctx, inline)
	res.Notified = notified
	res.Failed = failed

	slog.InfoContext(ctx, "Reminder pass complete",
		"users", res.Users,
		"published", res.Published,
		"notified", res.Notified,
		"failed", res.Failed)
	return res, ctx.Err()
}

// notifyAll sends digests with at most w.concurrency in flight. A failure
// for one user does not stop the others.
func (w *ReminderWorker) notifyAll(ctx context.Context, userIDs []string) (notified, failed int) {
	if len(userIDs) == 0 {
		return 0, 0
	}
	var ok, bad atomic.Int64

	var g errgroup.Group
	g.SetLimit(w.concurrency)
	for _, id := range userIDs {
		if ctx.Err() != nil {
			break
		}
		id := id
		g.Go(func() error {
			outcome, err := w.notifier.NotifyUser(ctx, id)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to send reminder", "user_id", id, "error", err)
				bad.Add(1)
				return nil
			}
			if outcome == services.ReminderSent {
				ok.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(ok.Load()), int(bad.Load())
}

// Run executes a pass immediately and then every interval until ctx is done.
func (w *ReminderWorker) Run(ctx context.Context, interval time.Duration) error {
	if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
		slog.ErrorContext(ctx, "Initial reminder pass failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
				slog.ErrorContext(ctx, "Reminder pass failed", "error", err)
				continue
			}
			slog.DebugContext(ctx, "Next reminder pass scheduled", "at", now.Add(interval).Format(time.RFC3339))
		}
	}
}

// HandleReminder delivers one queued reminder. Errors marked permanent
// cause the broker message to be dropped.
func (w *ReminderWorker) HandleReminder(ctx context.Context, msg *amqp.BillReminderMessage) error {
	outcome, err := w.notifier.NotifyUser(ctx, msg.UserID)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Reminder processed",
		"user_id", msg.UserID,
		"outcome", outcome,
		"queued_at", msg.Timestamp)
	return nil
}

func (w *ReminderWorker) observe(outcome string) {
	if w.observer != nil {
		w.observer.IncReminderPublish(outcome)
	}
}
