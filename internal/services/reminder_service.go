package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"payrecord/internal/core"
	"payrecord/internal/resilience"
	"payrecord/internal/telegram"
)

// ReminderStore is the data the reminder digest is built from.
type ReminderStore interface {
	GetUserByID(ctx context.Context, id string) (core.User, error)
	ListNotifiableUsers(ctx context.Context) ([]core.User, error)
	ListUnpaidBillsUntil(ctx context.Context, userID string, until core.Date) ([]core.Bill, error)
}

// ReminderObserver counts digest outcomes.
type ReminderObserver interface {
	IncReminder(outcome string)
}

// Reminder outcomes.
const (
	ReminderSent    = "sent"
	ReminderEmpty   = "empty"
	ReminderSkipped = "skipped"
	ReminderFailed  = "failed"
)

// ReminderConfig holds digest settings.
type ReminderConfig struct {
	FallbackToken  string
	LookaheadDays  int
	CurrencySymbol string
	Location       *time.Location
}

// ReminderService sends Telegram digests of overdue and upcoming bills.
type ReminderService struct {
	store    ReminderStore
	sender   telegram.Sender
	checker  LookaheadChecker
	cfg      ReminderConfig
	observer ReminderObserver
	now      func() time.Time
}

// NewReminderService creates the service. observer may be nil.
func NewReminderService(store ReminderStore, sender telegram.Sender, cfg ReminderConfig, observer ReminderObserver) *ReminderService {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &ReminderService{
		store:    store,
		sender:   sender,
		checker:  LookaheadChecker{Days: cfg.LookaheadDays},
		cfg:      cfg,
		observer: observer,
		now:      time.Now,
	}
}

// EligibleUsers returns users with a chat id and a usable bot token.
func (s *ReminderService) EligibleUsers(ctx context.Context) ([]core.User, error) {
	users, err := s.store.ListNotifiableUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list notifiable users: %w", err)
	}
	eligible := users[:0]
	for _, u := range users {
		if s.botToken(u) == "" {
			slog.WarnContext(ctx, "Skipping user without Telegram bot token", "user_id", u.ID)
			continue
		}
		eligible = append(eligible, u)
	}
	return eligible, nil
}

// NotifyUser sends userID's digest and reports the outcome. Unknown users
// yield a permanent error so queued jobs for them are dropped.
func (s *ReminderService) NotifyUser(ctx context.Context, userID string) (string, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, core.ErrNotFound) {
		s.observe(ReminderSkipped)
		return ReminderSkipped, resilience.Permanent(err)
	}
	if err != nil {
		s.observe(ReminderFailed)
		return ReminderFailed, fmt.Errorf("load user: %w", err)
	}

	chatID := core.StringValue(user.TelegramChatID)
	token := s.botToken(user)
	if chatID == "" || token == "" {
		s.observe(ReminderSkipped)
		return ReminderSkipped, nil
	}

	today := s.today()
	bills, err := s.store.ListUnpaidBillsUntil(ctx, user.ID, s.checker.Horizon(today))
	if err != nil {
		s.observe(ReminderFailed)
		return ReminderFailed, fmt.Errorf("list unpaid bills: %w", err)
	}
	if len(bills) == 0 {
		slog.DebugContext(ctx, "No bills due", "user_id", user.ID)
		s.observe(ReminderEmpty)
		return ReminderEmpty, nil
	}

	msg := FormatDigest(bills, today, s.checker, s.cfg.CurrencySymbol)
	if err := s.sender.SendMessage(ctx, token, chatID, msg); err != nil {
		s.observe(ReminderFailed)
		return ReminderFailed, fmt.Errorf("send digest to user %s: %w", user.ID, err)
	}

	slog.InfoContext(ctx, "Bill reminder sent", "user_id", user.ID, "bills", len(bills))
	s.observe(ReminderSent)
	return ReminderSent, nil
}

// SendTest sends the integration test message with explicit credentials.
func (s *ReminderService) SendTest(ctx context.Context, token, chatID string) error {
	if strings.TrimSpace(token) == "" || strings.TrimSpace(chatID) == "" {
		return fmt.Errorf("%w: token and chat ID are required", core.ErrInvalidInput)
	}
	return s.sender.SendMessage(ctx, token, chatID,
		"<b>Test Message from PayRecord</b>\n\nYour Telegram integration is working correctly! 🎉")
}

// FormatDigest renders the HTML reminder message for bills.
func FormatDigest(bills []core.Bill, today core.Date, checker DuenessChecker, currency string) string {
	var b strings.Builder
	b.WriteString("📅 <b>PayRecord Bill Reminder</b>\n\n")
	fmt.Fprintf(&b, "You have <b>%d</b> unpaid bills due soon or overdue:\n\n", len(bills))

	for i, bill := range bills {
		icon := checker.Status(bill, today).Icon()
		if icon == "" {
			icon = DueSoon.Icon()
		}
		fmt.Fprintf(&b, "%d. %s <b>%s</b>: %s (%s%s)\n",
			i+1, icon, bill.Date.String(), html.EscapeString(bill.DisplayName()),
			html.EscapeString(currency), bill.DisplayAmount().String())
		if notes := core.StringValue(bill.Notes); notes != "" {
			fmt.Fprintf(&b, "   <i>%s</i>\n", html.EscapeString(notes))
		}
	}
	return b.String()
}

func (s *ReminderService) botToken(u core.User) string {
	if token := strings.TrimSpace(core.StringValue(u.TelegramToken)); token != "" {
		return token
	}
	return strings.TrimSpace(s.cfg.FallbackToken)
}

func (s *ReminderService) today() core.Date {
	return core.DateOf(s.now().In(s.cfg.Location))
}

func (s *ReminderService) observe(outcome string) {
	if s.observer != nil {
		s.observer.IncReminder(outcome)
	}
}
