package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"payrecord/internal/core"
	"payrecord/internal/resilience"
	"payrecord/internal/storage"
)

type sentMessage struct {
	token, chatID, text string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeSender) SendMessage(_ context.Context, token, chatID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{token, chatID, text})
	return nil
}

type reminderCounter struct {
	outcomes []string
}

func (r *reminderCounter) IncReminder(outcome string) { r.outcomes = append(r.outcomes, outcome) }

func withTelegram(t *testing.T, repo *storage.SQLiteRepository, u core.User, token, chatID string) core.User {
	t.Helper()
	u.TelegramToken = core.NullIfEmpty(&token)
	u.TelegramChatID = core.NullIfEmpty(&chatID)
	if err := repo.UpdateUser(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	return u
}

func newReminderService(repo *storage.SQLiteRepository, sender *fakeSender, fallback string, observer ReminderObserver) *ReminderService {
	svc := NewReminderService(repo, sender, ReminderConfig{
		FallbackToken:  fallback,
		LookaheadDays:  3,
		CurrencySymbol: "¥",
	}, observer)
	svc.now = func() time.Time { return time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC) }
	return svc
}

func TestReminderServiceNotifyUser(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)
	alice := withTelegram(t, repo, newUser(t, repo, "alice"), "123:own", "42")
	bob := newUser(t, repo, "bob")

	paidOn := core.NewDate(2025, 3, 1)
	mustBill(t, repo, core.Bill{UserID: alice.ID, Date: core.NewDate(2025, 3, 5), Payee: strPtr("Power"),
		PayAmount: amountPtr("80.5")})
	mustBill(t, repo, core.Bill{UserID: alice.ID, Date: core.NewDate(2025, 3, 13), Payer: strPtr("Tenant & Co"),
		ReceiveAmount: amountPtr("900"), Notes: strPtr("<ask>")})
	mustBill(t, repo, core.Bill{UserID: alice.ID, Date: core.NewDate(2025, 3, 14), Payee: strPtr("Later")})
	mustBill(t, repo, core.Bill{UserID: alice.ID, Date: core.NewDate(2025, 3, 2), Payee: strPtr("Done"),
		IsPaid: true, PaidDate: &paidOn})
	mustBill(t, repo, core.Bill{UserID: bob.ID, Date: core.NewDate(2025, 3, 9), Payee: strPtr("Bob's")})

	sender := &fakeSender{}
	observer := &reminderCounter{}
	svc := newReminderService(repo, sender, "", observer)

	outcome, err := svc.NotifyUser(ctx, alice.ID)
	if err != nil || outcome != ReminderSent {
		t.Fatalf("outcome = %s, %v", outcome, err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.token != "123:own" || msg.chatID != "42" {
		t.Fatalf("credentials = %s/%s", msg.token, msg.chatID)
	}
	for _, want := range []string{
		"You have <b>2</b> unpaid bills",
		"1. 🔴 <b>2025-03-05</b>: Power (¥80.5)",
		"2. 🟡 <b>2025-03-13</b>: Tenant &amp; Co (¥900)",
		"<i>&lt;ask&gt;</i>",
	} {
		if !strings.Contains(msg.text, want) {
			t.Errorf("digest missing %q:\n%s", want, msg.text)
		}
	}
	if strings.Contains(msg.text, "Later") || strings.Contains(msg.text, "Done") || strings.Contains(msg.text, "Bob") {
		t.Errorf("digest includes foreign or out-of-range bills:\n%s", msg.text)
	}

	// bob has no chat id
	if outcome, err := svc.NotifyUser(ctx, bob.ID); err != nil || outcome != ReminderSkipped {
		t.Fatalf("bob outcome = %s, %v", outcome, err)
	}
	if got := strings.Join(observer.outcomes, ","); got != "sent,skipped" {
		t.Fatalf("outcomes = %s", got)
	}
}

func TestReminderServiceOutcomes(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)
	carol := withTelegram(t, repo, newUser(t, repo, "carol"), "", "7")

	t.Run("fallback token and nothing due", func(t *testing.T) {
		sender := &fakeSender{}
		svc := newReminderService(repo, sender, "999:shared", nil)
		outcome, err := svc.NotifyUser(ctx, carol.ID)
		if err != nil || outcome != ReminderEmpty || len(sender.sent) != 0 {
			t.Fatalf("outcome = %s, %v, sent %d", outcome, err, len(sender.sent))
		}
	})

	t.Run("no token anywhere", func(t *testing.T) {
		svc := newReminderService(repo, &fakeSender{}, "", nil)
		if outcome, err := svc.NotifyUser(ctx, carol.ID); err != nil || outcome != ReminderSkipped {
			t.Fatalf("outcome = %s, %v", outcome, err)
		}
		users, err := svc.EligibleUsers(ctx)
		if err != nil || len(users) != 0 {
			t.Fatalf("eligible = %v, %v", users, err)
		}
	})

	t.Run("unknown user is permanent", func(t *testing.T) {
		svc := newReminderService(repo, &fakeSender{}, "999:shared", nil)
		outcome, err := svc.NotifyUser(ctx, "ghost")
		if outcome != ReminderSkipped || !resilience.IsPermanent(err) {
			t.Fatalf("outcome = %s, %v", outcome, err)
		}
	})

	t.Run("send failure", func(t *testing.T) {
		mustBill(t, repo, core.Bill{UserID: carol.ID, Date: core.NewDate(2025, 3, 10), Payee: strPtr("Water")})
		sender := &fakeSender{err: errors.New("boom")}
		svc := newReminderService(repo, sender, "999:shared", nil)
		outcome, err := svc.NotifyUser(ctx, carol.ID)
		if outcome != ReminderFailed || err == nil || resilience.IsPermanent(err) {
			t.Fatalf("outcome = %s, %v", outcome, err)
		}
	})

	t.Run("eligible with fallback", func(t *testing.T) {
		svc := newReminderService(repo, &fakeSender{}, "999:shared", nil)
		users, err := svc.EligibleUsers(ctx)
		if err != nil || len(users) != 1 || users[0].ID != carol.ID {
			t.Fatalf("eligible = %v, %v", users, err)
		}
	})
}

func TestReminderServiceSendTest(t *testing.T) {
	sender := &fakeSender{}
	svc := NewReminderService(nil, sender, ReminderConfig{}, nil)

	if err := svc.SendTest(context.Background(), "", "42"); !errors.Is(err, core.ErrInvalidInput) {
		t.Fatalf("err = %v", err)
	}
	if err := svc.SendTest(context.Background(), "123:abc", "42"); err != nil {
		t.Fatal(err)
	}
	if len(sender.sent) != 1 || !strings.Contains(sender.sent[0].text, "Test Message from PayRecord") {
		t.Fatalf("sent = %+v", sender.sent)
	}
}

func TestFormatDigestDefaultsUnknown(t *testing.T) {
	today := core.NewDate(2025, 3, 10)
	got := FormatDigest([]core.Bill{{Date: today}}, today, LookaheadChecker{}, "$")
	want := "📅 <b>PayRecord Bill Reminder</b>\n\n" +
		"You have <b>1</b> unpaid bills due soon or overdue:\n\n" +
		"1. 🟡 <b>2025-03-10</b>: Unknown ($0)\n"
	if got != want {
		t.Fatalf("digest =\n%q\nwant\n%q", got, want)
	}
}
