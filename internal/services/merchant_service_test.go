package services

import (
	"context"
	"errors"
	"testing"

	"payrecord/internal/core"
)

type countingObserver struct {
	hits, misses int
}

func (c *countingObserver) IncCacheHit(string)  { c.hits++ }
func (c *countingObserver) IncCacheMiss(string) { c.misses++ }

func TestMerchantServiceList(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)
	alice := newUser(t, repo, "alice")
	svc := NewMerchantService(repo, nil, nil)

	mustBill(t, repo, core.Bill{UserID: alice.ID, Date: core.NewDate(2025, 1, 1), Payee: strPtr("Water"), Payer: strPtr("Alice")})
	mustBill(t, repo, core.Bill{UserID: alice.ID, Date: core.NewDate(2025, 1, 2), Payee: strPtr("Power")})
	if _, err := svc.Save(ctx, alice.ID, "Power", strPtr("/uploads/icons/bolt.png"), ""); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Save(ctx, alice.ID, "Gym", strPtr("/uploads/icons/gym.png"), ""); err != nil {
		t.Fatal(err)
	}

	got, err := svc.List(ctx, alice.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := []struct{ name, icon string }{
		{"Alice", ""},
		{"Gym", "/uploads/icons/gym.png"},
		{"Power", "/uploads/icons/bolt.png"},
		{"Water", ""},
	}
	if len(got) != len(want) {
		t.Fatalf("got %+v", got)
	}
	for i, w := range want {
		if got[i].Name != w.name || core.StringValue(got[i].Icon) != w.icon {
			t.Errorf("merchant %d = %s/%s, want %s/%s", i, got[i].Name, core.StringValue(got[i].Icon), w.name, w.icon)
		}
	}
}

func TestMerchantServiceValidation(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)
	alice := newUser(t, repo, "alice")
	svc := NewMerchantService(repo, nil, nil)

	if _, err := svc.Save(ctx, alice.ID, "  ", nil, ""); !errors.Is(err, core.ErrInvalidInput) {
		t.Fatalf("save err = %v", err)
	}
	if err := svc.Delete(ctx, alice.ID, "", ""); !errors.Is(err, core.ErrInvalidInput) {
		t.Fatalf("delete err = %v", err)
	}
	if _, err := svc.List(ctx, ""); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("list err = %v", err)
	}
}

func TestMerchantServiceIconCache(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)
	alice := newUser(t, repo, "alice")
	observer := &countingObserver{}
	activity := &fakeActivity{}
	svc := NewMerchantService(repo, activity, observer)

	if _, err := svc.Save(ctx, alice.ID, "Power", strPtr("/a.png"), "10.0.0.1"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		icons, err := svc.Icons(ctx, alice.ID)
		if err != nil || icons["Power"] != "/a.png" {
			t.Fatalf("icons = %v, %v", icons, err)
		}
	}
	if observer.misses != 1 || observer.hits != 2 {
		t.Fatalf("hits = %d misses = %d", observer.hits, observer.misses)
	}

	if _, err := svc.Save(ctx, alice.ID, "Power", strPtr("/b.png"), ""); err != nil {
		t.Fatal(err)
	}
	if icons, _ := svc.Icons(ctx, alice.ID); icons["Power"] != "/b.png" {
		t.Fatalf("stale icon after save: %v", icons)
	}

	if err := svc.Delete(ctx, alice.ID, "Power", ""); err != nil {
		t.Fatal(err)
	}
	if icons, _ := svc.Icons(ctx, alice.ID); len(icons) != 0 {
		t.Fatalf("stale icon after delete: %v", icons)
	}

	if activity.entries[0].action != core.ActionUpdateMerchantIcon || activity.entries[0].details != "Updated icon for Power" {
		t.Fatalf("activity = %+v", activity.entries[0])
	}
	if last := activity.entries[len(activity.entries)-1]; last.action != core.ActionDeleteMerchant ||
		last.details != "Deleted merchant config for Power" {
		t.Fatalf("activity = %+v", last)
	}
	if svc.IconCache().Size() != 1 {
		t.Fatalf("cache size = %d", svc.IconCache().Size())
	}
}
