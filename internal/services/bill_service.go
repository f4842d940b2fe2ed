package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"payrecord/internal/core"
)

// BillStore is the bill persistence used by BillService.
type BillStore interface {
	ListBillsByDateRange(ctx context.Context, userID string, start, end core.Date) ([]core.Bill, error)
	GetBill(ctx context.Context, userID, id string) (core.Bill, error)
	CreateBill(ctx context.Context, b core.Bill) (core.Bill, error)
	UpdateBill(ctx context.Context, b core.Bill) (core.Bill, error)
	DeleteBill(ctx context.Context, userID, id string) error
	DeleteBillsInRange(ctx context.Context, userID string, start, end core.Date) (int, error)
}

// IconSource resolves merchant icons for a user.
type IconSource interface {
	Icons(ctx context.Context, userID string) (map[string]string, error)
}

// BillService orchestrates bill operations and their audit trail.
type BillService struct {
	store    BillStore
	icons    IconSource
	activity ActivityRecorder
}

func NewBillService(store BillStore, icons IconSource, activity ActivityRecorder) *BillService {
	return &BillService{
		store:    store,
		icons:    icons,
		activity: orNoop(activity),
	}
}

// ListBills returns the month's bills ordered by date, with icons attached.
func (s *BillService) ListBills(ctx context.Context, userID string, p core.Period) ([]core.BillView, error) {
	if userID == "" {
		return nil, core.ErrUnauthorized
	}
	bills, err := s.store.ListBillsByDateRange(ctx, userID, p.Start(), p.End())
	if err != nil {
		return nil, fmt.Errorf("list bills for %s: %w", p, err)
	}
	icons := s.loadIcons(ctx, userID)

	views := make([]core.BillView, 0, len(bills))
	for _, b := range bills {
		views = append(views, enrich(b, icons))
	}
	return views, nil
}

// CreateBill validates and stores a new bill owned by userID.
func (s *BillService) CreateBill(ctx context.Context, userID string, b core.Bill, origin string) (core.BillView, error) {
	if userID == "" {
		return core.BillView{}, core.ErrUnauthorized
	}
	b.ID = ""
	b.UserID = userID
	b.CloneKey = nil
	b = normalizeBill(b)
	if err := b.Validate(); err != nil {
		return core.BillView{}, err
	}

	created, err := s.store.CreateBill(ctx, b)
	if err != nil {
		return core.BillView{}, fmt.Errorf("save bill: %w", err)
	}

	s.activity.Record(ctx, userID, core.ActionCreateBill, "Created bill for "+created.DisplayName(), origin)
	return enrich(created, s.loadIcons(ctx, userID)), nil
}

// UpdateBill applies a partial update to a bill owned by userID.
func (s *BillService) UpdateBill(ctx context.Context, userID, id string, patch core.BillPatch, origin string) (core.BillView, error) {
	if userID == "" {
		return core.BillView{}, core.ErrUnauthorized
	}
	existing, err := s.store.GetBill(ctx, userID, id)
	if err != nil {
		return core.BillView{}, err
	}

	updated := normalizeBill(patch.Apply(existing))
	if err := updated.Validate(); err != nil {
		return core.BillView{}, err
	}
	// A bill the user re-labels or moves is no longer the reconciler's copy.
	if core.StringValue(updated.Payee) != core.StringValue(existing.Payee) ||
		core.StringValue(updated.Payer) != core.StringValue(existing.Payer) ||
		updated.Date.Period() != existing.Date.Period() {
		updated.CloneKey = nil
	}

	saved, err := s.store.UpdateBill(ctx, updated)
	if err != nil {
		return core.BillView{}, fmt.Errorf("update bill %s: %w", id, err)
	}

	s.activity.Record(ctx, userID, core.ActionUpdateBill, "Updated bill for "+saved.DisplayName(), origin)
	return enrich(saved, s.loadIcons(ctx, userID)), nil
}

// DeleteBill removes one bill owned by userID.
func (s *BillService) DeleteBill(ctx context.Context, userID, id, origin string) error {
	if userID == "" {
		return core.ErrUnauthorized
	}
	existing, err := s.store.GetBill(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteBill(ctx, userID, id); err != nil {
		return fmt.Errorf("delete bill %s: %w", id, err)
	}

	s.activity.Record(ctx, userID, core.ActionDeleteBill, "Deleted bill for "+existing.DisplayName(), origin)
	return nil
}

// DeleteMonth removes every bill of the user in the period.
func (s *BillService) DeleteMonth(ctx context.Context, userID string, p core.Period, origin string) (int, error) {
	if userID == "" {
		return 0, core.ErrUnauthorized
	}
	n, err := s.store.DeleteBillsInRange(ctx, userID, p.Start(), p.End())
	if err != nil {
		return 0, fmt.Errorf("delete bills for %s: %w", p, err)
	}

	s.activity.Record(ctx, userID, core.ActionBulkDeleteBills,
		fmt.Sprintf("Deleted %d bills for %d-%d", n, p.Year, int(p.Month)), origin)
	return n, nil
}

func (s *BillService) loadIcons(ctx context.Context, userID string) map[string]string {
	if s.icons == nil {
		return nil
	}
	icons, err := s.icons.Icons(ctx, userID)
	if err != nil {
		slog.WarnContext(ctx, "Failed to load merchant icons", "user_id", userID, "error", err)
		return nil
	}
	return icons
}

func enrich(b core.Bill, icons map[string]string) core.BillView {
	v := core.BillView{Bill: b}
	if icon, ok := icons[core.StringValue(b.Payee)]; ok && b.Payee != nil {
		v.PayeeIcon = &icon
	}
	if icon, ok := icons[core.StringValue(b.Payer)]; ok && b.Payer != nil {
		v.PayerIcon = &icon
	}
	return v
}

// normalizeBill stores blank names as null, rounds amounts to cents and
// drops the paid date of unpaid bills.
func normalizeBill(b core.Bill) core.Bill {
	b.Payee = core.NullIfEmpty(b.Payee)
	b.Payer = core.NullIfEmpty(b.Payer)
	b.Notes = core.NullIfEmpty(b.Notes)
	for _, amount := range []**decimal.Decimal{&b.PayAmount, &b.ReceiveAmount, &b.ActualReceiveAmount} {
		if *amount != nil {
			rounded := (*amount).Round(2)
			*amount = &rounded
		}
	}
	if !b.IsPaid {
		b.PaidDate = nil
	}
	return b
}
