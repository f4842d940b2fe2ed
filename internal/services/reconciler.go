package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"payrecord/internal/core"
	"payrecord/internal/log"
)

// ErrReconciliationFailed wraps any store failure during a clone run.
var ErrReconciliationFailed = errors.New("failed to clone bills")

// ReconcileStore is the slice of the bill store the reconciler needs.
type ReconcileStore interface {
	ListBillsByDateRange(ctx context.Context, userID string, start, end core.Date) ([]core.Bill, error)
	ApplyReconciliation(ctx context.Context, userID string, deleteIDs []string, creates []core.Bill) (deleted, created int, err error)
}

// ReconcileObserver receives the outcome of every run.
type ReconcileObserver interface {
	ObserveReconcile(outcome string, cloned, deleted, skipped int, d time.Duration)
}

// ReconcileResult is returned to the caller of a clone run.
type ReconcileResult struct {
	ClonedCount  int `json:"clonedCount"`
	DeletedCount int `json:"deletedCount"`
	SkippedCount int `json:"skippedCount"`
}

// Reconcile outcomes reported to the observer.
const (
	OutcomeApplied = "applied"
	OutcomeNoop    = "noop"
	OutcomeInvalid = "invalid"
	OutcomeFailed  = "failed"
)

// Reconciler copies a month's recurring bills into the following month
// without overwriting bills the user has already acted on.
type Reconciler struct {
	store    ReconcileStore
	activity ActivityRecorder
	observer ReconcileObserver
	locks    *keyedMutex
}

// NewReconciler creates a reconciler. activity and observer may be nil.
func NewReconciler(store ReconcileStore, activity ActivityRecorder, observer ReconcileObserver) *Reconciler {
	return &Reconciler{
		store:    store,
		activity: orNoop(activity),
		observer: observer,
		locks:    newKeyedMutex(),
	}
}

// plan is the diff computed before anything is written.
type plan struct {
	deleteIDs []string
	creates   []core.Bill
	skipped   int
}

// Reconcile clones recurring bills of (sourceYear, sourceMonth) into the next month.
func (r *Reconciler) Reconcile(ctx context.Context, userID string, sourceYear, sourceMonth int, origin string) (ReconcileResult, error) {
	start := time.Now()

	if userID == "" {
		r.observe(OutcomeInvalid, ReconcileResult{}, start)
		return ReconcileResult{}, core.ErrUnauthorized
	}
	source, err := core.NewPeriod(sourceYear, sourceMonth)
	if err != nil {
		r.observe(OutcomeInvalid, ReconcileResult{}, start)
		return ReconcileResult{}, err
	}
	target := source.Next()
	if target.Year > core.MaxYear {
		r.observe(OutcomeInvalid, ReconcileResult{}, start)
		return ReconcileResult{}, fmt.Errorf("%w: cannot clone past %d-12", core.ErrInvalidInput, core.MaxYear)
	}

	unlock := r.locks.Lock(userID + "|" + target.String())
	defer unlock()

	sourceBills, err := r.store.ListBillsByDateRange(ctx, userID, source.Start(), source.End())
	if err != nil {
		return ReconcileResult{}, r.fail(ctx, userID, source, "load source bills", err, start)
	}
	candidates, err := r.store.ListBillsByDateRange(ctx, userID, target.Start(), target.End())
	if err != nil {
		return ReconcileResult{}, r.fail(ctx, userID, source, "load target bills", err, start)
	}

	p := buildPlan(userID, target, sourceBills, candidates)
	result := ReconcileResult{SkippedCount: p.skipped}

	if len(p.deleteIDs) == 0 && len(p.creates) == 0 {
		slog.DebugContext(ctx, "Nothing to reconcile",
			"user_id", userID,
			"source_period", source.String(),
			"skipped", p.skipped)
		r.observe(OutcomeNoop, result, start)
		return result, nil
	}

	deleted, created, err := r.store.ApplyReconciliation(ctx, userID, p.deleteIDs, p.creates)
	if err != nil {
		return ReconcileResult{}, r.fail(ctx, userID, source, "apply", err, start)
	}
	result.ClonedCount = created
	result.DeletedCount = deleted

	log.NewStructuredLogger(log.FromContext(ctx)).
		LogReconciled(ctx, userID, source.String(), target.String(), created, deleted)

	r.activity.Record(ctx, userID, core.ActionCloneBills,
		fmt.Sprintf("Cloned %d bills from %s to %s (deleted %d, skipped %d)",
			created, source, target, deleted, p.skipped),
		origin)

	r.observe(OutcomeApplied, result, start)
	return result, nil
}

// buildPlan decides, for each source bill, whether to create, refresh or skip.
func buildPlan(userID string, target core.Period, sourceBills, candidates []core.Bill) plan {
	var p plan
	queuedDeletes := make(map[string]bool)
	queuedKeys := make(map[string]bool)

	for _, src := range sourceBills {
		if !src.IsRecurring {
			continue
		}
		if src.RecurringInterval != nil && *src.RecurringInterval > 1 {
			continue
		}

		// All same-named bills are replaced together or not at all.
		matches := findMatches(src, candidates)
		if anyEdited(matches) {
			p.skipped++
			continue
		}
		for _, m := range matches {
			if !queuedDeletes[m.ID] {
				queuedDeletes[m.ID] = true
				p.deleteIDs = append(p.deleteIDs, m.ID)
			}
		}

		clone := cloneInto(userID, target, src)
		if queuedKeys[*clone.CloneKey] {
			continue
		}
		queuedKeys[*clone.CloneKey] = true
		p.creates = append(p.creates, clone)
	}
	return p
}

// findMatches returns the candidates with the same payee and payer.
// Nil and empty names compare equal; nothing else is normalized.
func findMatches(src core.Bill, candidates []core.Bill) []core.Bill {
	payee, payer := core.StringValue(src.Payee), core.StringValue(src.Payer)
	var out []core.Bill
	for _, c := range candidates {
		if core.StringValue(c.Payee) == payee && core.StringValue(c.Payer) == payer {
			out = append(out, c)
		}
	}
	return out
}

func anyEdited(bills []core.Bill) bool {
	for _, b := range bills {
		if b.IsEdited() {
			return true
		}
	}
	return false
}

// cloneInto builds the next-month copy of src with settlement state reset.
func cloneInto(userID string, target core.Period, src core.Bill) core.Bill {
	payee := core.NullIfEmpty(src.Payee)
	payer := core.NullIfEmpty(src.Payer)
	key := core.CloneKey(target, payee, payer)
	return core.Bill{
		UserID:        userID,
		Date:          src.Date.AddMonthClamped(),
		Payee:         payee,
		Payer:         payer,
		PayAmount:     src.PayAmount,
		ReceiveAmount: src.ReceiveAmount,
		Notes:         src.Notes,
		IsRecurring:   src.IsRecurring,
		CloneKey:      &key,
	}
}

func (r *Reconciler) fail(ctx context.Context, userID string, source core.Period, stage string, err error, start time.Time) error {
	log.NewStructuredLogger(log.FromContext(ctx)).LogError(ctx, "Bill reconciliation failed", err,
		log.ComponentReconcile, log.OpReconcile,
		log.NewFields().WithUser(userID).WithReconcile(source.String(), source.Next().String(), 0, 0))
	r.observe(OutcomeFailed, ReconcileResult{}, start)
	return fmt.Errorf("%w: %s: %w", ErrReconciliationFailed, stage, err)
}

func (r *Reconciler) observe(outcome string, res ReconcileResult, start time.Time) {
	if r.observer != nil {
		r.observer.ObserveReconcile(outcome, res.ClonedCount, res.DeletedCount, res.SkippedCount, time.Since(start))
	}
}
