package services

import (
	"payrecord/internal/core"
)

// DueStatus classifies an unpaid bill relative to today.
type DueStatus int

const (
	NotDue DueStatus = iota
	DueSoon
	Overdue
)

// Icon is the marker shown in reminder digests.
func (s DueStatus) Icon() string {
	switch s {
	case Overdue:
		return "🔴"
	case DueSoon:
		return "🟡"
	default:
		return ""
	}
}

func (s DueStatus) String() string {
	switch s {
	case Overdue:
		return "overdue"
	case DueSoon:
		return "due_soon"
	default:
		return "not_due"
	}
}

// DuenessChecker decides whether a bill belongs in today's reminder.
type DuenessChecker interface {
	Status(b core.Bill, today core.Date) DueStatus
}

// LookaheadChecker flags unpaid bills dated before today as overdue and
// those up to Days ahead (inclusive) as due soon.
type LookaheadChecker struct {
	Days int
}

func (c LookaheadChecker) Status(b core.Bill, today core.Date) DueStatus {
	if b.IsPaid {
		return NotDue
	}
	if b.Date.Before(today.Time) {
		return Overdue
	}
	if !b.Date.After(today.AddDate(0, 0, c.Days)) {
		return DueSoon
	}
	return NotDue
}

// Horizon is the last date a bill can have and still be reminded about.
func (c LookaheadChecker) Horizon(today core.Date) core.Date {
	return core.Date{Time: today.AddDate(0, 0, c.Days)}
}
