package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"payrecord/internal/calendar"
	"payrecord/internal/core"
	"payrecord/internal/log"
)

// CalendarStore is what the public calendar feed reads.
type CalendarStore interface {
	GetUserByID(ctx context.Context, id string) (core.User, error)
	ListBillsFrom(ctx context.Context, userID string, start core.Date) ([]core.Bill, error)
}

// handleCalendar serves the user's bills from the start of the current month
// as an iCalendar feed. Calendar clients cannot send bearer tokens, so the
// user id in the path is the only selector.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "userId")

	user, err := s.deps.Calendar.GetUserByID(ctx, userID)
	if err != nil {
		writeServiceError(w, r, err, log.OpRead)
		return
	}

	now := s.now().In(s.opts.Location)
	start := core.DateOf(now).Period().Start()
	bills, err := s.deps.Calendar.ListBillsFrom(ctx, user.ID, start)
	if err != nil {
		writeServiceError(w, r, err, log.OpList)
		return
	}

	doc := calendar.Build(calendar.Options{
		Name:     s.opts.CalendarName,
		Timezone: s.opts.CalendarTimezone,
		Now:      now,
	}, bills)

	log.FromContext(ctx).WithComponent(log.ComponentCalendar).DebugContext(ctx, "Calendar feed served",
		log.FieldUserID, user.ID,
		"events", len(bills))

	NewResponse().
		Header("Content-Disposition", `attachment; filename="bills.ics"`).
		Body("text/calendar; charset=utf-8", []byte(doc)).
		Write(w)
}
