package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"payrecord/internal/core"
	"payrecord/internal/log"
)

func (s *Server) handleListBills(w http.ResponseWriter, r *http.Request) {
	params, err := ParseMonthParams(r.URL.Query(), s.now().In(s.opts.Location))
	if err != nil {
		writeServiceError(w, r, err, log.OpList)
		return
	}
	period, err := params.Period()
	if err != nil {
		writeServiceError(w, r, err, log.OpList)
		return
	}

	bills, err := s.deps.Bills.ListBills(r.Context(), caller(r), period)
	if err != nil {
		writeServiceError(w, r, err, log.OpList)
		return
	}
	writeJSON(w, http.StatusOK, bills)
}

func (s *Server) handleCreateBill(w http.ResponseWriter, r *http.Request) {
	var bill core.Bill
	if err := decodeJSON(w, r, &bill); err != nil {
		writeServiceError(w, r, err, log.OpCreate)
		return
	}

	created, err := s.deps.Bills.CreateBill(r.Context(), caller(r), bill, s.origin(r))
	if err != nil {
		writeServiceError(w, r, err, log.OpCreate)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateBill(w http.ResponseWriter, r *http.Request) {
	var patch core.BillPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeServiceError(w, r, err, log.OpUpdate)
		return
	}

	updated, err := s.deps.Bills.UpdateBill(r.Context(), caller(r), chi.URLParam(r, "id"), patch, s.origin(r))
	if err != nil {
		writeServiceError(w, r, err, log.OpUpdate)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteBill(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Bills.DeleteBill(r.Context(), caller(r), chi.URLParam(r, "id"), s.origin(r)); err != nil {
		writeServiceError(w, r, err, log.OpDelete)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleDeleteMonth(w http.ResponseWriter, r *http.Request) {
	params, err := ParseRequiredMonthParams(r.URL.Query())
	if err != nil {
		writeServiceError(w, r, err, log.OpDelete)
		return
	}
	period, err := params.Period()
	if err != nil {
		writeServiceError(w, r, err, log.OpDelete)
		return
	}

	n, err := s.deps.Bills.DeleteMonth(r.Context(), caller(r), period, s.origin(r))
	if err != nil {
		writeServiceError(w, r, err, log.OpDelete)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deletedCount": n})
}

func (s *Server) handleCloneBills(w http.ResponseWriter, r *http.Request) {
	var req CloneRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err, log.OpReconcile)
		return
	}
	year, month, err := req.Source()
	if err != nil {
		writeServiceError(w, r, err, log.OpReconcile)
		return
	}

	res, err := s.deps.Reconciler.Reconcile(r.Context(), caller(r), year, month, s.origin(r))
	if err != nil {
		writeServiceError(w, r, err, log.OpReconcile)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
