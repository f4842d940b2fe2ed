package http

import (
	"errors"
	"net/http"

	"payrecord/internal/core"
	"payrecord/internal/log"
	"payrecord/internal/telegram"
)

type telegramTestRequest struct {
	Token  string `json:"token"`
	ChatID string `json:"chatId"`
}

func (s *Server) handleTelegramTest(w http.ResponseWriter, r *http.Request) {
	var req telegramTestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err, log.OpNotify)
		return
	}

	err := s.deps.Reminders.SendTest(r.Context(), sanitizeInput(req.Token), sanitizeInput(req.ChatID))
	if err == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
		return
	}
	if errors.Is(err, core.ErrInvalidInput) {
		BadRequestError("Token and Chat ID are required").Write(w)
		return
	}

	log.FromContext(r.Context()).WithComponent(log.ComponentTelegram).WarnContext(r.Context(), "Telegram test failed",
		log.FieldUserID, caller(r),
		log.FieldError, err.Error())

	var apiErr *telegram.APIError
	if errors.As(err, &apiErr) {
		InternalServerError(apiErr.Error()).Write(w)
		return
	}
	InternalServerError("Failed to send Telegram message").Write(w)
}
