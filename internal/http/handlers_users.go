package http

import (
	"errors"
	"net/http"
	"time"

	"payrecord/internal/core"
	"payrecord/internal/log"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userRef struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type userSummary struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
}

type profileView struct {
	ID             string  `json:"id"`
	Username       string  `json:"username"`
	Nickname       *string `json:"nickname"`
	TelegramToken  *string `json:"telegramToken"`
	TelegramChatID *string `json:"telegramChatId"`
}

type profileRequest struct {
	Nickname       core.Optional[string] `json:"nickname"`
	Password       string                `json:"password"`
	TelegramToken  core.Optional[string] `json:"telegramToken"`
	TelegramChatID core.Optional[string] `json:"telegramChatId"`
}

func newProfileView(u core.User) profileView {
	return profileView{
		ID:             u.ID,
		Username:       u.Username,
		Nickname:       u.Nickname,
		TelegramToken:  u.TelegramToken,
		TelegramChatID: u.TelegramChatID,
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err, log.OpLogin)
		return
	}

	session, err := s.deps.Users.Login(r.Context(), sanitizeInput(req.Username), req.Password, s.origin(r))
	if err != nil {
		if errors.Is(err, core.ErrInvalidCredentials) {
			log.FromContext(r.Context()).WithComponent(log.ComponentAuth).InfoContext(r.Context(), "Login rejected",
				log.FieldClientIP, s.origin(r))
		}
		writeServiceError(w, r, err, log.OpLogin)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token": session.Token,
		"user":  userRef{ID: session.User.ID, Username: session.User.Username},
	})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.deps.Users.ListUsers(r.Context())
	if err != nil {
		writeServiceError(w, r, err, log.OpList)
		return
	}
	out := make([]userSummary, 0, len(users))
	for _, u := range users {
		out = append(out, userSummary{ID: u.ID, Username: u.Username, CreatedAt: u.CreatedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err, log.OpCreate)
		return
	}

	user, err := s.deps.Users.CreateUser(r.Context(), sanitizeInput(req.Username), req.Password)
	if errors.Is(err, core.ErrConflict) {
		ErrorResponse(http.StatusConflict, "User already exists").Write(w)
		return
	}
	if err != nil {
		writeServiceError(w, r, err, log.OpCreate)
		return
	}
	writeJSON(w, http.StatusCreated, userSummary{ID: user.ID, Username: user.Username, CreatedAt: user.CreatedAt})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	user, err := s.deps.Users.Profile(r.Context(), caller(r))
	if err != nil {
		writeServiceError(w, r, err, log.OpRead)
		return
	}
	writeJSON(w, http.StatusOK, newProfileView(user))
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err, log.OpUpdate)
		return
	}

	user, err := s.deps.Users.UpdateProfile(r.Context(), caller(r), core.ProfileUpdate{
		Nickname:       req.Nickname,
		Password:       req.Password,
		TelegramToken:  req.TelegramToken,
		TelegramChatID: req.TelegramChatID,
	}, s.origin(r))
	if err != nil {
		writeServiceError(w, r, err, log.OpUpdate)
		return
	}
	writeJSON(w, http.StatusOK, newProfileView(user))
}

func (s *Server) handleListActivity(w http.ResponseWriter, r *http.Request) {
	entries, err := s.deps.Activity.Recent(r.Context(), caller(r))
	if err != nil {
		writeServiceError(w, r, err, log.OpList)
		return
	}
	if entries == nil {
		entries = []core.ActivityEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
