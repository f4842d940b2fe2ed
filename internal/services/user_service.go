package services

import (
	"context"
	"fmt"
	"strings"

	"payrecord/internal/auth"
	"payrecord/internal/core"
)

// UserStore extends the authenticator's storage with listing.
type UserStore interface {
	auth.UserStorage
	ListUsers(ctx context.Context) ([]core.User, error)
}

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Generate(user core.User) (string, error)
}

// Session is returned by a successful login.
type Session struct {
	Token string
	User  core.User
}

// UserService handles login, user management and profile edits.
type UserService struct {
	store         UserStore
	authenticator *auth.PasswordAuthenticator
	tokens        TokenIssuer
	activity      ActivityRecorder
}

func NewUserService(store UserStore, authenticator *auth.PasswordAuthenticator, tokens TokenIssuer, activity ActivityRecorder) *UserService {
	return &UserService{
		store:         store,
		authenticator: authenticator,
		tokens:        tokens,
		activity:      orNoop(activity),
	}
}

// Login verifies credentials and issues a session token.
func (s *UserService) Login(ctx context.Context, username, password, origin string) (Session, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return Session{}, fmt.Errorf("%w: username and password required", core.ErrInvalidInput)
	}
	user, err := s.authenticator.Authenticate(ctx, strings.TrimSpace(username), password)
	if err != nil {
		return Session{}, err
	}
	token, err := s.tokens.Generate(user)
	if err != nil {
		return Session{}, err
	}

	s.activity.Record(ctx, user.ID, core.ActionLogin, "User logged in", origin)
	return Session{Token: token, User: user}, nil
}

// ListUsers returns every account.
func (s *UserService) ListUsers(ctx context.Context) ([]core.User, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// CreateUser registers a new account.
func (s *UserService) CreateUser(ctx context.Context, username, password string) (core.User, error) {
	return s.authenticator.Register(ctx, username, password)
}

// Profile returns the caller's account.
func (s *UserService) Profile(ctx context.Context, userID string) (core.User, error) {
	if userID == "" {
		return core.User{}, core.ErrUnauthorized
	}
	return s.store.GetUserByID(ctx, userID)
}

// UpdateProfile applies the set fields of upd and records which ones changed.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, upd core.ProfileUpdate, origin string) (core.User, error) {
	if userID == "" {
		return core.User{}, core.ErrUnauthorized
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return core.User{}, err
	}

	var actions []string
	if upd.Nickname.Set && core.StringValue(upd.Nickname.Value) != core.StringValue(user.Nickname) {
		user.Nickname = core.NullIfEmpty(upd.Nickname.Value)
		actions = append(actions, "UPDATE_NICKNAME")
	}
	if strings.TrimSpace(upd.Password) != "" {
		hashed, err := s.authenticator.HashPassword(upd.Password)
		if err != nil {
			return core.User{}, err
		}
		user.PasswordHash = hashed
		actions = append(actions, "UPDATE_PASSWORD")
	}
	if upd.TelegramToken.Set {
		token := core.NullIfEmpty(upd.TelegramToken.Value)
		if token != nil && *token != core.StringValue(user.TelegramToken) {
			actions = append(actions, "UPDATE_TELEGRAM")
		}
		user.TelegramToken = token
	}
	if upd.TelegramChatID.Set {
		user.TelegramChatID = core.NullIfEmpty(upd.TelegramChatID.Value)
	}

	if err := s.store.UpdateUser(ctx, user); err != nil {
		return core.User{}, fmt.Errorf("update profile: %w", err)
	}

	details := "Updated profile details"
	if len(actions) > 0 {
		details = "Updated: " + strings.Join(actions, ", ")
	}
	s.activity.Record(ctx, userID, core.ActionUpdateProfile, details, origin)
	return user, nil
}
