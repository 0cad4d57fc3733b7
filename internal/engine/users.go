package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"reelboard/internal/domain"
	"reelboard/internal/engine/auth"
	"reelboard/internal/events"
	"reelboard/internal/repo"
)

type UserCreateOptions struct {
	Name     string
	Email    string
	Role     string
	Password string
	Actor    string
}

func (e Engine) CreateUser(ctx context.Context, opts UserCreateOptions) (domain.User, error) {
	u := domain.User{
		Name:      strings.TrimSpace(opts.Name),
		Email:     strings.ToLower(strings.TrimSpace(opts.Email)),
		Role:      strings.TrimSpace(opts.Role),
		Active:    true,
		CreatedAt: e.timestamp(),
	}
	if u.Role == "" {
		u.Role = domain.RoleViewer
	}
	switch {
	case u.Name == "":
		return domain.User{}, ValidationError{Field: "name", Reason: "is required"}
	case u.Email == "" || !strings.Contains(u.Email, "@"):
		return domain.User{}, ValidationError{Field: "email", Reason: "must be an email address"}
	case !auth.ValidRole(u.Role):
		return domain.User{}, ValidationError{Field: "role", Reason: "unknown role " + u.Role}
	}
	hash, err := auth.HashPassword(opts.Password)
	if err != nil {
		return domain.User{}, ValidationError{Field: "password", Reason: err.Error()}
	}
	u.PasswordHash = hash

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	id, err := e.Repo.InsertUser(ctx, tx, u)
	if err != nil {
		return domain.User{}, err
	}
	u.ID = id
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type:       events.UserCreated,
		EntityKind: events.KindUser,
		EntityID:   events.ID(id),
		Actor:      opts.Actor,
		Payload:    events.EventPayload{"email": u.Email, "role": u.Role},
	}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	e.Log.Info("user created", zap.Int64("user_id", id), zap.String("role", u.Role))
	return u, nil
}

func (e Engine) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := e.Repo.ListUsers(ctx)
	if users == nil && err == nil {
		users = []domain.User{}
	}
	return users, err
}

// Authenticate checks an email and password pair.
func (e Engine) Authenticate(ctx context.Context, email, password string) (domain.User, error) {
	u, err := e.Repo.GetUserByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, auth.ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, err
	}
	if err := auth.CheckPassword(u, password); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// DefaultUser is seeded into an empty workspace.
type DefaultUser struct {
	Name, Email, Role, Password string
}

var DefaultUsers = []DefaultUser{
	{Name: "管理者", Email: "admin@example.com", Role: domain.RoleAdmin, Password: "adminpass"},
	{Name: "編集者", Email: "editor@example.com", Role: domain.RoleEditor, Password: "editorpass"},
}

// EnsureDefaultUsers seeds users when none exist and returns how many were added.
func (e Engine) EnsureDefaultUsers(ctx context.Context, users []DefaultUser) (int, error) {
	n, err := e.Repo.CountUsers(ctx)
	if err != nil || n > 0 {
		return 0, err
	}
	for _, u := range users {
		if _, err := e.CreateUser(ctx, UserCreateOptions{Name: u.Name, Email: u.Email, Role: u.Role, Password: u.Password, Actor: "system"}); err != nil {
			return 0, err
		}
	}
	if len(users) > 0 {
		e.Log.Warn("seeded default users; change their passwords", zap.Int("count", len(users)))
	}
	return len(users), nil
}

// CreatedAPIKey carries the plaintext key, which is only returned once.
type CreatedAPIKey struct {
	domain.APIKey
	Key string `json:"key"`
}

func (e Engine) CreateAPIKey(ctx context.Context, userID int64, name, actor string) (CreatedAPIKey, error) {
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return CreatedAPIKey{}, ValidationError{Field: "user_id", Reason: "unknown user"}
		}
		return CreatedAPIKey{}, err
	}
	plain := "rb_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	key := domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      strings.TrimSpace(name),
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: e.timestamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return CreatedAPIKey{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return CreatedAPIKey{}, err
	}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type:       events.APIKeyCreated,
		EntityKind: events.KindAPIKey,
		EntityID:   key.ID,
		Actor:      actor,
		Payload:    events.EventPayload{"user_id": userID, "name": key.Name},
	}); err != nil {
		return CreatedAPIKey{}, err
	}
	if err := tx.Commit(); err != nil {
		return CreatedAPIKey{}, err
	}
	return CreatedAPIKey{APIKey: key, Key: plain}, nil
}

// ListAPIKeys returns key metadata, newest first. userID 0 lists every key.
func (e Engine) ListAPIKeys(ctx context.Context, userID int64) ([]domain.APIKey, error) {
	keys, err := e.Repo.ListAPIKeys(ctx, userID)
	if keys == nil {
		keys = []domain.APIKey{}
	}
	return keys, err
}

func (e Engine) RevokeAPIKey(ctx context.Context, id, actor string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteAPIKey(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type:       events.APIKeyRevoked,
		EntityKind: events.KindAPIKey,
		EntityID:   id,
		Actor:      actor,
	}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.Log.Info("api key revoked", zap.String("key_id", id))
	return nil
}

// ResolveAPIKey returns the active user owning a plaintext key.
func (e Engine) ResolveAPIKey(ctx context.Context, plain string) (domain.User, error) {
	key, err := e.Repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(plain))
	if err != nil {
		return domain.User{}, err
	}
	u, err := e.Repo.GetUser(ctx, key.UserID)
	if err != nil {
		return domain.User{}, err
	}
	if !u.Active {
		return domain.User{}, auth.ErrInvalidCredentials
	}
	return u, nil
}
