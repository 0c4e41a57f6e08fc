package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"missiondesk/internal/domain"
	"missiondesk/internal/engine/auth"
	"missiondesk/internal/events"
	"missiondesk/internal/lifecycle"
	"missiondesk/internal/repo"
)

type UserCreateOptions struct {
	Name       string
	Password   string
	Role       string
	Department string
	Phone      string
	ActorID    string
}

func (e Engine) CreateUser(ctx context.Context, opts UserCreateOptions) (domain.User, error) {
	var missing []string
	if strings.TrimSpace(opts.Name) == "" {
		missing = append(missing, "name")
	}
	if opts.Password == "" {
		missing = append(missing, "password")
	}
	if strings.TrimSpace(opts.Role) == "" {
		missing = append(missing, "role")
	}
	if len(missing) > 0 {
		return domain.User{}, lifecycle.ValidationError{Code: lifecycle.CodeMissingFields, Fields: missing, Message: "missing user fields"}
	}
	role, err := domain.ParseRole(opts.Role)
	if err != nil {
		return domain.User{}, lifecycle.ValidationError{Code: lifecycle.CodeInvalidField, Fields: []string{"role"}, Message: err.Error()}
	}
	hash, err := auth.HashPassword(opts.Password)
	if err != nil {
		return domain.User{}, err
	}
	u := domain.User{
		ID:           newID("U"),
		Name:         strings.TrimSpace(opts.Name),
		Role:         role,
		Department:   strings.TrimSpace(opts.Department),
		Phone:        strings.TrimSpace(opts.Phone),
		PasswordHash: hash,
		CreatedAt:    e.now().UTC().Format(time.RFC3339Nano),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	if err := e.requireAdmin(ctx, tx, opts.ActorID); err != nil {
		return domain.User{}, err
	}
	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return domain.User{}, lifecycle.ValidationError{Code: lifecycle.CodeDuplicateUser, Fields: []string{"name"}, Message: "user name already taken"}
		}
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	if err := e.writer().Append(ctx, tx, events.UserCreated, events.EntityUser, u.ID, actorOr(opts.ActorID, u.ID), events.EventPayload{
		"name": u.Name,
		"role": u.Role.Name(),
	}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	e.log().Info("user created", "user", u.ID, "role", u.Role.Name())
	return u, nil
}

// UserUpdateOptions carries the fields to change; nil fields are left alone.
type UserUpdateOptions struct {
	Name       *string
	Password   *string
	Role       *string
	Department *string
	Phone      *string
	ActorID    string
}

// UpdateUser edits a user. Administrators may edit anyone; other actors may edit
// only themselves and never their role. An empty ActorID is a trusted caller.
func (e Engine) UpdateUser(ctx context.Context, id string, opts UserUpdateOptions) (domain.User, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()

	current, err := e.Repo.GetUserTx(ctx, tx, id)
	if err != nil {
		return domain.User{}, userNotFound(id, err)
	}
	if opts.ActorID != "" {
		actor, err := e.Repo.GetUserTx(ctx, tx, opts.ActorID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.User{}, lifecycle.NotAuthorizedError{Code: lifecycle.CodeNotSelf, Reason: "unknown actor"}
			}
			return domain.User{}, err
		}
		if !actor.IsAdmin() {
			if actor.ID != id {
				return domain.User{}, lifecycle.NotAuthorizedError{Code: lifecycle.CodeNotSelf, Reason: "users may only edit themselves"}
			}
			if opts.Role != nil {
				if r, err := domain.ParseRole(*opts.Role); err != nil || r != current.Role {
					return domain.User{}, lifecycle.NotAuthorizedError{Code: lifecycle.CodeNotAdmin, Reason: "only administrators change roles"}
				}
			}
		}
	}

	var patch repo.UserPatch
	var changed []string
	if opts.Name != nil {
		name := strings.TrimSpace(*opts.Name)
		if name == "" {
			return domain.User{}, lifecycle.ValidationError{Code: lifecycle.CodeMissingFields, Fields: []string{"name"}, Message: "missing user fields"}
		}
		if name != current.Name {
			patch.Name = &name
			current.Name = name
			changed = append(changed, "name")
		}
	}
	if opts.Role != nil {
		role, err := domain.ParseRole(*opts.Role)
		if err != nil {
			return domain.User{}, lifecycle.ValidationError{Code: lifecycle.CodeInvalidField, Fields: []string{"role"}, Message: err.Error()}
		}
		if role != current.Role {
			patch.Role = &role
			current.Role = role
			changed = append(changed, "role")
		}
	}
	if opts.Department != nil {
		dept := strings.TrimSpace(*opts.Department)
		patch.Department = &dept
		current.Department = dept
		changed = append(changed, "department")
	}
	if opts.Phone != nil {
		phone := strings.TrimSpace(*opts.Phone)
		patch.Phone = &phone
		current.Phone = phone
		changed = append(changed, "phone")
	}
	// an empty password on edit keeps the existing one
	if opts.Password != nil && *opts.Password != "" {
		hash, err := auth.HashPassword(*opts.Password)
		if err != nil {
			return domain.User{}, err
		}
		patch.PasswordHash = &hash
		current.PasswordHash = hash
		changed = append(changed, "password")
	}
	if err := e.Repo.UpdateUser(ctx, tx, id, patch); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return domain.User{}, lifecycle.ValidationError{Code: lifecycle.CodeDuplicateUser, Fields: []string{"name"}, Message: "user name already taken"}
		}
		return domain.User{}, userNotFound(id, err)
	}
	if err := e.writer().Append(ctx, tx, events.UserUpdated, events.EntityUser, id, actorOr(opts.ActorID, id), events.EventPayload{"fields": changed}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return current, nil
}

// DeleteUser purges the user's assigned missions and removes the user in one
// transaction. It returns the purged mission ids.
func (e Engine) DeleteUser(ctx context.Context, id, actorID string) ([]string, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if err := e.requireAdmin(ctx, tx, actorID); err != nil {
		return nil, err
	}
	if _, err := e.Repo.GetUserTx(ctx, tx, id); err != nil {
		return nil, userNotFound(id, err)
	}
	purged, err := e.purgeTx(ctx, tx, id, actorID)
	if err != nil {
		return nil, err
	}
	if err := e.dropDelegationsTx(ctx, tx, id, actorID); err != nil {
		return nil, err
	}
	if err := e.Repo.DeleteUser(ctx, tx, id); err != nil {
		return nil, userNotFound(id, err)
	}
	if err := e.writer().Append(ctx, tx, events.UserDeleted, events.EntityUser, id, actorID, events.EventPayload{"purged_missions": len(purged)}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	e.log().Info("user deleted", "user", id, "purged", len(purged))
	return purged, nil
}

// dropDelegationsTx clears every delegation cycle the deleted user takes part
// in, so no mission is left pointing at a missing delegator or target. The
// delegation count is kept, which leaves those missions in append mode.
func (e Engine) dropDelegationsTx(ctx context.Context, tx *sql.Tx, userID, actorID string) error {
	missions, err := e.Repo.MissionsInDelegationWith(ctx, tx, userID)
	if err != nil {
		return fmt.Errorf("delegations of deleted user: %w", err)
	}
	for _, m := range missions {
		var status string
		if m.DelegationStatus != nil {
			status = string(*m.DelegationStatus)
		}
		if err := e.Repo.UpdateMission(ctx, tx, m.ID, repo.MissionPatch{Delegation: &repo.DelegationFields{}}); err != nil {
			return fmt.Errorf("clear delegation: %w", err)
		}
		if err := e.writer().Append(ctx, tx, events.DelegationCleared, events.EntityMission, m.ID, actorID, events.EventPayload{
			"target":          derefString(m.DelegationTarget),
			"previous_status": status,
			"was_pending":     m.HasDelegationStatus(domain.DelegationPending),
			"deleted_user":    userID,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (e Engine) GetUser(ctx context.Context, id string) (domain.User, error) {
	u, err := e.Repo.GetUser(ctx, id)
	if err != nil {
		return domain.User{}, userNotFound(id, err)
	}
	return u, nil
}

func (e Engine) ListUsers(ctx context.Context) ([]domain.User, error) {
	return e.Repo.ListUsers(ctx)
}

// Login checks a name/password pair.
func (e Engine) Login(ctx context.Context, name, password string) (domain.User, error) {
	u, err := e.Repo.GetUserByName(ctx, strings.TrimSpace(name))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, auth.CredentialsError{Code: auth.CodeUserNotFound}
		}
		return domain.User{}, err
	}
	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// EnsureAdmin seeds an administrator when none exists. It reports whether one
// was created.
func (e Engine) EnsureAdmin(ctx context.Context, name, password string) (bool, error) {
	ok, err := e.Repo.HasAdmin(ctx)
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}
	if name == "" || password == "" {
		return false, errors.New("no administrator exists and bootstrap credentials are empty")
	}
	if _, err := e.CreateUser(ctx, UserCreateOptions{Name: name, Password: password, Role: string(domain.RoleAdmin)}); err != nil {
		return false, fmt.Errorf("seed admin: %w", err)
	}
	e.log().Warn("seeded default administrator; change its password", "name", name)
	return true, nil
}

func actorOr(actorID, fallback string) string {
	if actorID != "" {
		return actorID
	}
	return fallback
}
