package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"time"

	"github.com/google/uuid"

	"missiondesk/internal/config"
	"missiondesk/internal/db"
	"missiondesk/internal/domain"
	"missiondesk/internal/engine/auth"
	"missiondesk/internal/events"
	"missiondesk/internal/lifecycle"
	"missiondesk/internal/repo"
)

type Engine struct {
	DB     *db.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Tokens auth.Tokens
	Now    func() time.Time
	Log    *slog.Logger
}

func New(conn *db.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:     conn,
		Repo:   repo.Repo{DB: conn},
		Events: events.Writer{DB: conn},
		Config: cfg,
		Tokens: auth.Tokens{
			Secret: []byte(cfg.Auth.JWTSecret),
			Issuer: cfg.Auth.Issuer,
			TTL:    cfg.Auth.TokenTTL.Std(),
		},
		Now: time.Now,
		Log: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) log() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}

func (e Engine) writer() events.Writer {
	w := e.Events
	w.Now = e.now
	return w
}

// Policy returns the delegation policy from config.
func (e Engine) Policy() lifecycle.Policy {
	if e.Config == nil {
		return lifecycle.DefaultPolicy()
	}
	return lifecycle.Policy{
		AllowRetarget:     e.Config.Delegation.AllowRetarget,
		AllowClearPending: e.Config.Delegation.AllowClearPending,
	}
}

func newID(prefix string) string {
	return prefix + uuid.NewString()
}

func missionNotFound(id string, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return lifecycle.NotFoundError{Entity: "mission", ID: id}
	}
	return err
}

func userNotFound(id string, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return lifecycle.NotFoundError{Entity: "user", ID: id}
	}
	return err
}

// missionChange applies one transition to a freshly read mission. It returns the
// event payload to record.
type missionChange func(tx *sql.Tx, m *domain.Mission) (events.EventPayload, error)

type missionEvent struct {
	Type    string
	Payload events.EventPayload
	// Actor overrides the operation's actor for this event.
	Actor string
}

// mutateMission is the read-modify-write every mission operation goes through:
// the row is re-read inside the transaction, the transition authorizes against
// that copy, and only the changed columns are written back.
func (e Engine) mutateMission(ctx context.Context, id, actorID, evtType string, change missionChange) (domain.Mission, error) {
	return e.mutateMissionEvents(ctx, id, actorID, func(tx *sql.Tx, m *domain.Mission) ([]missionEvent, error) {
		payload, err := change(tx, m)
		if err != nil {
			return nil, err
		}
		return []missionEvent{{Type: evtType, Payload: payload}}, nil
	})
}

// mutateMissionEvents is mutateMission for changes that record zero or more
// events, all in the same transaction.
func (e Engine) mutateMissionEvents(ctx context.Context, id, actorID string, change func(tx *sql.Tx, m *domain.Mission) ([]missionEvent, error)) (domain.Mission, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Mission{}, err
	}
	defer tx.Rollback()

	current, err := e.Repo.GetMissionTx(ctx, tx, id)
	if err != nil {
		return domain.Mission{}, missionNotFound(id, err)
	}
	next := current.Clone()
	evts, err := change(tx, &next)
	if err != nil {
		return domain.Mission{}, err
	}
	if patch := diffMission(current, next); !patch.Empty() {
		if err := e.Repo.UpdateMission(ctx, tx, id, patch); err != nil {
			return domain.Mission{}, fmt.Errorf("update mission: %w", err)
		}
	}
	for _, evt := range evts {
		if err := e.writer().Append(ctx, tx, evt.Type, events.EntityMission, id, actorOr(evt.Actor, actorID), evt.Payload); err != nil {
			return domain.Mission{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Mission{}, err
	}
	for _, evt := range evts {
		e.log().Debug("mission updated", "event", evt.Type, "mission", id, "actor", actorID)
	}
	return next, nil
}

// diffMission builds a partial update holding only the columns that changed.
func diffMission(before, after domain.Mission) repo.MissionPatch {
	var p repo.MissionPatch
	if before.Subject != after.Subject {
		p.Subject = &after.Subject
	}
	if before.Location != after.Location {
		p.Location = &after.Location
	}
	if before.StartTime != after.StartTime {
		p.StartTime = &after.StartTime
	}
	if before.EndTime != after.EndTime {
		p.EndTime = &after.EndTime
	}
	if before.Status != after.Status {
		p.Status = &after.Status
	}
	if before.AssignedTo != after.AssignedTo {
		p.AssignedTo = &after.AssignedTo
	}
	if !reflect.DeepEqual(before.ChecklistState, after.ChecklistState) {
		p.ChecklistState = after.ChecklistState
		if p.ChecklistState == nil {
			p.ChecklistState = domain.ChecklistState{}
		}
	}
	if !reflect.DeepEqual(before.Reports, after.Reports) {
		p.Reports = after.Reports
		if p.Reports == nil {
			p.Reports = []domain.MissionReport{}
		}
	}
	if !sameString(before.DelegatedBy, after.DelegatedBy) || !sameString(before.DelegationTarget, after.DelegationTarget) ||
		!sameString(before.DelegationReason, after.DelegationReason) || !sameStatus(before.DelegationStatus, after.DelegationStatus) {
		p.Delegation = &repo.DelegationFields{
			DelegatedBy: after.DelegatedBy,
			Target:      after.DelegationTarget,
			Reason:      after.DelegationReason,
			Status:      after.DelegationStatus,
		}
	}
	if before.DelegationCount != after.DelegationCount {
		p.DelegationCount = &after.DelegationCount
	}
	return p
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameStatus(a, b *domain.DelegationStatus) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// requireAdmin checks actorID when one is given. An empty actor means a trusted
// local caller such as the CLI.
func (e Engine) requireAdmin(ctx context.Context, tx *sql.Tx, actorID string) error {
	if actorID == "" {
		return nil
	}
	actor, err := e.Repo.GetUserTx(ctx, tx, actorID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return lifecycle.NotAuthorizedError{Code: lifecycle.CodeNotAdmin, Reason: "unknown actor"}
		}
		return err
	}
	if !actor.IsAdmin() {
		return lifecycle.NotAuthorizedError{Code: lifecycle.CodeNotAdmin, Reason: "administrator required"}
	}
	return nil
}

// RecentEvents lists the event log newest first.
func (e Engine) RecentEvents(ctx context.Context, limit int, cursor int64, f repo.EventFilters) ([]domain.Event, error) {
	return e.Repo.LatestEvents(ctx, limit, cursor, f)
}
