package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"missiondesk/internal/domain"
	"missiondesk/internal/events"
	"missiondesk/internal/lifecycle"
	"missiondesk/internal/repo"
	"missiondesk/internal/view"
)

// MissionCreateOptions are parameters for creating a mission.
type MissionCreateOptions struct {
	lifecycle.MissionDraft
	ActorID string
}

func (e Engine) CreateMission(ctx context.Context, opts MissionCreateOptions) (domain.Mission, error) {
	m, err := lifecycle.NewMission(opts.MissionDraft, newID("M"), e.now())
	if err != nil {
		return domain.Mission{}, err
	}
	actorID := opts.ActorID
	if actorID == "" {
		actorID = m.CreatedBy
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Mission{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetUserTx(ctx, tx, m.AssignedTo); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Mission{}, lifecycle.ValidationError{Code: lifecycle.CodeUnknownAssignee, Fields: []string{"assignedto"}, Message: "assignee does not exist"}
		}
		return domain.Mission{}, err
	}
	if err := e.Repo.InsertMission(ctx, tx, m); err != nil {
		return domain.Mission{}, fmt.Errorf("insert mission: %w", err)
	}
	if err := e.writer().Append(ctx, tx, events.MissionCreated, events.EntityMission, m.ID, actorID, events.EventPayload{
		"assignedto": m.AssignedTo,
		"subject":    m.Subject,
		"steps":      stepCount(m.Checklist),
	}); err != nil {
		return domain.Mission{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Mission{}, err
	}
	e.log().Info("mission created", "mission", m.ID, "assignedto", m.AssignedTo)
	return m, nil
}

func stepCount(checklist []domain.ChecklistItem) int {
	n := 0
	for _, item := range checklist {
		n += len(item.Steps)
	}
	return n
}

// SubmitReport files a report from reporterID and moves the mission to declared.
func (e Engine) SubmitReport(ctx context.Context, missionID, reporterID string, in lifecycle.ReportInput, declared domain.MissionStatus) (domain.Mission, error) {
	return e.mutateMission(ctx, missionID, reporterID, events.ReportSubmitted, func(_ *sql.Tx, m *domain.Mission) (events.EventPayload, error) {
		return e.applyReport(m, reporterID, in, declared)
	})
}

func (e Engine) applyReport(m *domain.Mission, reporterID string, in lifecycle.ReportInput, declared domain.MissionStatus) (events.EventPayload, error) {
	mode := "edit"
	if m.EverDelegated() {
		mode = "append"
	}
	report, err := lifecycle.ApplyReport(m, reporterID, in, declared, e.now(), func() string { return newID("R") })
	if err != nil {
		return nil, err
	}
	done, total := domain.Progress(m.Checklist, m.ChecklistState)
	return events.EventPayload{
		"report_id": report.ID,
		"status":    m.Status.Name(),
		"mode":      mode,
		"reports":   len(m.Reports),
		"done":      done,
		"total":     total,
	}, nil
}

func (e Engine) ProposeDelegation(ctx context.Context, missionID, initiatorID, targetID, reason string) (domain.Mission, error) {
	return e.mutateMission(ctx, missionID, initiatorID, events.DelegationProposed, func(tx *sql.Tx, m *domain.Mission) (events.EventPayload, error) {
		if err := lifecycle.Propose(m, initiatorID, targetID, reason, e.Policy()); err != nil {
			return nil, err
		}
		if _, err := e.Repo.GetUserTx(ctx, tx, *m.DelegationTarget); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, lifecycle.ValidationError{Code: lifecycle.CodeInvalidTarget, Fields: []string{"targetUserId"}, Message: "delegation target does not exist"}
			}
			return nil, err
		}
		return events.EventPayload{"from": initiatorID, "to": *m.DelegationTarget, "reason": reason, "cycle": m.DelegationCount}, nil
	})
}

func (e Engine) AcceptDelegation(ctx context.Context, missionID, userID string) (domain.Mission, error) {
	return e.mutateMission(ctx, missionID, userID, events.DelegationAccepted, func(_ *sql.Tx, m *domain.Mission) (events.EventPayload, error) {
		from := m.AssignedTo
		if err := lifecycle.Accept(m, userID); err != nil {
			return nil, err
		}
		return events.EventPayload{"from": from, "to": userID}, nil
	})
}

func (e Engine) RejectDelegation(ctx context.Context, missionID, userID string) (domain.Mission, error) {
	return e.mutateMission(ctx, missionID, userID, events.DelegationRejected, func(_ *sql.Tx, m *domain.Mission) (events.EventPayload, error) {
		if err := lifecycle.Reject(m, userID); err != nil {
			return nil, err
		}
		return events.EventPayload{"delegated_by": derefString(m.DelegatedBy), "to": userID}, nil
	})
}

// ClearDelegation resets the delegation fields. Clearing a PENDING proposal is
// recorded with was_pending so the target can be told it was withdrawn.
func (e Engine) ClearDelegation(ctx context.Context, missionID, userID string) (domain.Mission, error) {
	return e.mutateMission(ctx, missionID, userID, events.DelegationCleared, func(_ *sql.Tx, m *domain.Mission) (events.EventPayload, error) {
		target := derefString(m.DelegationTarget)
		var status string
		if m.DelegationStatus != nil {
			status = string(*m.DelegationStatus)
		}
		wasPending, err := lifecycle.Clear(m, userID, e.Policy())
		if err != nil {
			return nil, err
		}
		return events.EventPayload{"target": target, "previous_status": status, "was_pending": wasPending}, nil
	})
}

// UpdateMissionDetails edits descriptive fields. When actorID is set it must be
// an administrator or the mission's creator.
func (e Engine) UpdateMissionDetails(ctx context.Context, missionID string, edit lifecycle.MissionEdit, actorID string) (domain.Mission, error) {
	return e.mutateMission(ctx, missionID, actorID, events.MissionUpdated, func(tx *sql.Tx, m *domain.Mission) (events.EventPayload, error) {
		return e.applyDetails(ctx, tx, m, edit, actorID)
	})
}

func (e Engine) applyDetails(ctx context.Context, tx *sql.Tx, m *domain.Mission, edit lifecycle.MissionEdit, actorID string) (events.EventPayload, error) {
	if actorID != "" && actorID != m.CreatedBy {
		if err := e.requireAdmin(ctx, tx, actorID); err != nil {
			return nil, err
		}
	}
	before := *m
	if err := lifecycle.ApplyEdit(m, edit); err != nil {
		return nil, err
	}
	var changed []string
	for _, f := range []struct {
		name      string
		old, next string
	}{
		{"subject", before.Subject, m.Subject},
		{"location", before.Location, m.Location},
		{"starttime", before.StartTime, m.StartTime},
		{"endtime", before.EndTime, m.EndTime},
	} {
		if f.old != f.next {
			changed = append(changed, f.name)
		}
	}
	return events.EventPayload{"fields": changed}, nil
}

// RowReport is a report carried by a full-row write.
type RowReport struct {
	ReporterID string
	Input      lifecycle.ReportInput
	Declared   domain.MissionStatus
}

// RowChange is what a full-row write amounts to: an optional edit of the
// descriptive fields and an optional report.
type RowChange struct {
	Edit   lifecycle.MissionEdit
	Report *RowReport
}

// RowPlanner derives the change from the mission as read inside the transaction.
type RowPlanner func(current domain.Mission) (RowChange, error)

// ApplyMissionRow applies the edit and the report a row write stands for in a
// single transaction: if either step fails nothing is written.
func (e Engine) ApplyMissionRow(ctx context.Context, missionID, actorID string, plan RowPlanner) (domain.Mission, error) {
	return e.mutateMissionEvents(ctx, missionID, actorID, func(tx *sql.Tx, m *domain.Mission) ([]missionEvent, error) {
		change, err := plan(m.Clone())
		if err != nil {
			return nil, err
		}
		var evts []missionEvent
		if !change.Edit.Empty() {
			payload, err := e.applyDetails(ctx, tx, m, change.Edit, actorID)
			if err != nil {
				return nil, err
			}
			evts = append(evts, missionEvent{Type: events.MissionUpdated, Payload: payload})
		}
		if r := change.Report; r != nil {
			payload, err := e.applyReport(m, r.ReporterID, r.Input, r.Declared)
			if err != nil {
				return nil, err
			}
			evts = append(evts, missionEvent{Type: events.ReportSubmitted, Payload: payload, Actor: r.ReporterID})
		}
		return evts, nil
	})
}

// PurgeMissionsForUser deletes every mission assigned to userID.
func (e Engine) PurgeMissionsForUser(ctx context.Context, userID, actorID string) ([]string, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if err := e.requireAdmin(ctx, tx, actorID); err != nil {
		return nil, err
	}
	ids, err := e.purgeTx(ctx, tx, userID, actorID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (e Engine) purgeTx(ctx context.Context, tx *sql.Tx, userID, actorID string) ([]string, error) {
	ids, err := e.Repo.DeleteMissionsByAssignee(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("purge missions: %w", err)
	}
	if len(ids) == 0 {
		return ids, nil
	}
	if err := e.writer().Append(ctx, tx, events.MissionPurged, events.EntityUser, userID, actorID, events.EventPayload{"missions": ids}); err != nil {
		return nil, err
	}
	e.log().Info("missions purged", "user", userID, "count", len(ids))
	return ids, nil
}

func (e Engine) GetMission(ctx context.Context, id string) (domain.Mission, error) {
	m, err := e.Repo.GetMission(ctx, id)
	if err != nil {
		return domain.Mission{}, missionNotFound(id, err)
	}
	return m, nil
}

func (e Engine) ListMissions(ctx context.Context, f repo.MissionFilters) ([]domain.Mission, error) {
	return e.Repo.ListMissions(ctx, f)
}

// VisibleMissions resolves userID and applies the navigation view over all missions.
func (e Engine) VisibleMissions(ctx context.Context, userID string, nav view.Nav, filter view.StatusFilter) ([]domain.Mission, error) {
	user, err := e.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	all, err := e.Repo.ListMissions(ctx, repo.MissionFilters{})
	if err != nil {
		return nil, err
	}
	return view.SelectVisibleMissions(all, user, nav, filter), nil
}

func (e Engine) Performance(ctx context.Context, userID string) (view.Performance, error) {
	if _, err := e.GetUser(ctx, userID); err != nil {
		return view.Performance{}, err
	}
	all, err := e.Repo.ListMissions(ctx, repo.MissionFilters{})
	if err != nil {
		return view.Performance{}, err
	}
	return view.Summarize(all, userID), nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
