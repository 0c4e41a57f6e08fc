package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"missiondesk/internal/domain"
)

const missionColumns = `id,subject,location,starttime,endtime,status,createdby,assignedto,createdat,` +
	`checklist_json,checkliststate_json,reports_json,delegated_by,delegation_target,delegation_reason,delegation_status,delegation_count`

func scanMission(row rowScanner) (domain.Mission, error) {
	var (
		m                                  domain.Mission
		status                             string
		checklist, state, reports          string
		delegatedBy, target, reason, dstat sql.NullString
	)
	err := row.Scan(&m.ID, &m.Subject, &m.Location, &m.StartTime, &m.EndTime, &status, &m.CreatedBy, &m.AssignedTo, &m.CreatedAt,
		&checklist, &state, &reports, &delegatedBy, &target, &reason, &dstat, &m.DelegationCount)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	m.Status = domain.MissionStatus(status)
	if err := json.Unmarshal([]byte(checklist), &m.Checklist); err != nil {
		return m, fmt.Errorf("mission %s checklist: %w", m.ID, err)
	}
	if err := json.Unmarshal([]byte(state), &m.ChecklistState); err != nil {
		return m, fmt.Errorf("mission %s checklist state: %w", m.ID, err)
	}
	if err := json.Unmarshal([]byte(reports), &m.Reports); err != nil {
		return m, fmt.Errorf("mission %s reports: %w", m.ID, err)
	}
	if m.Checklist == nil {
		m.Checklist = []domain.ChecklistItem{}
	}
	if m.ChecklistState == nil {
		m.ChecklistState = domain.ChecklistState{}
	}
	if m.Reports == nil {
		m.Reports = []domain.MissionReport{}
	}
	m.DelegatedBy = stringPtr(delegatedBy)
	m.DelegationTarget = stringPtr(target)
	m.DelegationReason = stringPtr(reason)
	if dstat.Valid {
		s := domain.DelegationStatus(dstat.String)
		m.DelegationStatus = &s
	}
	return m, nil
}

func (r Repo) InsertMission(ctx context.Context, tx *sql.Tx, m domain.Mission) error {
	checklist, err := marshalJSON(m.Checklist, "[]")
	if err != nil {
		return err
	}
	state, err := marshalJSON(m.ChecklistState, "{}")
	if err != nil {
		return err
	}
	reports, err := marshalJSON(m.Reports, "[]")
	if err != nil {
		return err
	}
	_, err = r.q(tx).ExecContext(ctx, r.DB.Rebind(`INSERT INTO missions(`+missionColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`),
		m.ID, m.Subject, m.Location, m.StartTime, m.EndTime, string(m.Status), m.CreatedBy, m.AssignedTo, m.CreatedAt,
		checklist, state, reports,
		nullableStringPtr(m.DelegatedBy), nullableStringPtr(m.DelegationTarget), nullableStringPtr(m.DelegationReason),
		nullableDelegationStatus(m.DelegationStatus), m.DelegationCount)
	return err
}

func (r Repo) GetMission(ctx context.Context, id string) (domain.Mission, error) {
	return r.GetMissionTx(ctx, nil, id)
}

func (r Repo) GetMissionTx(ctx context.Context, tx *sql.Tx, id string) (domain.Mission, error) {
	return scanMission(r.q(tx).QueryRowContext(ctx, r.DB.Rebind(`SELECT `+missionColumns+` FROM missions WHERE id=?`), id))
}

type MissionFilters struct {
	AssignedTo       string
	CreatedBy        string
	DelegationTarget string
	Status           domain.MissionStatus
	Limit            int
}

// ListMissions returns missions newest first.
func (r Repo) ListMissions(ctx context.Context, f MissionFilters) ([]domain.Mission, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.AssignedTo != "" {
		clauses = append(clauses, "assignedto=?")
		args = append(args, f.AssignedTo)
	}
	if f.CreatedBy != "" {
		clauses = append(clauses, "createdby=?")
		args = append(args, f.CreatedBy)
	}
	if f.DelegationTarget != "" {
		clauses = append(clauses, "delegation_target=?")
		args = append(args, f.DelegationTarget)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, string(f.Status))
	}
	query := fmt.Sprintf(`SELECT %s FROM missions WHERE %s ORDER BY createdat DESC, id DESC`, missionColumns, strings.Join(clauses, " AND "))
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, r.DB.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Mission{}
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// DelegationFields is written as a unit so a cleared cycle stores four NULLs.
type DelegationFields struct {
	DelegatedBy *string
	Target      *string
	Reason      *string
	Status      *domain.DelegationStatus
}

// MissionPatch holds the columns to change; nil fields are left alone.
type MissionPatch struct {
	Subject         *string
	Location        *string
	StartTime       *string
	EndTime         *string
	Status          *domain.MissionStatus
	AssignedTo      *string
	ChecklistState  domain.ChecklistState
	Reports         []domain.MissionReport
	Delegation      *DelegationFields
	DelegationCount *int
}

func (p MissionPatch) Empty() bool {
	return p.Subject == nil && p.Location == nil && p.StartTime == nil && p.EndTime == nil &&
		p.Status == nil && p.AssignedTo == nil && p.ChecklistState == nil && p.Reports == nil &&
		p.Delegation == nil && p.DelegationCount == nil
}

func (r Repo) UpdateMission(ctx context.Context, tx *sql.Tx, id string, p MissionPatch) error {
	var (
		fields []string
		args   []any
	)
	set := func(col string, v any) {
		fields = append(fields, col+"=?")
		args = append(args, v)
	}
	if p.Subject != nil {
		set("subject", *p.Subject)
	}
	if p.Location != nil {
		set("location", *p.Location)
	}
	if p.StartTime != nil {
		set("starttime", *p.StartTime)
	}
	if p.EndTime != nil {
		set("endtime", *p.EndTime)
	}
	if p.Status != nil {
		set("status", string(*p.Status))
	}
	if p.AssignedTo != nil {
		set("assignedto", *p.AssignedTo)
	}
	if p.ChecklistState != nil {
		data, err := marshalJSON(p.ChecklistState, "{}")
		if err != nil {
			return err
		}
		set("checkliststate_json", data)
	}
	if p.Reports != nil {
		data, err := marshalJSON(p.Reports, "[]")
		if err != nil {
			return err
		}
		set("reports_json", data)
	}
	if p.Delegation != nil {
		set("delegated_by", nullableStringPtr(p.Delegation.DelegatedBy))
		set("delegation_target", nullableStringPtr(p.Delegation.Target))
		set("delegation_reason", nullableStringPtr(p.Delegation.Reason))
		set("delegation_status", nullableDelegationStatus(p.Delegation.Status))
	}
	if p.DelegationCount != nil {
		set("delegation_count", *p.DelegationCount)
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := r.q(tx).ExecContext(ctx, r.DB.Rebind(fmt.Sprintf(`UPDATE missions SET %s WHERE id=?`, strings.Join(fields, ","))), args...)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// MissionsInDelegationWith returns missions whose delegation cycle names userID
// as delegator or target.
func (r Repo) MissionsInDelegationWith(ctx context.Context, tx *sql.Tx, userID string) ([]domain.Mission, error) {
	rows, err := r.q(tx).QueryContext(ctx, r.DB.Rebind(`SELECT `+missionColumns+` FROM missions WHERE delegation_target=? OR delegated_by=? ORDER BY id`), userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Mission{}
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// DeleteMissionsByAssignee removes every mission assigned to userID and returns
// the deleted ids.
func (r Repo) DeleteMissionsByAssignee(ctx context.Context, tx *sql.Tx, userID string) ([]string, error) {
	q := r.q(tx)
	rows, err := q.QueryContext(ctx, r.DB.Rebind(`SELECT id FROM missions WHERE assignedto=? ORDER BY id`), userID)
	if err != nil {
		return nil, err
	}
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return ids, nil
	}
	if _, err := q.ExecContext(ctx, r.DB.Rebind(`DELETE FROM missions WHERE assignedto=?`), userID); err != nil {
		return nil, err
	}
	return ids, nil
}

func marshalJSON(v any, empty string) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(data) == "null" {
		return empty, nil
	}
	return string(data), nil
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableDelegationStatus(v *domain.DelegationStatus) any {
	if v == nil {
		return nil
	}
	return string(*v)
}
