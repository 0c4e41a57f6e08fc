// Package view selects the missions a user sees for a given screen and
// summarizes a user's track record.
package view

import (
	"fmt"
	"strings"

	"missiondesk/internal/domain"
)

type Nav string

const (
	Dashboard       Nav = "DASHBOARD"
	MyMissions      Nav = "MY_MISSIONS"
	CreatedMissions Nav = "CREATED_MISSIONS"
	Delegations     Nav = "DELEGATIONS"
)

const filterAllMissions = "ALL"

// ParseNav maps a query value to a navigation context. Unknown or empty values
// fall back to MY_MISSIONS like the client does.
func ParseNav(raw string) Nav {
	switch n := Nav(strings.ToUpper(strings.TrimSpace(raw))); n {
	case Dashboard, CreatedMissions, Delegations:
		return n
	default:
		return MyMissions
	}
}

// StatusFilter is either "all" (zero value) or one mission status.
type StatusFilter struct {
	Status domain.MissionStatus
}

func (f StatusFilter) All() bool { return f.Status == "" }

func (f StatusFilter) Match(m domain.Mission) bool {
	return f.All() || m.Status == f.Status
}

func ParseStatusFilter(raw string) (StatusFilter, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.EqualFold(trimmed, filterAllMissions) {
		return StatusFilter{}, nil
	}
	s, err := domain.ParseMissionStatus(trimmed)
	if err != nil {
		return StatusFilter{}, fmt.Errorf("status filter: %w", err)
	}
	return StatusFilter{Status: s}, nil
}

// SelectVisibleMissions returns the subset of all shown to user on nav, in input order.
// The pending-delegations inbox ignores the status filter.
func SelectVisibleMissions(all []domain.Mission, user domain.User, nav Nav, filter StatusFilter) []domain.Mission {
	out := make([]domain.Mission, 0)
	if nav == Delegations {
		for _, m := range all {
			if m.DelegationTarget != nil && *m.DelegationTarget == user.ID && m.HasDelegationStatus(domain.DelegationPending) {
				out = append(out, m)
			}
		}
		return out
	}
	var keep func(domain.Mission) bool
	switch {
	case nav == CreatedMissions:
		keep = func(m domain.Mission) bool { return m.CreatedBy == user.ID }
	case nav == Dashboard && user.IsAdmin():
		keep = func(domain.Mission) bool { return true }
	default:
		keep = func(m domain.Mission) bool { return m.AssignedTo == user.ID }
	}
	for _, m := range all {
		if keep(m) && filter.Match(m) {
			out = append(out, m)
		}
	}
	return out
}

type Performance struct {
	UserID              string         `json:"userId"`
	Assigned            int            `json:"assigned"`
	ByStatus            map[string]int `json:"byStatus"`
	ReportsFiled        int            `json:"reportsFiled"`
	DelegationsSent     int            `json:"delegationsSent"`
	DelegationsReceived int            `json:"delegationsReceived"`
	ChecklistDone       int            `json:"checklistDone"`
	ChecklistTotal      int            `json:"checklistTotal"`
}

// Summarize computes the performance page for userID. Delegation counts only see
// cycles that have not been cleared, since clearing drops delegated_by.
func Summarize(all []domain.Mission, userID string) Performance {
	p := Performance{UserID: userID, ByStatus: map[string]int{}}
	for _, s := range domain.MissionStatuses() {
		p.ByStatus[s.Name()] = 0
	}
	for _, m := range all {
		if m.AssignedTo == userID {
			p.Assigned++
			p.ByStatus[m.Status.Name()]++
			done, total := domain.Progress(m.Checklist, m.ChecklistState)
			p.ChecklistDone += done
			p.ChecklistTotal += total
		}
		for _, r := range m.Reports {
			if r.ReporterID == userID {
				p.ReportsFiled++
			}
		}
		if m.DelegatedBy != nil && *m.DelegatedBy == userID {
			p.DelegationsSent++
		}
		if m.DelegationTarget != nil && *m.DelegationTarget == userID {
			p.DelegationsReceived++
		}
	}
	return p
}
