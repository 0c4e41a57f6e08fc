package view_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"missiondesk/internal/domain"
	"missiondesk/internal/view"
)

func ptr[T any](v T) *T { return &v }

func fixtures() []domain.Mission {
	return []domain.Mission{
		{ID: "M1", CreatedBy: "A", AssignedTo: "E1", Status: domain.StatusNew},
		{ID: "M2", CreatedBy: "A", AssignedTo: "E2", Status: domain.StatusInProgress,
			DelegatedBy: ptr("E2"), DelegationTarget: ptr("E1"), DelegationStatus: ptr(domain.DelegationPending), DelegationCount: 1},
		{ID: "M3", CreatedBy: "E1", AssignedTo: "E1", Status: domain.StatusCompleted,
			Reports: []domain.MissionReport{{ID: "R1", ReporterID: "E1"}}},
		{ID: "M4", CreatedBy: "A", AssignedTo: "E3", Status: domain.StatusCompleted,
			DelegatedBy: ptr("E1"), DelegationTarget: ptr("E3"), DelegationStatus: ptr(domain.DelegationAccepted), DelegationCount: 1,
			Checklist: []domain.ChecklistItem{{Category: "C", Steps: []string{"a", "b"}}}, ChecklistState: domain.ChecklistState{"C": {"a": true}},
			Reports: []domain.MissionReport{{ID: "R2", ReporterID: "E3"}}},
	}
}

func ids(ms []domain.Mission) []string {
	out := []string{}
	for _, m := range ms {
		out = append(out, m.ID)
	}
	return out
}

func TestSelectVisibleMissions(t *testing.T) {
	admin := domain.User{ID: "A", Role: domain.RoleAdmin}
	e1 := domain.User{ID: "E1", Role: domain.RoleEmployee}
	all := fixtures()
	completed := view.StatusFilter{Status: domain.StatusCompleted}

	cases := []struct {
		name   string
		user   domain.User
		nav    view.Nav
		filter view.StatusFilter
		want   []string
	}{
		{"admin dashboard sees all", admin, view.Dashboard, view.StatusFilter{}, []string{"M1", "M2", "M3", "M4"}},
		{"admin dashboard filtered", admin, view.Dashboard, completed, []string{"M3", "M4"}},
		{"employee dashboard is my missions", e1, view.Dashboard, view.StatusFilter{}, []string{"M1", "M3"}},
		{"my missions filtered", e1, view.MyMissions, completed, []string{"M3"}},
		{"created missions", admin, view.CreatedMissions, view.StatusFilter{}, []string{"M1", "M2", "M4"}},
		{"created missions filtered", e1, view.CreatedMissions, view.StatusFilter{Status: domain.StatusNew}, []string{}},
		{"delegations ignore filter", e1, view.Delegations, completed, []string{"M2"}},
		{"accepted delegations leave inbox", domain.User{ID: "E3"}, view.Delegations, view.StatusFilter{}, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ids(view.SelectVisibleMissions(all, tc.user, tc.nav, tc.filter)))
		})
	}
}

func TestParseHelpers(t *testing.T) {
	f, err := view.ParseStatusFilter("ALL")
	require.NoError(t, err)
	assert.True(t, f.All())
	f, err = view.ParseStatusFilter("in_progress")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, f.Status)
	_, err = view.ParseStatusFilter("archived")
	assert.Error(t, err)

	assert.Equal(t, view.Delegations, view.ParseNav("delegations"))
	assert.Equal(t, view.MyMissions, view.ParseNav("USER_MANAGEMENT"))
}

func TestSummarize(t *testing.T) {
	p := view.Summarize(fixtures(), "E1")
	assert.Equal(t, 2, p.Assigned)
	assert.Equal(t, map[string]int{"NEW": 1, "IN_PROGRESS": 0, "COMPLETED": 1}, p.ByStatus)
	assert.Equal(t, 1, p.ReportsFiled)
	assert.Equal(t, 1, p.DelegationsSent)
	assert.Equal(t, 1, p.DelegationsReceived)

	p = view.Summarize(fixtures(), "E3")
	assert.Equal(t, 1, p.ChecklistDone)
	assert.Equal(t, 2, p.ChecklistTotal)
}
