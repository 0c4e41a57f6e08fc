// Package lifecycle holds the pure mission state transitions: creation, reports
// and the delegation state machine. Nothing here touches storage; callers fetch
// the current row, apply a transition, and persist the result.
package lifecycle

import (
	"strings"
	"time"

	"missiondesk/internal/domain"
)

type MissionDraft struct {
	Subject    string
	Location   string
	StartTime  string
	EndTime    string
	AssignedTo string
	CreatedBy  string
	Checklist  []domain.ChecklistItem
}

// MissionEdit carries descriptive fields an administrator may change after
// creation. Nil fields are left alone.
type MissionEdit struct {
	Subject   *string
	Location  *string
	StartTime *string
	EndTime   *string
}

func (e MissionEdit) Empty() bool {
	return e.Subject == nil && e.Location == nil && e.StartTime == nil && e.EndTime == nil
}

// scheduleLayouts covers RFC 3339 and the datetime-local values browsers submit.
var scheduleLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

func parseSchedule(v string) (time.Time, bool) {
	for _, layout := range scheduleLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(v)); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func checkSchedule(start, end string) error {
	s, okS := parseSchedule(start)
	e, okE := parseSchedule(end)
	if okS && okE && e.Before(s) {
		return ValidationError{Code: CodeInvalidSchedule, Fields: []string{"endtime"}, Message: "endtime precedes starttime"}
	}
	return nil
}

// NewMission validates a draft and returns a NEW mission with an all-false checklist.
func NewMission(d MissionDraft, id string, now time.Time) (domain.Mission, error) {
	var missing []string
	for _, f := range []struct {
		name, value string
	}{
		{"subject", d.Subject},
		{"location", d.Location},
		{"starttime", d.StartTime},
		{"endtime", d.EndTime},
		{"assignedto", d.AssignedTo},
		{"createdby", d.CreatedBy},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return domain.Mission{}, ValidationError{Code: CodeMissingFields, Fields: missing, Message: "missing mission fields"}
	}
	if err := checkSchedule(d.StartTime, d.EndTime); err != nil {
		return domain.Mission{}, err
	}
	checklist := domain.BuildChecklist(d.Checklist)
	return domain.Mission{
		ID:             id,
		Subject:        strings.TrimSpace(d.Subject),
		Location:       strings.TrimSpace(d.Location),
		StartTime:      strings.TrimSpace(d.StartTime),
		EndTime:        strings.TrimSpace(d.EndTime),
		Status:         domain.StatusNew,
		CreatedBy:      strings.TrimSpace(d.CreatedBy),
		AssignedTo:     strings.TrimSpace(d.AssignedTo),
		CreatedAt:      now.UTC().Format(time.RFC3339),
		Checklist:      checklist,
		ChecklistState: domain.InitializeState(checklist),
		Reports:        []domain.MissionReport{},
	}, nil
}

// ApplyEdit changes descriptive fields only. Blank values are rejected so a
// mission never loses a required field after creation.
func ApplyEdit(m *domain.Mission, e MissionEdit) error {
	next := *m
	var blank []string
	set := func(name string, src *string, dst *string) {
		if src == nil {
			return
		}
		v := strings.TrimSpace(*src)
		if v == "" {
			blank = append(blank, name)
			return
		}
		*dst = v
	}
	set("subject", e.Subject, &next.Subject)
	set("location", e.Location, &next.Location)
	set("starttime", e.StartTime, &next.StartTime)
	set("endtime", e.EndTime, &next.EndTime)
	if len(blank) > 0 {
		return ValidationError{Code: CodeMissingFields, Fields: blank, Message: "missing mission fields"}
	}
	if err := checkSchedule(next.StartTime, next.EndTime); err != nil {
		return err
	}
	*m = next
	return nil
}
