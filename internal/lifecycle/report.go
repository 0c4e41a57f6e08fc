package lifecycle

import (
	"time"

	"missiondesk/internal/domain"
)

type ReportInput struct {
	DepartureTime  string
	ReturnTime     string
	Summary        string
	ChecklistState domain.ChecklistState
}

// ApplyReport records a report from reporterID and moves the mission to the
// declared status. A mission that was never delegated keeps a single report that
// is rewritten on every submission; once delegated, every submission appends and
// checklist progress only ever grows. On error m is left untouched.
func ApplyReport(m *domain.Mission, reporterID string, in ReportInput, declared domain.MissionStatus, now time.Time, newID func() string) (domain.MissionReport, error) {
	if reporterID == "" || reporterID != m.AssignedTo {
		return domain.MissionReport{}, NotAuthorizedError{Code: CodeNotAssignee, Reason: "reporter is not the mission assignee"}
	}
	if m.Status.Terminal() {
		return domain.MissionReport{}, InvalidStateError{Code: CodeMissionCompleted, Reason: "mission is completed"}
	}
	switch declared {
	case domain.StatusInProgress, domain.StatusCompleted:
	default:
		return domain.MissionReport{}, ValidationError{Code: CodeInvalidStatus, Fields: []string{"status"}, Message: "report status must be in progress or completed"}
	}
	if unknown := domain.ValidateState(m.Checklist, in.ChecklistState); len(unknown) > 0 {
		return domain.MissionReport{}, ValidationError{Code: CodeUnknownSteps, Fields: unknown, Message: "checklist state names unknown steps"}
	}

	stamp := now.UTC().Format(time.RFC3339)
	var report domain.MissionReport
	if !m.EverDelegated() {
		state := domain.NormalizeState(m.Checklist, in.ChecklistState)
		if len(m.Reports) > 0 {
			report = m.Reports[0]
		} else {
			report = domain.MissionReport{ID: newID(), ReporterID: reporterID, CreatedAt: stamp}
		}
		report.DepartureTime = in.DepartureTime
		report.ReturnTime = in.ReturnTime
		report.Summary = in.Summary
		report.ChecklistSnapshot = state.Clone()
		m.Reports = []domain.MissionReport{report}
		m.ChecklistState = state
	} else {
		report = domain.MissionReport{
			ID:                newID(),
			ReporterID:        reporterID,
			CreatedAt:         stamp,
			DepartureTime:     in.DepartureTime,
			ReturnTime:        in.ReturnTime,
			Summary:           in.Summary,
			ChecklistSnapshot: in.ChecklistState.Clone(),
		}
		if report.ChecklistSnapshot == nil {
			report.ChecklistSnapshot = domain.ChecklistState{}
		}
		m.Reports = append(append([]domain.MissionReport(nil), m.Reports...), report)
		m.ChecklistState = domain.MergeState(m.ChecklistState, in.ChecklistState)
	}
	m.Status = declared
	return report, nil
}
