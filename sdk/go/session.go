package missiondesksdk

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// Session is a signed-in user. Every call made through it acts as that user;
// there is no process-wide current user.
type Session struct {
	User    User
	Token   string
	Expires time.Time
	client  *Client
}

// Client returns the client bound to this session's token.
func (s *Session) Client() *Client { return s.client }

// Missions lists what the user sees on view ("MY_MISSIONS", "CREATED_MISSIONS",
// "DASHBOARD" or "DELEGATIONS") filtered by status ("" or "ALL" for every status).
func (s *Session) Missions(ctx context.Context, view, status string) ([]Mission, error) {
	return s.client.ListMissions(ctx, MissionQuery{View: view, UserID: s.User.ID, Status: status})
}

// CreateMission creates a mission with this user as creator.
func (s *Session) CreateMission(ctx context.Context, m NewMission) (string, error) {
	m.CreatedBy = s.User.ID
	return s.client.CreateMission(ctx, m)
}

// SubmitReport files a report as this user.
func (s *Session) SubmitReport(ctx context.Context, missionID string, in ReportInput) (Mission, error) {
	body := struct {
		ReportInput
		ReporterID string `json:"reporterId"`
	}{ReportInput: in, ReporterID: s.User.ID}
	var resp Mission
	err := s.client.do(ctx, http.MethodPost, missionPath(missionID, "report"), body, &resp)
	return resp, err
}

// Delegate proposes handing the mission to targetUserID.
func (s *Session) Delegate(ctx context.Context, missionID, targetUserID, reason string) (Mission, error) {
	body := map[string]string{
		"targetUserId": targetUserID,
		"reason":       reason,
		"initiatorId":  s.User.ID,
	}
	var resp Mission
	err := s.client.do(ctx, http.MethodPost, missionPath(missionID, "delegate"), body, &resp)
	return resp, err
}

func (s *Session) AcceptDelegation(ctx context.Context, missionID string) (Mission, error) {
	return s.userAction(ctx, missionID, "accept")
}

func (s *Session) RejectDelegation(ctx context.Context, missionID string) (Mission, error) {
	return s.userAction(ctx, missionID, "reject")
}

func (s *Session) ClearDelegation(ctx context.Context, missionID string) (Mission, error) {
	return s.userAction(ctx, missionID, "clear-delegation")
}

func (s *Session) userAction(ctx context.Context, missionID, action string) (Mission, error) {
	var resp Mission
	err := s.client.do(ctx, http.MethodPost, missionPath(missionID, action), map[string]string{"userId": s.User.ID}, &resp)
	return resp, err
}

func missionPath(id, action string) string {
	return "missions/" + url.PathEscape(id) + "/" + action
}
