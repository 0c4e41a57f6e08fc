package server

import "missiondesk/internal/domain"

// Request payloads. Field names follow the web client, which posts whole rows
// back; unknown keys are accepted and ignored.

type LoginRequest struct {
	_        struct{} `json:"-" additionalProperties:"true"`
	Username string   `json:"username,omitempty"`
	Password string   `json:"password,omitempty"`
}

type CreateUserRequest struct {
	_          struct{} `json:"-" additionalProperties:"true"`
	Name       string   `json:"name,omitempty"`
	Password   string   `json:"password,omitempty"`
	Role       string   `json:"role,omitempty" doc:"مدیر or کارمند (ADMIN/EMPLOYEE accepted)"`
	Department string   `json:"department,omitempty"`
	Phone      string   `json:"phone,omitempty"`
}

// UpdateUserRequest changes only the keys present in the body; absent keys stay nil.
type UpdateUserRequest struct {
	_          struct{} `json:"-" additionalProperties:"true"`
	Name       *string  `json:"name,omitempty"`
	Password   *string  `json:"password,omitempty"`
	Role       *string  `json:"role,omitempty"`
	Department *string  `json:"department,omitempty"`
	Phone      *string  `json:"phone,omitempty"`
}

type CreateMissionRequest struct {
	_          struct{}               `json:"-" additionalProperties:"true"`
	Subject    string                 `json:"subject,omitempty"`
	Location   string                 `json:"location,omitempty"`
	StartTime  string                 `json:"starttime,omitempty"`
	EndTime    string                 `json:"endtime,omitempty"`
	AssignedTo string                 `json:"assignedto,omitempty"`
	CreatedBy  string                 `json:"createdby,omitempty"`
	Checklist  []domain.ChecklistItem `json:"checklist,omitempty"`
}

// UpdateMissionRequest mirrors the whole mission row the web client sends on
// PUT. Lifecycle columns are read only to detect a report submission.
type UpdateMissionRequest struct {
	_              struct{}              `json:"-" additionalProperties:"true"`
	Subject        *string               `json:"subject,omitempty"`
	Location       *string               `json:"location,omitempty"`
	StartTime      *string               `json:"starttime,omitempty"`
	EndTime        *string               `json:"endtime,omitempty"`
	Status         *string               `json:"status,omitempty"`
	ChecklistState domain.ChecklistState `json:"checkliststate,omitempty"`
	Reports        []RowReport           `json:"reports,omitempty"`
}

// RowReport is a report as the web client holds it. Reports it has just
// written carry no id or creation time yet.
type RowReport struct {
	_                 struct{}              `json:"-" additionalProperties:"true"`
	ID                string                `json:"id,omitempty"`
	ReporterID        string                `json:"reporterId,omitempty"`
	CreatedAt         string                `json:"createdAt,omitempty"`
	DepartureTime     string                `json:"departureTime,omitempty"`
	ReturnTime        string                `json:"returnTime,omitempty"`
	Summary           string                `json:"summary,omitempty"`
	ChecklistSnapshot domain.ChecklistState `json:"checklistSnapshot,omitempty"`
}

type SubmitReportRequest struct {
	_              struct{}              `json:"-" additionalProperties:"true"`
	ReporterID     string                `json:"reporterId,omitempty"`
	Status         string                `json:"status,omitempty" doc:"در حال انجام or تکمیل شده (IN_PROGRESS/COMPLETED accepted)"`
	DepartureTime  string                `json:"departureTime,omitempty"`
	ReturnTime     string                `json:"returnTime,omitempty"`
	Summary        string                `json:"summary,omitempty"`
	ChecklistState domain.ChecklistState `json:"checklistState,omitempty"`
}

type DelegateRequest struct {
	_            struct{} `json:"-" additionalProperties:"true"`
	TargetUserID string   `json:"targetUserId,omitempty"`
	Reason       string   `json:"reason,omitempty"`
	InitiatorID  string   `json:"initiatorId,omitempty"`
}

// UserActionRequest names the acting user for accept, reject and clear.
type UserActionRequest struct {
	_      struct{} `json:"-" additionalProperties:"true"`
	UserID string   `json:"userId,omitempty"`
}

// Responses

type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}

type paginatedEvents struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}
