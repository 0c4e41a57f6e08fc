package domain

type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Role         Role   `json:"role" enum:"مدیر,کارمند"`
	Department   string `json:"department,omitempty"`
	Phone        string `json:"phone,omitempty"`
	PasswordHash string `json:"-"`
	CreatedAt    string `json:"created_at,omitempty" format:"date-time"`
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

type ChecklistItem struct {
	Category string   `json:"category"`
	Steps    []string `json:"steps"`
}

type MissionReport struct {
	ID                string         `json:"id"`
	ReporterID        string         `json:"reporterId"`
	CreatedAt         string         `json:"createdAt" format:"date-time"`
	DepartureTime     string         `json:"departureTime"`
	ReturnTime        string         `json:"returnTime"`
	Summary           string         `json:"summary"`
	ChecklistSnapshot ChecklistState `json:"checklistSnapshot"`
}

// Mission is the aggregate root. JSON names follow the REST contract used by the
// web client, hence the mix of flat and snake_case keys.
type Mission struct {
	ID               string            `json:"id"`
	Subject          string            `json:"subject"`
	Location         string            `json:"location"`
	StartTime        string            `json:"starttime"`
	EndTime          string            `json:"endtime"`
	Status           MissionStatus     `json:"status" enum:"جدید,در حال انجام,تکمیل شده"`
	CreatedBy        string            `json:"createdby"`
	AssignedTo       string            `json:"assignedto"`
	CreatedAt        string            `json:"createdat" format:"date-time"`
	Checklist        []ChecklistItem   `json:"checklist"`
	ChecklistState   ChecklistState    `json:"checkliststate"`
	Reports          []MissionReport   `json:"reports"`
	DelegatedBy      *string           `json:"delegated_by"`
	DelegationTarget *string           `json:"delegation_target"`
	DelegationReason *string           `json:"delegation_reason"`
	DelegationStatus *DelegationStatus `json:"delegation_status" enum:"PENDING,ACCEPTED,REJECTED"`
	DelegationCount  int               `json:"delegation_count"`
}

// EverDelegated reports whether a delegation cycle was ever proposed, including
// cycles that have since been cleared.
func (m Mission) EverDelegated() bool {
	return m.DelegatedBy != nil || m.DelegationCount > 0
}

func (m Mission) HasDelegationStatus(s DelegationStatus) bool {
	return m.DelegationStatus != nil && *m.DelegationStatus == s
}

// Clone returns a deep copy so pure transitions can be checked without touching
// the caller's value.
func (m Mission) Clone() Mission {
	out := m
	if m.Checklist != nil {
		out.Checklist = make([]ChecklistItem, len(m.Checklist))
		for i, item := range m.Checklist {
			out.Checklist[i] = ChecklistItem{Category: item.Category, Steps: append([]string(nil), item.Steps...)}
		}
	}
	out.ChecklistState = m.ChecklistState.Clone()
	if m.Reports != nil {
		out.Reports = make([]MissionReport, len(m.Reports))
		for i, r := range m.Reports {
			r.ChecklistSnapshot = r.ChecklistSnapshot.Clone()
			out.Reports[i] = r
		}
	}
	out.DelegatedBy = cloneString(m.DelegatedBy)
	out.DelegationTarget = cloneString(m.DelegationTarget)
	out.DelegationReason = cloneString(m.DelegationReason)
	if m.DelegationStatus != nil {
		s := *m.DelegationStatus
		out.DelegationStatus = &s
	}
	return out
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
