package domain

import (
	"fmt"
	"strings"
)

// MissionStatus values are stored and serialized with the labels the web client
// already uses. Name returns the stable English identifier.
type MissionStatus string

const (
	StatusNew        MissionStatus = "جدید"
	StatusInProgress MissionStatus = "در حال انجام"
	StatusCompleted  MissionStatus = "تکمیل شده"
)

var missionStatuses = []MissionStatus{StatusNew, StatusInProgress, StatusCompleted}

func MissionStatuses() []MissionStatus {
	return append([]MissionStatus(nil), missionStatuses...)
}

func (s MissionStatus) Name() string {
	switch s {
	case StatusNew:
		return "NEW"
	case StatusInProgress:
		return "IN_PROGRESS"
	case StatusCompleted:
		return "COMPLETED"
	default:
		return string(s)
	}
}

func (s MissionStatus) Valid() bool {
	switch s {
	case StatusNew, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Terminal is true for statuses that accept no further reports.
func (s MissionStatus) Terminal() bool {
	return s == StatusCompleted
}

// ParseMissionStatus accepts either the wire label or the English name.
func ParseMissionStatus(raw string) (MissionStatus, error) {
	trimmed := strings.TrimSpace(raw)
	for _, s := range missionStatuses {
		if trimmed == string(s) || strings.EqualFold(trimmed, s.Name()) {
			return s, nil
		}
	}
	return "", fmt.Errorf("invalid mission status %q", raw)
}

type DelegationStatus string

const (
	DelegationPending  DelegationStatus = "PENDING"
	DelegationAccepted DelegationStatus = "ACCEPTED"
	DelegationRejected DelegationStatus = "REJECTED"
)

func (s DelegationStatus) Valid() bool {
	switch s {
	case DelegationPending, DelegationAccepted, DelegationRejected:
		return true
	}
	return false
}

func ParseDelegationStatus(raw string) (DelegationStatus, error) {
	s := DelegationStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("invalid delegation status %q", raw)
	}
	return s, nil
}

type Role string

const (
	RoleAdmin    Role = "مدیر"
	RoleEmployee Role = "کارمند"
)

func (r Role) Name() string {
	switch r {
	case RoleAdmin:
		return "ADMIN"
	case RoleEmployee:
		return "EMPLOYEE"
	default:
		return string(r)
	}
}

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleEmployee
}

func ParseRole(raw string) (Role, error) {
	trimmed := strings.TrimSpace(raw)
	for _, r := range []Role{RoleAdmin, RoleEmployee} {
		if trimmed == string(r) || strings.EqualFold(trimmed, r.Name()) {
			return r, nil
		}
	}
	return "", fmt.Errorf("invalid role %q", raw)
}
