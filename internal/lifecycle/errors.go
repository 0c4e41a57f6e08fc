package lifecycle

import (
	"fmt"
	"strings"
)

// Stable machine codes carried by lifecycle errors. Transports localize by code.
const (
	CodeMissingFields      = "missing_fields"
	CodeInvalidField       = "invalid_field"
	CodeUnknownAssignee    = "unknown_assignee"
	CodeInvalidSchedule    = "invalid_schedule"
	CodeInvalidStatus      = "invalid_status"
	CodeUnknownSteps       = "unknown_checklist_steps"
	CodeInvalidTarget      = "invalid_delegation_target"
	CodeNotAssignee        = "not_assignee"
	CodeNotTarget          = "not_delegation_target"
	CodeNotDelegator       = "not_delegator"
	CodeNotAdmin           = "not_admin"
	CodeNotSelf            = "not_self"
	CodeMissionCompleted   = "mission_completed"
	CodeDelegationPending  = "delegation_pending"
	CodeDelegationNotReady = "delegation_not_pending"
	CodeDuplicateUser      = "duplicate_user"
)

type ValidationError struct {
	Code    string
	Fields  []string
	Message string
}

func (e ValidationError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%s: %s", e.message(), strings.Join(e.Fields, ", "))
	}
	return e.message()
}

func (e ValidationError) message() string {
	if e.Message != "" {
		return e.Message
	}
	return "validation failed"
}

type NotAuthorizedError struct {
	Code   string
	Reason string
}

func (e NotAuthorizedError) Error() string {
	if e.Reason == "" {
		return "not authorized"
	}
	return "not authorized: " + e.Reason
}

type NotFoundError struct {
	Entity string
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

type InvalidStateError struct {
	Code   string
	Reason string
}

func (e InvalidStateError) Error() string {
	return "invalid state: " + e.Reason
}

// Coder is implemented by every lifecycle error.
type Coder interface {
	ErrorCode() string
}

func (e ValidationError) ErrorCode() string    { return e.Code }
func (e NotAuthorizedError) ErrorCode() string { return e.Code }
func (e InvalidStateError) ErrorCode() string  { return e.Code }
func (e NotFoundError) ErrorCode() string      { return e.Entity + "_not_found" }
