package lifecycle

import (
	"strings"

	"missiondesk/internal/domain"
)

// Policy settles the two delegation behaviours operators disagree on.
type Policy struct {
	// AllowRetarget lets the assignee replace a PENDING proposal with a new one.
	AllowRetarget bool
	// AllowClearPending lets the delegator withdraw a proposal before it is answered.
	AllowClearPending bool
}

func DefaultPolicy() Policy {
	return Policy{AllowRetarget: false, AllowClearPending: true}
}

// Propose opens a delegation cycle from the current assignee to target.
// Neither the assignee nor the status change until the target accepts.
func Propose(m *domain.Mission, initiatorID, targetID, reason string, p Policy) error {
	if initiatorID == "" || initiatorID != m.AssignedTo {
		return NotAuthorizedError{Code: CodeNotAssignee, Reason: "only the assignee can delegate"}
	}
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return ValidationError{Code: CodeMissingFields, Fields: []string{"targetUserId"}, Message: "delegation target required"}
	}
	if targetID == initiatorID {
		return ValidationError{Code: CodeInvalidTarget, Fields: []string{"targetUserId"}, Message: "cannot delegate to yourself"}
	}
	if m.Status.Terminal() {
		return InvalidStateError{Code: CodeMissionCompleted, Reason: "mission is completed"}
	}
	if m.HasDelegationStatus(domain.DelegationPending) && !p.AllowRetarget {
		return InvalidStateError{Code: CodeDelegationPending, Reason: "a delegation is already pending"}
	}
	pending := domain.DelegationPending
	m.DelegatedBy = &initiatorID
	m.DelegationTarget = &targetID
	m.DelegationReason = &reason
	m.DelegationStatus = &pending
	m.DelegationCount++
	return nil
}

// Accept transfers the mission to the delegation target.
func Accept(m *domain.Mission, userID string) error {
	if err := checkTarget(m, userID); err != nil {
		return err
	}
	accepted := domain.DelegationAccepted
	m.AssignedTo = userID
	m.DelegationStatus = &accepted
	return nil
}

// Reject declines the proposal; the delegator stays assigned.
func Reject(m *domain.Mission, userID string) error {
	if err := checkTarget(m, userID); err != nil {
		return err
	}
	rejected := domain.DelegationRejected
	m.DelegationStatus = &rejected
	return nil
}

// Clear resets the delegation fields. delegation_count is kept, so a mission
// that was delegated once keeps appending reports.
func Clear(m *domain.Mission, userID string, p Policy) (wasPending bool, err error) {
	if userID == "" || m.DelegatedBy == nil || *m.DelegatedBy != userID {
		return false, NotAuthorizedError{Code: CodeNotDelegator, Reason: "only the delegator can clear the delegation"}
	}
	wasPending = m.HasDelegationStatus(domain.DelegationPending)
	if wasPending && !p.AllowClearPending {
		return false, InvalidStateError{Code: CodeDelegationPending, Reason: "delegation is still pending"}
	}
	m.DelegatedBy = nil
	m.DelegationTarget = nil
	m.DelegationReason = nil
	m.DelegationStatus = nil
	return wasPending, nil
}

func checkTarget(m *domain.Mission, userID string) error {
	if userID == "" || m.DelegationTarget == nil || *m.DelegationTarget != userID {
		return NotAuthorizedError{Code: CodeNotTarget, Reason: "mission was not delegated to this user"}
	}
	if !m.HasDelegationStatus(domain.DelegationPending) {
		return InvalidStateError{Code: CodeDelegationNotReady, Reason: "delegation is not pending"}
	}
	return nil
}
