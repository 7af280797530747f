package types

import "strings"

type StateStatus string

const (
	StateStatusPending   StateStatus = "pending"
	StateStatusRunning   StateStatus = "running"
	StateStatusDone      StateStatus = "done"
	StateStatusSucceeded StateStatus = "succeeded"
	StateStatusFailed    StateStatus = "failed"
	StateStatusCancelled StateStatus = "cancelled"
)

// NormalizeStateStatus lowercases and trims a raw status. "succeeded" is kept
// as written; IsSuccess treats it the same as "done".
func NormalizeStateStatus(raw string) StateStatus {
	return StateStatus(strings.ToLower(strings.TrimSpace(raw)))
}

func (s StateStatus) IsKnown() bool {
	switch s {
	case StateStatusPending, StateStatusRunning, StateStatusDone, StateStatusSucceeded,
		StateStatusFailed, StateStatusCancelled:
		return true
	}
	return false
}

func (s StateStatus) IsSuccess() bool {
	return s == StateStatusDone || s == StateStatusSucceeded
}

func (s StateStatus) IsTerminal() bool {
	return s.IsSuccess() || s == StateStatusFailed || s == StateStatusCancelled
}

// CanTransition reports whether a state document may move from s to next.
// Allowed: pending->running, running->{done,succeeded,failed}, and any
// non-terminal status -> cancelled. Re-writing the current status is allowed
// so that output or errors can be attached without a status change.
func (s StateStatus) CanTransition(next StateStatus) bool {
	if s == next {
		return true
	}
	if s.IsTerminal() {
		return false
	}
	if next == StateStatusCancelled {
		return true
	}
	switch s {
	case StateStatusPending:
		return next == StateStatusRunning
	case StateStatusRunning:
		return next.IsSuccess() || next == StateStatusFailed
	}
	return false
}

type WorkflowStatus string

const (
	WorkflowStatusActive    WorkflowStatus = "active"
	WorkflowStatusSucceeded WorkflowStatus = "succeeded"
	WorkflowStatusFailed    WorkflowStatus = "failed"
	WorkflowStatusPartial   WorkflowStatus = "partial"
	WorkflowStatusCancelled WorkflowStatus = "cancelled"
)

func NormalizeWorkflowStatus(raw string) WorkflowStatus {
	return WorkflowStatus(strings.ToLower(strings.TrimSpace(raw)))
}

// IsFinal reports whether s is acceptable as a finalize outcome.
func (s WorkflowStatus) IsFinal() bool {
	switch s {
	case WorkflowStatusSucceeded, WorkflowStatusFailed, WorkflowStatusPartial, WorkflowStatusCancelled:
		return true
	}
	return false
}
