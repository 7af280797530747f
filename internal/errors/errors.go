package errors

import "errors"

var (
	ErrNotFound          = errors.New("document not found")
	ErrAlreadyExists     = errors.New("document already exists")
	ErrCASConflict       = errors.New("compare-and-swap conflict")
	ErrContention        = errors.New("compare-and-swap retry budget exhausted")
	ErrInvalidGraph      = errors.New("invalid state machine")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrWorkflowConflict  = errors.New("workflow id already seeded with a different graph")
	ErrWorkflowFinalized = errors.New("workflow already finalized")
	ErrInvalidProfile    = errors.New("invalid complexity profile")
	ErrStoreUnavailable  = errors.New("document store unavailable")
)
