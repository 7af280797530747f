package api

import (
	"encoding/json"

	ctypes "github.com/Meesho/BharatMLStack/choreographer/internal/types"
)

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// SeedRequest carries the definition either as a JSON object or as a string
// holding JSON or YAML.
type SeedRequest struct {
	WorkflowID   string              `json:"workflow_id"`
	Definition   json.RawMessage     `json:"definition"`
	Capabilities map[string][]string `json:"capabilities,omitempty"`
	Executors    map[string]string   `json:"executors,omitempty"`
}

type AssignExecutorRequest struct {
	Executor string `json:"executor"`
}

type AcquireLeaseRequest struct {
	Owner               string `json:"owner"`
	TTLSeconds          int64  `json:"ttl_seconds,omitempty"`
	Token               string `json:"token,omitempty"`
	RequireReady        *bool  `json:"require_ready,omitempty"`
	RequireOwnerMatch   bool   `json:"require_owner_match,omitempty"`
	AllowStealIfExpired *bool  `json:"allow_steal_if_expired,omitempty"`
	SetRunning          *bool  `json:"set_running,omitempty"`
}

type RenewLeaseRequest struct {
	Token           string `json:"token"`
	TouchOnly       bool   `json:"touch_only,omitempty"`
	RejectIfExpired *bool  `json:"reject_if_expired,omitempty"`
	TTLSeconds      int64  `json:"ttl_seconds,omitempty"`
}

type ReleaseLeaseRequest struct {
	Token      string `json:"token,omitempty"`
	Force      bool   `json:"force,omitempty"`
	ClearOwner bool   `json:"clear_owner,omitempty"`
}

type UpdateStateRequest struct {
	Status        ctypes.StateStatus `json:"status,omitempty"`
	LeaseToken    string             `json:"lease_token,omitempty"`
	Output        json.RawMessage    `json:"output,omitempty"`
	Error         string             `json:"error,omitempty"`
	SetFinishedAt *bool              `json:"set_finished_at,omitempty"`
}

type NotifyRequest struct {
	SourceState      string `json:"source_state,omitempty"`
	IncludeOnlyReady *bool  `json:"include_only_ready,omitempty"`
}

type FinalizeRequest struct {
	CloseOpenStates *bool                 `json:"close_open_states,omitempty"`
	DeleteExecutors *bool                 `json:"delete_executors,omitempty"`
	StatusOverride  ctypes.WorkflowStatus `json:"status_override,omitempty"`
	Note            string                `json:"note,omitempty"`
}
