package models

import (
	"encoding/json"
	"time"

	ctypes "github.com/Meesho/BharatMLStack/choreographer/internal/types"
)

// Deps is the direct adjacency of one state in the task graph.
type Deps struct {
	Upstream   []string `json:"upstream"`
	Downstream []string `json:"downstream"`
}

type WorkflowMeta struct {
	WorkflowID   string                `json:"workflow_id"`
	StartState   string                `json:"start_state"`
	States       []string              `json:"states"`
	Terminal     []string              `json:"terminal_states"`
	Deps         map[string]Deps       `json:"deps"`
	Executors    map[string]string     `json:"executors"`
	Capabilities map[string][]string   `json:"capabilities,omitempty"`
	Fingerprint  string                `json:"fingerprint"`
	Status       ctypes.WorkflowStatus `json:"status"`
	CreatedAt    time.Time             `json:"created_at"`
	FinalizedAt  *time.Time            `json:"finalized_at"`
}

// HasState reports whether name is one of the seeded states.
func (m WorkflowMeta) HasState(name string) bool {
	_, ok := m.Deps[name]
	return ok
}

type Lease struct {
	Token      string     `json:"token"`
	Owner      string     `json:"owner"`
	AcquiredAt time.Time  `json:"acquired_at"`
	TTLSeconds int64      `json:"ttl_seconds"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}

func (l Lease) TTL() time.Duration {
	return time.Duration(l.TTLSeconds) * time.Second
}

func (l Lease) ExpiresAt() time.Time {
	return l.AcquiredAt.Add(l.TTL())
}

// Expired is true once more than TTL has elapsed since acquisition.
func (l Lease) Expired(now time.Time) bool {
	return now.Sub(l.AcquiredAt) > l.TTL()
}

type ErrorRecord struct {
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

type StateDocument struct {
	WorkflowID string             `json:"workflow_id"`
	Name       string             `json:"name"`
	Status     ctypes.StateStatus `json:"status"`
	Attempts   int                `json:"attempts"`
	Lease      *Lease             `json:"lease"`
	StartedAt  *time.Time         `json:"started_at"`
	FinishedAt *time.Time         `json:"finished_at"`
	Errors     []ErrorRecord      `json:"errors"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// LastError returns the most recent error message, or "".
func (d StateDocument) LastError() string {
	if len(d.Errors) == 0 {
		return ""
	}
	return d.Errors[len(d.Errors)-1].Message
}

type OutputRecord struct {
	WorkflowID string          `json:"workflow_id"`
	State      string          `json:"state"`
	Attempt    int             `json:"attempt"`
	Payload    json.RawMessage `json:"payload"`
	WrittenAt  time.Time       `json:"written_at"`
}

type TierRecord struct {
	WorkflowID string    `json:"workflow_id"`
	State      string    `json:"state"`
	Tier       int       `json:"tier"`
	TierName   string    `json:"tier_name"`
	Score      float64   `json:"score"`
	Capped     bool      `json:"capped"`
	Cost       float64   `json:"cost"`
	RecordedAt time.Time `json:"recorded_at"`
}

type StateOutcome struct {
	Status     ctypes.StateStatus `json:"status"`
	Attempts   int                `json:"attempts"`
	Executor   string             `json:"executor,omitempty"`
	StartedAt  *time.Time         `json:"started_at,omitempty"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
	LastError  string             `json:"last_error,omitempty"`
	Closed     bool               `json:"closed_by_finalizer,omitempty"`
}

type CostSummary struct {
	StatesByTier map[string]int `json:"states_by_tier"`
	TotalCost    float64        `json:"total_cost"`
	MaxTier      int            `json:"max_tier"`
}

type ExecutorTeardown struct {
	Executor  string `json:"executor"`
	Requested bool   `json:"requested"`
	Succeeded bool   `json:"succeeded"`
	Error     string `json:"error,omitempty"`
}

type AuditRecord struct {
	WorkflowID  string                  `json:"workflow_id"`
	FinalStatus ctypes.WorkflowStatus   `json:"final_status"`
	Overridden  bool                    `json:"overridden,omitempty"`
	States      map[string]StateOutcome `json:"states"`
	Cost        *CostSummary            `json:"cost,omitempty"`
	Executors   []ExecutorTeardown      `json:"executors,omitempty"`
	Note        string                  `json:"note,omitempty"`
	FinalizedAt time.Time               `json:"finalized_at"`
}

type StoreKeys struct {
	MetaKey   string `json:"metaKey"`
	StateKey  string `json:"stateKey"`
	OutputKey string `json:"outputKey"`
}

// WorkflowEvent is the coordination message delivered to the executor that
// owns TargetState. It never embeds application payload.
type WorkflowEvent struct {
	Type           string             `json:"type"`
	WorkflowID     string             `json:"workflowId"`
	TargetState    string             `json:"targetState"`
	SourceState    *string            `json:"sourceState"`
	Reason         ctypes.EventReason `json:"reason"`
	TargetExecutor string             `json:"targetExecutor,omitempty"`
	StoreKeys      StoreKeys          `json:"storeKeys"`
	EmittedAt      time.Time          `json:"emittedAt"`
}

const WorkflowEventType = "workflow_event"

type PublishResult struct {
	MessageID string
}
