package agentruntime

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// MockRuntime stands in for an agent runtime until a real teardown API is
// wired. It records every teardown request.
type MockRuntime struct {
	mu       sync.Mutex
	requests []Teardown
	failures map[string]error
}

type Teardown struct {
	WorkflowID string
	Executor   string
}

func NewMockRuntime() *MockRuntime {
	return &MockRuntime{failures: make(map[string]error)}
}

func (m *MockRuntime) TeardownExecutor(_ context.Context, workflowID, executor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, Teardown{WorkflowID: workflowID, Executor: executor})
	if err, ok := m.failures[executor]; ok {
		return err
	}
	log.Debug().Str("workflow_id", workflowID).Str("executor", executor).Msg("mock runtime teardown")
	return nil
}

// FailFor makes subsequent teardowns of executor return err.
func (m *MockRuntime) FailFor(executor string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[executor] = err
}

func (m *MockRuntime) Requests() []Teardown {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Teardown, len(m.requests))
	copy(out, m.requests)
	return out
}
