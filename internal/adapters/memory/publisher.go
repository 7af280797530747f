package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Meesho/BharatMLStack/choreographer/internal/data/models"
)

// Publisher keeps every published event in memory. It backs
// EVENTS_BACKEND=memory and the engine tests.
type Publisher struct {
	sequence uint64
	mu       sync.Mutex
	events   []models.WorkflowEvent
	failWith error
}

func NewPublisher() *Publisher {
	return &Publisher{}
}

func (p *Publisher) PublishWorkflowEvent(_ context.Context, event models.WorkflowEvent) (models.PublishResult, error) {
	if _, err := json.Marshal(event); err != nil {
		return models.PublishResult{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return models.PublishResult{}, p.failWith
	}
	p.events = append(p.events, event)
	id := atomic.AddUint64(&p.sequence, 1)
	return models.PublishResult{MessageID: fmt.Sprintf("msg-%d", id)}, nil
}

// Events returns a copy of everything published so far.
func (p *Publisher) Events() []models.WorkflowEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.WorkflowEvent(nil), p.events...)
}

// FailWith makes subsequent publishes return err. nil restores delivery.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failWith = err
}
