package ports

import (
	"context"

	"github.com/Meesho/BharatMLStack/choreographer/internal/data/models"
)

// Document is one stored value plus the opaque version marker that guards
// conditional writes. Versions strictly increase per key.
type Document struct {
	Key     string
	Value   []byte
	Version int64
}

// DocumentStore is the only concurrency primitive the engine relies on:
// read-with-version and write-if-version-unchanged. Implementations must
// make every write all-or-nothing per document.
type DocumentStore interface {
	Get(ctx context.Context, key string) (Document, error)
	List(ctx context.Context, prefix string) ([]Document, error)
	// Create writes value only if key is absent. When the key already exists
	// created is false and the current document is returned untouched.
	Create(ctx context.Context, key string, value []byte) (doc Document, created bool, err error)
	// CompareAndSwap writes value only if the stored version still equals
	// expectedVersion. applied is false on conflict or if the key vanished.
	CompareAndSwap(ctx context.Context, key string, expectedVersion int64, value []byte) (doc Document, applied bool, err error)
	Put(ctx context.Context, key string, value []byte) (Document, error)
	Close() error
}

type EventPublisher interface {
	PublishWorkflowEvent(ctx context.Context, event models.WorkflowEvent) (models.PublishResult, error)
}

// ExecutorRuntime is the agent-runtime collaborator that owns executor
// lifecycles. The engine only asks it to tear executors down at finalize.
type ExecutorRuntime interface {
	TeardownExecutor(ctx context.Context, workflowID, executor string) error
}
