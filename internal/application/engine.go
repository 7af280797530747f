package application

import (
	"context"
	"fmt"
	"time"

	"github.com/Meesho/BharatMLStack/choreographer/internal/complexity"
	"github.com/Meesho/BharatMLStack/choreographer/internal/data/models"
	"github.com/Meesho/BharatMLStack/choreographer/internal/docstore"
	cerrors "github.com/Meesho/BharatMLStack/choreographer/internal/errors"
	"github.com/Meesho/BharatMLStack/choreographer/internal/ports"
	ctypes "github.com/Meesho/BharatMLStack/choreographer/internal/types"
	"github.com/Meesho/BharatMLStack/choreographer/pkg/cache"
	"github.com/Meesho/BharatMLStack/choreographer/pkg/metric"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Config carries every tunable the engine uses. It is passed in at
// construction; the engine never reads the environment.
type Config struct {
	DefaultLeaseTTL time.Duration
	CASMaxAttempts  int
	CASBackoffBase  time.Duration
	CASBackoffMax   time.Duration
}

func DefaultConfig() Config {
	return Config{
		DefaultLeaseTTL: 60 * time.Second,
		CASMaxAttempts:  5,
		CASBackoffBase:  10 * time.Millisecond,
		CASBackoffMax:   200 * time.Millisecond,
	}
}

func (c Config) Validate() error {
	if c.DefaultLeaseTTL < time.Second {
		return fmt.Errorf("%w: default lease ttl must be at least 1s, got %s", cerrors.ErrInvalidRequest, c.DefaultLeaseTTL)
	}
	if c.CASMaxAttempts < 1 {
		return fmt.Errorf("%w: cas max attempts must be positive, got %d", cerrors.ErrInvalidRequest, c.CASMaxAttempts)
	}
	if c.CASBackoffBase <= 0 || c.CASBackoffMax < c.CASBackoffBase {
		return fmt.Errorf("%w: cas backoff must satisfy 0 < base <= max, got %s/%s", cerrors.ErrInvalidRequest, c.CASBackoffBase, c.CASBackoffMax)
	}
	return nil
}

// Engine is the choreography control plane. It holds no workflow state of
// its own: every call is parameterized by workflow id and re-reads the store.
type Engine struct {
	docs      *docstore.Client
	cfg       Config
	now       func() time.Time
	newToken  func() string
	topology  *topologyCache
	publisher ports.EventPublisher
	runtime   ports.ExecutorRuntime
	scorer    *complexity.Scorer
	storeKind string
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithTokenGenerator(gen func() string) Option {
	return func(e *Engine) { e.newToken = gen }
}

// WithTopologyCache caches the immutable dependency map of each workflow.
func WithTopologyCache(c *cache.Cache) Option {
	return func(e *Engine) { e.topology = newTopologyCache(c) }
}

func WithPublisher(p ports.EventPublisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func WithRuntime(r ports.ExecutorRuntime) Option {
	return func(e *Engine) { e.runtime = r }
}

func WithTierCatalog(c complexity.TierCatalog) Option {
	return func(e *Engine) { e.scorer = complexity.NewScorer(c) }
}

// WithStoreKind tags CAS conflict metrics with the backing store.
func WithStoreKind(kind ctypes.StoreBackend) Option {
	return func(e *Engine) { e.storeKind = string(kind) }
}

func NewEngine(docs *docstore.Client, cfg Config, opts ...Option) (*Engine, error) {
	if docs == nil {
		return nil, fmt.Errorf("%w: document store client is required", cerrors.ErrInvalidRequest)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		docs:      docs,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
		newToken:  uuid.NewString,
		topology:  newTopologyCache(nil),
		scorer:    complexity.NewScorer(complexity.DefaultTierCatalog()),
		storeKind: string(ctypes.StoreBackendMemory),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) Keys() docstore.Keyspace { return e.docs.Keys() }

// observe records one operation's outcome and latency. Use with defer.
func (e *Engine) observe(operation string, outcome *ctypes.Outcome, err *error, start time.Time) {
	label := string(*outcome)
	if label == "" {
		label = "error"
		if *err == nil {
			label = "ok"
		}
	}
	metric.ObserveOperation(operation, label, time.Since(start))
}

func (e *Engine) GetWorkflow(ctx context.Context, workflowID string) (models.WorkflowMeta, error) {
	meta, _, err := e.docs.LoadMeta(ctx, workflowID)
	return meta, err
}

func (e *Engine) GetState(ctx context.Context, workflowID, state string) (models.StateDocument, error) {
	doc, _, err := e.docs.LoadState(ctx, workflowID, state)
	return doc, err
}

func (e *Engine) GetOutput(ctx context.Context, workflowID, state string) (models.OutputRecord, error) {
	return e.docs.GetOutput(ctx, workflowID, state)
}

func (e *Engine) GetAudit(ctx context.Context, workflowID string) (models.AuditRecord, error) {
	return e.docs.GetAudit(ctx, workflowID)
}

// ScoreComplexity exposes the tier scorer without touching the store.
func (e *Engine) ScoreComplexity(req complexity.Request) (complexity.Result, error) {
	return e.scorer.Score(req)
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func timePtr(t time.Time) *time.Time { return &t }

func requireIDs(workflowID, state string) error {
	if workflowID == "" {
		return fmt.Errorf("%w: workflow id is required", cerrors.ErrInvalidRequest)
	}
	if state == "" {
		return fmt.Errorf("%w: state is required", cerrors.ErrInvalidRequest)
	}
	return nil
}

func logOutcome(operation, workflowID, state string, outcome ctypes.Outcome) {
	event := log.Debug()
	if outcome.IsSuccess() {
		event = log.Info()
	}
	event.Str("operation", operation).
		Str("workflow_id", workflowID).
		Str("state", state).
		Str("outcome", string(outcome)).
		Msg("engine operation completed")
}
