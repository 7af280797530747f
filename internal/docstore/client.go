package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Meesho/BharatMLStack/choreographer/internal/data/models"
	cerrors "github.com/Meesho/BharatMLStack/choreographer/internal/errors"
	"github.com/Meesho/BharatMLStack/choreographer/internal/ports"
)

// Client is the typed JSON view over a DocumentStore. Every load returns the
// version the caller must present to the matching CAS.
type Client struct {
	store ports.DocumentStore
	keys  Keyspace
}

func New(store ports.DocumentStore, prefix string) *Client {
	return &Client{store: store, keys: NewKeyspace(prefix)}
}

func (c *Client) Keys() Keyspace { return c.keys }

func (c *Client) Close() error { return c.store.Close() }

func (c *Client) LoadMeta(ctx context.Context, workflowID string) (models.WorkflowMeta, int64, error) {
	return load[models.WorkflowMeta](ctx, c.store, c.keys.Meta(workflowID))
}

// CreateMeta returns the stored meta and created=false if one already exists.
func (c *Client) CreateMeta(ctx context.Context, meta models.WorkflowMeta) (models.WorkflowMeta, int64, bool, error) {
	return create(ctx, c.store, c.keys.Meta(meta.WorkflowID), meta)
}

func (c *Client) CASMeta(ctx context.Context, version int64, meta models.WorkflowMeta) (int64, bool, error) {
	return swap(ctx, c.store, c.keys.Meta(meta.WorkflowID), version, meta)
}

func (c *Client) LoadState(ctx context.Context, workflowID, state string) (models.StateDocument, int64, error) {
	return load[models.StateDocument](ctx, c.store, c.keys.State(workflowID, state))
}

func (c *Client) CreateState(ctx context.Context, doc models.StateDocument) (models.StateDocument, int64, bool, error) {
	return create(ctx, c.store, c.keys.State(doc.WorkflowID, doc.Name), doc)
}

func (c *Client) CASState(ctx context.Context, version int64, doc models.StateDocument) (int64, bool, error) {
	return swap(ctx, c.store, c.keys.State(doc.WorkflowID, doc.Name), version, doc)
}

func (c *Client) LoadOutput(ctx context.Context, workflowID, state string) (models.OutputRecord, int64, error) {
	return load[models.OutputRecord](ctx, c.store, c.keys.Output(workflowID, state))
}

func (c *Client) GetOutput(ctx context.Context, workflowID, state string) (models.OutputRecord, error) {
	rec, _, err := c.LoadOutput(ctx, workflowID, state)
	return rec, err
}

// CreateOutput writes the first output of a state; created=false returns the
// record already stored.
func (c *Client) CreateOutput(ctx context.Context, rec models.OutputRecord) (models.OutputRecord, int64, bool, error) {
	return create(ctx, c.store, c.keys.Output(rec.WorkflowID, rec.State), rec)
}

func (c *Client) CASOutput(ctx context.Context, version int64, rec models.OutputRecord) (int64, bool, error) {
	return swap(ctx, c.store, c.keys.Output(rec.WorkflowID, rec.State), version, rec)
}

// CreateAudit writes the audit record once; later calls get the stored one.
func (c *Client) CreateAudit(ctx context.Context, rec models.AuditRecord) (models.AuditRecord, bool, error) {
	stored, _, created, err := create(ctx, c.store, c.keys.Audit(rec.WorkflowID), rec)
	return stored, created, err
}

func (c *Client) GetAudit(ctx context.Context, workflowID string) (models.AuditRecord, error) {
	rec, _, err := load[models.AuditRecord](ctx, c.store, c.keys.Audit(workflowID))
	return rec, err
}

func (c *Client) PutTier(ctx context.Context, rec models.TierRecord) error {
	return put(ctx, c.store, c.keys.Tier(rec.WorkflowID, rec.State), rec)
}

func (c *Client) ListTiers(ctx context.Context, workflowID string) ([]models.TierRecord, error) {
	docs, err := c.store.List(ctx, c.keys.TierPrefix(workflowID))
	if err != nil {
		return nil, err
	}
	out := make([]models.TierRecord, 0, len(docs))
	for _, doc := range docs {
		var rec models.TierRecord
		if err := json.Unmarshal(doc.Value, &rec); err != nil {
			return nil, fmt.Errorf("decode %s: %w", doc.Key, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func load[T any](ctx context.Context, store ports.DocumentStore, key string) (T, int64, error) {
	var out T
	doc, err := store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, cerrors.ErrNotFound) {
			return out, 0, fmt.Errorf("%w: %s", cerrors.ErrNotFound, key)
		}
		return out, 0, err
	}
	if err := json.Unmarshal(doc.Value, &out); err != nil {
		return out, 0, fmt.Errorf("decode %s: %w", key, err)
	}
	return out, doc.Version, nil
}

func create[T any](ctx context.Context, store ports.DocumentStore, key string, value T) (T, int64, bool, error) {
	var out T
	body, err := json.Marshal(value)
	if err != nil {
		return out, 0, false, fmt.Errorf("encode %s: %w", key, err)
	}
	doc, created, err := store.Create(ctx, key, body)
	if err != nil {
		return out, 0, false, err
	}
	stored := doc.Value
	if created {
		stored = body
	}
	if err := json.Unmarshal(stored, &out); err != nil {
		return out, 0, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return out, doc.Version, created, nil
}

func swap[T any](ctx context.Context, store ports.DocumentStore, key string, version int64, value T) (int64, bool, error) {
	body, err := json.Marshal(value)
	if err != nil {
		return 0, false, fmt.Errorf("encode %s: %w", key, err)
	}
	doc, applied, err := store.CompareAndSwap(ctx, key, version, body)
	if err != nil {
		return 0, false, err
	}
	return doc.Version, applied, nil
}

func put[T any](ctx context.Context, store ports.DocumentStore, key string, value T) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	_, err = store.Put(ctx, key, body)
	return err
}
