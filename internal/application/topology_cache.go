package application

import (
	"context"
	"fmt"

	"github.com/Meesho/BharatMLStack/choreographer/internal/data/models"
	cerrors "github.com/Meesho/BharatMLStack/choreographer/internal/errors"
	"github.com/Meesho/BharatMLStack/choreographer/pkg/cache"
	"github.com/Meesho/BharatMLStack/choreographer/pkg/metric"
)

// topology is the part of WorkflowMeta that never changes after seeding.
type topology struct {
	Start       string
	States      []string
	Deps        map[string]models.Deps
	Fingerprint string
}

func (t topology) has(state string) bool {
	_, ok := t.Deps[state]
	return ok
}

func topologyOf(meta models.WorkflowMeta) topology {
	return topology{Start: meta.StartState, States: meta.States, Deps: meta.Deps, Fingerprint: meta.Fingerprint}
}

// topologyCache is keyed by workflow id. A nil backing cache disables it.
type topologyCache struct {
	c *cache.Cache
}

func newTopologyCache(c *cache.Cache) *topologyCache {
	return &topologyCache{c: c}
}

func (t *topologyCache) get(workflowID string) (topology, bool) {
	if t.c == nil {
		return topology{}, false
	}
	v, ok := t.c.Get(workflowID)
	metric.ObserveTopologyCache(ok)
	if !ok {
		return topology{}, false
	}
	topo, ok := v.(topology)
	return topo, ok
}

func (t *topologyCache) put(workflowID string, topo topology) {
	if t.c == nil {
		return
	}
	t.c.Set(workflowID, topo)
}

// loadTopology returns the dependency map, from cache when possible.
func (e *Engine) loadTopology(ctx context.Context, workflowID string) (topology, error) {
	if topo, ok := e.topology.get(workflowID); ok {
		return topo, nil
	}
	meta, _, err := e.docs.LoadMeta(ctx, workflowID)
	if err != nil {
		return topology{}, err
	}
	topo := topologyOf(meta)
	e.topology.put(workflowID, topo)
	return topo, nil
}

func unknownState(workflowID, state string) error {
	return fmt.Errorf("%w: state %q is not part of workflow %q", cerrors.ErrNotFound, state, workflowID)
}
