package docstore

import (
	"net/url"
	"strings"
)

// Keyspace lays out every document of a workflow under one prefix:
//
//	<prefix>/workflows/<wf>/meta
//	<prefix>/workflows/<wf>/states/<state>
//	<prefix>/workflows/<wf>/outputs/<state>
//	<prefix>/workflows/<wf>/tiers/<state>
//	<prefix>/workflows/<wf>/audit
//
// Workflow ids and state names are path-escaped.
type Keyspace struct {
	prefix string
}

func NewKeyspace(prefix string) Keyspace {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = "/choreographer"
	}
	return Keyspace{prefix: prefix}
}

func (k Keyspace) Prefix() string { return k.prefix }

func (k Keyspace) Workflow(workflowID string) string {
	return k.prefix + "/workflows/" + url.PathEscape(workflowID) + "/"
}

func (k Keyspace) Meta(workflowID string) string {
	return k.Workflow(workflowID) + "meta"
}

func (k Keyspace) StatePrefix(workflowID string) string {
	return k.Workflow(workflowID) + "states/"
}

func (k Keyspace) State(workflowID, state string) string {
	return k.StatePrefix(workflowID) + url.PathEscape(state)
}

func (k Keyspace) Output(workflowID, state string) string {
	return k.Workflow(workflowID) + "outputs/" + url.PathEscape(state)
}

func (k Keyspace) TierPrefix(workflowID string) string {
	return k.Workflow(workflowID) + "tiers/"
}

func (k Keyspace) Tier(workflowID, state string) string {
	return k.TierPrefix(workflowID) + url.PathEscape(state)
}

func (k Keyspace) Audit(workflowID string) string {
	return k.Workflow(workflowID) + "audit"
}
