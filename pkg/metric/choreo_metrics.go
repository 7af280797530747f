package metric

import (
	"strconv"
	"time"
)

const (
	APIRequestCount        = "api_request_count"
	APIRequestLatency      = "api_request_latency"
	OperationCount         = "choreo_operation_count"
	OperationLatency       = "choreo_operation_latency"
	CASConflictCount       = "choreo_cas_conflict_count"
	EventPublishCount      = "choreo_event_publish_count"
	TopologyCacheHitCount  = "choreo_topology_cache_hit_count"
	TopologyCacheMissCount = "choreo_topology_cache_miss_count"
)

func ObserveAPIRequest(path, method string, statusCode int, latency time.Duration) {
	tags := BuildTag(
		NewTag(TagPath, path),
		NewTag(TagMethod, method),
		NewTag(TagHttpStatusCode, strconv.Itoa(statusCode)),
		NewTag(TagCommunicationProtocol, TagValueCommunicationProtocolHttp),
	)
	Incr(APIRequestCount, tags)
	Timing(APIRequestLatency, latency, tags)
}

// ObserveOperation records one engine operation and the outcome it produced.
func ObserveOperation(operation, outcome string, latency time.Duration) {
	tags := BuildTag(
		NewTag(TagOperation, operation),
		NewTag(TagOutcome, outcome),
	)
	Incr(OperationCount, tags)
	Timing(OperationLatency, latency, tags)
}

func IncCASConflict(operation, storeKind string) {
	Incr(CASConflictCount, BuildTag(
		NewTag(TagOperation, operation),
		NewTag(TagStoreKind, storeKind),
	))
}

func ObserveEventPublish(succeeded bool) {
	result := TagValueSuccess
	if !succeeded {
		result = TagValueFailure
	}
	Incr(EventPublishCount, BuildTag(NewTag(TagResult, result)))
}

func ObserveTopologyCache(hit bool) {
	if hit {
		Incr(TopologyCacheHitCount, nil)
		return
	}
	Incr(TopologyCacheMissCount, nil)
}
