package types

// Outcome is the closed set of protocol results returned by engine
// operations. Callers switch on it instead of inspecting errors.
type Outcome string

const (
	OutcomeAcquired          Outcome = "acquired"
	OutcomeStolen            Outcome = "stolen"
	OutcomeAlreadyHeld       Outcome = "already_held"
	OutcomeNotReady          Outcome = "not_ready"
	OutcomeOwnerMismatch     Outcome = "owner_mismatch"
	OutcomeLeaseHeld         Outcome = "lease_held"
	OutcomeLeaseExpired      Outcome = "lease_expired"
	OutcomeStaleToken        Outcome = "stale_token"
	OutcomeNoLease           Outcome = "no_lease"
	OutcomeRenewed           Outcome = "renewed"
	OutcomeTouched           Outcome = "touched"
	OutcomeReleased          Outcome = "released"
	OutcomeUpdated           Outcome = "updated"
	OutcomeContention        Outcome = "contention"
	OutcomeFinalized         Outcome = "finalized"
	OutcomeAlreadyFinalized  Outcome = "already_finalized"
	OutcomeExecutorAssigned  Outcome = "executor_assigned"
	OutcomeExecutorUnchanged Outcome = "executor_unchanged"
)

// IsSuccess reports whether the operation took (or already had) effect.
func (o Outcome) IsSuccess() bool {
	switch o {
	case OutcomeAcquired, OutcomeStolen, OutcomeAlreadyHeld, OutcomeRenewed, OutcomeTouched,
		OutcomeReleased, OutcomeUpdated, OutcomeFinalized, OutcomeAlreadyFinalized,
		OutcomeExecutorAssigned, OutcomeExecutorUnchanged:
		return true
	}
	return false
}

type EventReason string

const (
	EventReasonInitial      EventReason = "initial"
	EventReasonUpstreamDone EventReason = "upstream_done"
)

type StoreBackend string

const (
	StoreBackendMemory StoreBackend = "memory"
	StoreBackendEtcd   StoreBackend = "etcd"
	StoreBackendRedis  StoreBackend = "redis"
)
