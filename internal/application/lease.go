package application

import (
	"context"
	"fmt"
	"time"

	"github.com/Meesho/BharatMLStack/choreographer/internal/data/models"
	cerrors "github.com/Meesho/BharatMLStack/choreographer/internal/errors"
	ctypes "github.com/Meesho/BharatMLStack/choreographer/internal/types"
	"github.com/rs/zerolog/log"
)

type AcquireRequest struct {
	WorkflowID string
	State      string
	Owner      string
	// TTL of zero uses the configured default.
	TTL time.Duration
	// Token is optional. A caller that retries the same logical request
	// with the same token gets already_held instead of a second lease.
	Token               string
	RequireReady        *bool // default true
	RequireOwnerMatch   bool
	AllowStealIfExpired *bool // default true
	SetRunning          *bool // default true
}

type AcquireResult struct {
	Outcome       ctypes.Outcome   `json:"outcome"`
	Token         string           `json:"token,omitempty"`
	Owner         string           `json:"owner,omitempty"`
	AcquiredAt    *time.Time       `json:"acquired_at,omitempty"`
	ExpiresAt     *time.Time       `json:"expires_at,omitempty"`
	Attempts      int              `json:"attempts"`
	PreviousOwner string           `json:"previous_owner,omitempty"`
	HeldBy        string           `json:"held_by,omitempty"`
	AssignedTo    string           `json:"assigned_to,omitempty"`
	Readiness     *ReadinessResult `json:"readiness,omitempty"`
}

type RenewRequest struct {
	WorkflowID string
	State      string
	Token      string
	// TouchOnly records a heartbeat without extending the lease.
	TouchOnly       bool
	RejectIfExpired *bool // default true
	// TTL, when positive, replaces the lease TTL on renewal.
	TTL time.Duration
}

type RenewResult struct {
	Outcome    ctypes.Outcome `json:"outcome"`
	AcquiredAt *time.Time     `json:"acquired_at,omitempty"`
	ExpiresAt  *time.Time     `json:"expires_at,omitempty"`
	LastSeenAt *time.Time     `json:"last_seen_at,omitempty"`
}

type ReleaseRequest struct {
	WorkflowID string
	State      string
	Token      string
	Force      bool
	// ClearOwner also removes the executor assignment from meta.
	ClearOwner bool
}

type ReleaseResult struct {
	Outcome       ctypes.Outcome `json:"outcome"`
	PreviousOwner string         `json:"previous_owner,omitempty"`
	OwnerCleared  bool           `json:"owner_cleared"`
}

// AcquireLease claims state for req.Owner. Exactly one of any set of
// concurrent callers gets acquired or stolen; the rest see lease_held,
// already_held, or contention.
func (e *Engine) AcquireLease(ctx context.Context, req AcquireRequest) (res AcquireResult, err error) {
	defer e.observe("acquire_lease", &res.Outcome, &err, time.Now())

	if err := requireIDs(req.WorkflowID, req.State); err != nil {
		return res, err
	}
	if req.Owner == "" {
		return res, fmt.Errorf("%w: owner is required", cerrors.ErrInvalidRequest)
	}
	ttl := req.TTL
	if ttl == 0 {
		ttl = e.cfg.DefaultLeaseTTL
	}
	if ttl < time.Second {
		return res, fmt.Errorf("%w: ttl must be at least 1s, got %s", cerrors.ErrInvalidRequest, ttl)
	}
	topo, err := e.loadTopology(ctx, req.WorkflowID)
	if err != nil {
		return res, err
	}
	if !topo.has(req.State) {
		return res, unknownState(req.WorkflowID, req.State)
	}

	err = e.casLoop(ctx, "acquire_lease", func() error {
		res = AcquireResult{}
		doc, version, err := e.docs.LoadState(ctx, req.WorkflowID, req.State)
		if err != nil {
			return err
		}
		if doc.Status.IsTerminal() {
			return fmt.Errorf("%w: state %q is already %s", cerrors.ErrInvalidTransition, req.State, doc.Status)
		}
		res.Attempts = doc.Attempts

		if boolOr(req.RequireReady, true) {
			ready, err := e.readiness(ctx, req.WorkflowID, req.State, topo)
			if err != nil {
				return err
			}
			if !ready.Ready {
				res.Outcome = ctypes.OutcomeNotReady
				res.Readiness = &ready
				return nil
			}
		}
		if req.RequireOwnerMatch {
			meta, _, err := e.docs.LoadMeta(ctx, req.WorkflowID)
			if err != nil {
				return err
			}
			if assigned := meta.Executors[req.State]; assigned != req.Owner {
				res.Outcome = ctypes.OutcomeOwnerMismatch
				res.AssignedTo = assigned
				return nil
			}
		}

		now := e.now()
		outcome := ctypes.OutcomeAcquired
		if lease := doc.Lease; lease != nil {
			if !lease.Expired(now) {
				if lease.Owner == req.Owner && (req.Token == "" || req.Token == lease.Token) {
					res.Outcome = ctypes.OutcomeAlreadyHeld
					fillLease(&res, *lease)
					return nil
				}
				res.Outcome = ctypes.OutcomeLeaseHeld
				res.HeldBy = lease.Owner
				res.ExpiresAt = timePtr(lease.ExpiresAt())
				return nil
			}
			if !boolOr(req.AllowStealIfExpired, true) {
				res.Outcome = ctypes.OutcomeLeaseHeld
				res.HeldBy = lease.Owner
				res.ExpiresAt = timePtr(lease.ExpiresAt())
				return nil
			}
			outcome = ctypes.OutcomeStolen
			res.PreviousOwner = lease.Owner
		}

		token := req.Token
		if token == "" {
			token = e.newToken()
		}
		lease := models.Lease{
			Token:      token,
			Owner:      req.Owner,
			AcquiredAt: now,
			TTLSeconds: int64(ttl / time.Second),
		}
		doc.Lease = &lease
		doc.Attempts++
		if boolOr(req.SetRunning, true) {
			doc.Status = ctypes.StateStatusRunning
			doc.StartedAt = timePtr(now)
		}
		doc.UpdatedAt = now

		_, applied, err := e.docs.CASState(ctx, version, doc)
		if err != nil {
			return err
		}
		if !applied {
			log.Debug().Str("workflow_id", req.WorkflowID).Str("state", req.State).
				Int64("version_before", version).Msg("acquire lost the race")
			return cerrors.ErrCASConflict
		}
		res.Outcome = outcome
		res.Attempts = doc.Attempts
		fillLease(&res, lease)
		return nil
	})
	if err != nil {
		if isContention(err) {
			res.Outcome = ctypes.OutcomeContention
		}
		return res, err
	}
	logOutcome("acquire_lease", req.WorkflowID, req.State, res.Outcome)
	if res.Outcome == ctypes.OutcomeAcquired || res.Outcome == ctypes.OutcomeStolen {
		log.Debug().Str("workflow_id", req.WorkflowID).Str("state", req.State).
			Str("owner", req.Owner).Str("token", res.Token).Int("attempt", res.Attempts).Msg("lease granted")
	}
	return res, nil
}

func fillLease(res *AcquireResult, lease models.Lease) {
	res.Token = lease.Token
	res.Owner = lease.Owner
	res.AcquiredAt = timePtr(lease.AcquiredAt)
	res.ExpiresAt = timePtr(lease.ExpiresAt())
}

// RenewLease extends (or just touches) a lease the caller still holds.
func (e *Engine) RenewLease(ctx context.Context, req RenewRequest) (res RenewResult, err error) {
	defer e.observe("renew_lease", &res.Outcome, &err, time.Now())

	if err := requireIDs(req.WorkflowID, req.State); err != nil {
		return res, err
	}
	if req.Token == "" {
		return res, fmt.Errorf("%w: token is required", cerrors.ErrInvalidRequest)
	}
	if req.TTL < 0 {
		return res, fmt.Errorf("%w: ttl must not be negative", cerrors.ErrInvalidRequest)
	}

	err = e.casLoop(ctx, "renew_lease", func() error {
		res = RenewResult{}
		doc, version, err := e.docs.LoadState(ctx, req.WorkflowID, req.State)
		if err != nil {
			return err
		}
		lease := doc.Lease
		switch {
		case lease == nil:
			res.Outcome = ctypes.OutcomeNoLease
			return nil
		case lease.Token != req.Token:
			res.Outcome = ctypes.OutcomeStaleToken
			return nil
		}
		now := e.now()
		if lease.Expired(now) && boolOr(req.RejectIfExpired, true) {
			res.Outcome = ctypes.OutcomeLeaseExpired
			res.AcquiredAt = timePtr(lease.AcquiredAt)
			res.ExpiresAt = timePtr(lease.ExpiresAt())
			return nil
		}

		next := *lease
		next.LastSeenAt = timePtr(now)
		outcome := ctypes.OutcomeTouched
		if !req.TouchOnly {
			next.AcquiredAt = now
			if req.TTL > 0 {
				next.TTLSeconds = int64(req.TTL / time.Second)
			}
			outcome = ctypes.OutcomeRenewed
		}
		doc.Lease = &next
		doc.UpdatedAt = now

		_, applied, err := e.docs.CASState(ctx, version, doc)
		if err != nil {
			return err
		}
		if !applied {
			return cerrors.ErrCASConflict
		}
		res.Outcome = outcome
		res.AcquiredAt = timePtr(next.AcquiredAt)
		res.ExpiresAt = timePtr(next.ExpiresAt())
		res.LastSeenAt = next.LastSeenAt
		return nil
	})
	if err != nil {
		if isContention(err) {
			res.Outcome = ctypes.OutcomeContention
		}
		return res, err
	}
	logOutcome("renew_lease", req.WorkflowID, req.State, res.Outcome)
	return res, nil
}

// ReleaseLease clears the lease. Without Force the caller's token must match.
func (e *Engine) ReleaseLease(ctx context.Context, req ReleaseRequest) (res ReleaseResult, err error) {
	defer e.observe("release_lease", &res.Outcome, &err, time.Now())

	if err := requireIDs(req.WorkflowID, req.State); err != nil {
		return res, err
	}
	if req.Token == "" && !req.Force {
		return res, fmt.Errorf("%w: token is required unless force is set", cerrors.ErrInvalidRequest)
	}

	err = e.casLoop(ctx, "release_lease", func() error {
		res = ReleaseResult{}
		doc, version, err := e.docs.LoadState(ctx, req.WorkflowID, req.State)
		if err != nil {
			return err
		}
		lease := doc.Lease
		if lease == nil {
			res.Outcome = ctypes.OutcomeNoLease
			return nil
		}
		if lease.Token != req.Token && !req.Force {
			res.Outcome = ctypes.OutcomeStaleToken
			return nil
		}
		doc.Lease = nil
		doc.UpdatedAt = e.now()
		_, applied, err := e.docs.CASState(ctx, version, doc)
		if err != nil {
			return err
		}
		if !applied {
			return cerrors.ErrCASConflict
		}
		res.Outcome = ctypes.OutcomeReleased
		res.PreviousOwner = lease.Owner
		return nil
	})
	if err != nil {
		if isContention(err) {
			res.Outcome = ctypes.OutcomeContention
		}
		return res, err
	}

	if res.Outcome == ctypes.OutcomeReleased && req.ClearOwner {
		assigned, err := e.AssignExecutor(ctx, AssignRequest{WorkflowID: req.WorkflowID, State: req.State, Executor: ""})
		if err != nil {
			return res, fmt.Errorf("lease released but owner not cleared: %w", err)
		}
		res.OwnerCleared = assigned.Outcome == ctypes.OutcomeExecutorAssigned
	}
	logOutcome("release_lease", req.WorkflowID, req.State, res.Outcome)
	return res, nil
}
