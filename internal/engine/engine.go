// Package engine applies workflow transitions to stored permits and workers.
// Every mutation runs as a transactional read-modify-write with a version
// check, so concurrent actors either serialize cleanly or get a conflict.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"permitflow/internal/config"
	"permitflow/internal/domain"
	"permitflow/internal/events"
	"permitflow/internal/repo"
	"permitflow/internal/workflow"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowString() string {
	return e.now().UTC().Format(time.RFC3339)
}

// ValidationError means the request payload itself is malformed or violates a
// business rule; nothing was written.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// conflictRetries bounds how often a transition is re-read and re-validated
// after losing a version race before giving up with ErrConflict.
const conflictRetries = 3

// updatePermit runs fn against a freshly read permit inside a transaction and
// writes the result back with a version check. fn returns false to skip the
// write (idempotent no-op). A lost version race restarts the whole cycle, so
// the transition is re-validated against the winner's state, never replayed
// blindly.
func (e Engine) updatePermit(ctx context.Context, id string, fn func(tx *sql.Tx, p *domain.Permit) (bool, error)) (domain.Permit, error) {
	var lastErr error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		p, err := e.tryUpdatePermit(ctx, id, fn)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, repo.ErrConflict) {
			return domain.Permit{}, err
		}
		lastErr = err
	}
	return domain.Permit{}, lastErr
}

func (e Engine) tryUpdatePermit(ctx context.Context, id string, fn func(tx *sql.Tx, p *domain.Permit) (bool, error)) (domain.Permit, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Permit{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetPermitTx(ctx, tx, id)
	if err != nil {
		return domain.Permit{}, err
	}
	write, err := fn(tx, &p)
	if err != nil {
		return domain.Permit{}, err
	}
	if !write {
		return p, nil
	}
	if err := workflow.CheckPermit(&p); err != nil {
		return domain.Permit{}, err
	}
	p.UpdatedAt = e.nowString()
	if err := e.Repo.UpdatePermitTx(ctx, tx, p); err != nil {
		return domain.Permit{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Permit{}, err
	}
	p.Version++
	return p, nil
}

// PermitCreateOptions are parameters for filing a new permit request.
type PermitCreateOptions struct {
	WorkType       string
	RequesterEmail string
	RequesterName  string
	ReviewerEmail  string
	ApproverEmail  string
	ValidFrom      string
	ValidTo        string
	Latitude       *float64
	Longitude      *float64
	ExactLocation  string
	LocationUnit   string
	Description    string
	Workers        []string
	Payload        map[string]any
}

func (e Engine) CreatePermit(ctx context.Context, opts PermitCreateOptions) (domain.Permit, error) {
	if e.Config == nil {
		return domain.Permit{}, errors.New("config not loaded")
	}
	if opts.RequesterEmail == "" {
		return domain.Permit{}, ValidationError{Field: "requester_email", Reason: "required"}
	}
	if opts.WorkType == "" {
		return domain.Permit{}, ValidationError{Field: "work_type", Reason: "required"}
	}
	if !e.Config.KnownWorkType(opts.WorkType) {
		return domain.Permit{}, ValidationError{Field: "work_type", Reason: fmt.Sprintf("unknown work type %q", opts.WorkType)}
	}
	if err := validateWindow(opts.ValidFrom, opts.ValidTo); err != nil {
		return domain.Permit{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Permit{}, err
	}
	defer tx.Rollback()

	for _, wid := range opts.Workers {
		if _, err := e.Repo.GetWorkerTx(ctx, tx, wid); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.Permit{}, ValidationError{Field: "workers", Reason: fmt.Sprintf("unknown worker %s", wid)}
			}
			return domain.Permit{}, err
		}
	}

	id, err := e.Repo.NextID(ctx, tx, "permit", "WP")
	if err != nil {
		return domain.Permit{}, err
	}
	now := e.nowString()
	p := domain.Permit{
		ID:             id,
		Status:         domain.PermitPendingReview,
		WorkType:       opts.WorkType,
		RequesterEmail: opts.RequesterEmail,
		RequesterName:  opts.RequesterName,
		ReviewerEmail:  opts.ReviewerEmail,
		ApproverEmail:  opts.ApproverEmail,
		ValidFrom:      opts.ValidFrom,
		ValidTo:        opts.ValidTo,
		Latitude:       opts.Latitude,
		Longitude:      opts.Longitude,
		ExactLocation:  opts.ExactLocation,
		LocationUnit:   opts.LocationUnit,
		Description:    opts.Description,
		Workers:        opts.Workers,
		Payload:        opts.Payload,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.Repo.InsertPermitTx(ctx, tx, p); err != nil {
		return domain.Permit{}, fmt.Errorf("insert permit: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "permit.created", "permit", p.ID, opts.RequesterEmail, events.EventPayload{
		"status":    p.Status,
		"work_type": p.WorkType,
	}); err != nil {
		return domain.Permit{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Permit{}, err
	}
	return p, nil
}

// PermitActionOptions are parameters for a direct permit transition.
type PermitActionOptions struct {
	PermitID  string
	Action    workflow.Action
	Role      domain.Role
	ActorID   string
	ActorName string
	Remarks   string
	Reason    string

	// IfStatus, when set, is the status the actor observed when deciding.
	// A submission against a stale status either resolves as an idempotent
	// duplicate or fails with a conflict; it never fires twice.
	IfStatus domain.PermitStatus

	// Closure fields, used by initiate_closure only.
	SiteRestored     bool
	RequestorRemarks string
}

// ApplyPermitAction performs one of the direct permit transitions: review,
// approve, reject, initiate_closure, approve_closure, reject_closure.
func (e Engine) ApplyPermitAction(ctx context.Context, opts PermitActionOptions) (domain.Permit, error) {
	if !domain.ValidRole(opts.Role) {
		return domain.Permit{}, ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", opts.Role)}
	}
	if opts.ActorID == "" {
		return domain.Permit{}, ValidationError{Field: "actor", Reason: "required"}
	}
	return e.updatePermit(ctx, opts.PermitID, func(tx *sql.Tx, p *domain.Permit) (bool, error) {
		if done, err := e.checkObserved(p, opts); done || err != nil {
			return false, err
		}
		next, err := workflow.PermitNext(p.Status, opts.Role, opts.Action)
		if err != nil {
			return false, err
		}
		from := p.Status
		if closureAction(opts.Action, from) && p.Closure == nil {
			return false, fmt.Errorf("permit %s: closure record missing in status %s", p.ID, from)
		}
		mark := domain.ApprovalMark{Name: actorLabel(opts), At: e.nowString(), Remarks: opts.Remarks}
		switch opts.Action {
		case workflow.ActionReview:
			p.Review = &mark
		case workflow.ActionApprove:
			if from == domain.PermitClosurePendingApproval {
				p.Closure.Approver = &mark
			} else {
				p.Approval = &mark
			}
		case workflow.ActionReject:
			p.Rejection = &domain.RejectionMark{By: actorLabel(opts), At: mark.At, Role: opts.Role, Reason: opts.Reason}
		case workflow.ActionInitiateClosure:
			p.Closure = &domain.Closure{
				SiteRestored:     opts.SiteRestored,
				RequestorRemarks: opts.RequestorRemarks,
				RequestorDate:    mark.At,
			}
		case workflow.ActionApproveClosure:
			p.Closure.Reviewer = &mark
		case workflow.ActionRejectClosure:
			p.Closure.Rejection = &domain.RejectionMark{By: actorLabel(opts), At: mark.At, Role: opts.Role, Reason: opts.Reason}
		default:
			return false, workflow.InvalidTransitionError{Entity: "permit", State: string(from), Role: opts.Role, Action: opts.Action}
		}
		p.Status = next
		return true, e.Events.Append(ctx, tx, "permit."+string(opts.Action), "permit", p.ID, opts.ActorID, events.EventPayload{
			"from": from,
			"to":   next,
		})
	})
}

// checkObserved resolves the optimistic observed-status check. It returns
// done=true when the action already happened (idempotent duplicate) and the
// current document should be returned unchanged.
func (e Engine) checkObserved(p *domain.Permit, opts PermitActionOptions) (bool, error) {
	if opts.IfStatus == "" || p.Status == opts.IfStatus {
		return false, nil
	}
	if next, err := workflow.PermitNext(opts.IfStatus, opts.Role, opts.Action); err == nil && p.Status == next {
		return true, nil
	}
	return false, fmt.Errorf("%w: permit %s is %s, expected %s", repo.ErrConflict, p.ID, p.Status, opts.IfStatus)
}

// PermitResubmitOptions carry the edited fields for a requester resubmission.
// Nil pointers leave the stored value untouched.
type PermitResubmitOptions struct {
	PermitID  string
	Role      domain.Role
	ActorID   string
	ValidFrom *string
	ValidTo   *string
	Workers   []string
	Payload   map[string]any
	IfStatus  domain.PermitStatus
}

// ResubmitPermit lets the requester edit an unfinished permit and send it back
// through review. Approval marks from the abandoned pass are cleared; the
// renewal log and closure history are kept.
func (e Engine) ResubmitPermit(ctx context.Context, opts PermitResubmitOptions) (domain.Permit, error) {
	if opts.ActorID == "" {
		return domain.Permit{}, ValidationError{Field: "actor", Reason: "required"}
	}
	return e.updatePermit(ctx, opts.PermitID, func(tx *sql.Tx, p *domain.Permit) (bool, error) {
		if opts.IfStatus != "" && p.Status != opts.IfStatus {
			return false, fmt.Errorf("%w: permit %s is %s, expected %s", repo.ErrConflict, p.ID, p.Status, opts.IfStatus)
		}
		next, err := workflow.PermitNext(p.Status, opts.Role, workflow.ActionResubmit)
		if err != nil {
			return false, err
		}
		from := p.Status
		if opts.ValidFrom != nil {
			p.ValidFrom = *opts.ValidFrom
		}
		if opts.ValidTo != nil {
			p.ValidTo = *opts.ValidTo
		}
		if err := validateWindow(p.ValidFrom, p.ValidTo); err != nil {
			return false, err
		}
		if opts.Workers != nil {
			p.Workers = opts.Workers
		}
		if opts.Payload != nil {
			p.Payload = opts.Payload
		}
		p.Review = nil
		p.Approval = nil
		p.Rejection = nil
		p.Status = next
		return true, e.Events.Append(ctx, tx, "permit.resubmit", "permit", p.ID, opts.ActorID, events.EventPayload{
			"from": from,
			"to":   next,
		})
	})
}

// RenewalRequestOptions carry a requester's renewal submission.
type RenewalRequestOptions struct {
	PermitID    string
	Role        domain.Role
	ActorID     string
	ValidFrom   string
	ValidTo     string
	Gas         domain.GasReadings
	Precautions string
	Workers     []string
}

// RequestRenewal appends a new open entry to the permit's renewal log. Only a
// Requester may renew, only while the permit is active, and never while an
// earlier renewal is still in flight.
func (e Engine) RequestRenewal(ctx context.Context, opts RenewalRequestOptions) (domain.Permit, error) {
	if opts.ActorID == "" {
		return domain.Permit{}, ValidationError{Field: "actor", Reason: "required"}
	}
	if err := validateWindow(opts.ValidFrom, opts.ValidTo); err != nil {
		return domain.Permit{}, err
	}
	return e.updatePermit(ctx, opts.PermitID, func(tx *sql.Tx, p *domain.Permit) (bool, error) {
		if opts.Role != domain.RoleRequester || p.Status != domain.PermitActive || p.OpenRenewal() != nil {
			return false, workflow.InvalidTransitionError{Entity: "renewal", State: string(p.Status), Role: opts.Role, Action: workflow.ActionRequest}
		}
		p.Renewals = append(p.Renewals, domain.RenewalEntry{
			Status:      domain.RenewalPendingReview,
			ValidFrom:   opts.ValidFrom,
			ValidTo:     opts.ValidTo,
			Gas:         opts.Gas,
			Precautions: opts.Precautions,
			Workers:     opts.Workers,
			RequestedBy: opts.ActorID,
			RequestedAt: e.nowString(),
		})
		p.Status = domain.PermitRenewalPendingReview
		return true, e.Events.Append(ctx, tx, "renewal.requested", "permit", p.ID, opts.ActorID, events.EventPayload{
			"entry": len(p.Renewals) - 1,
		})
	})
}

// RenewalActionOptions carry a reviewer or approver decision on the open
// renewal entry.
type RenewalActionOptions struct {
	PermitID string
	Action   workflow.Action
	Role     domain.Role
	ActorID  string
	Reason   string
	IfStatus domain.PermitStatus
}

// ApplyRenewalAction advances the open renewal entry. Only the last, open
// entry is ever touched; decided entries are immutable history.
func (e Engine) ApplyRenewalAction(ctx context.Context, opts RenewalActionOptions) (domain.Permit, error) {
	if opts.ActorID == "" {
		return domain.Permit{}, ValidationError{Field: "actor", Reason: "required"}
	}
	return e.updatePermit(ctx, opts.PermitID, func(tx *sql.Tx, p *domain.Permit) (bool, error) {
		if opts.IfStatus != "" && p.Status != opts.IfStatus {
			if renewalAlreadyDecided(p, opts) {
				return false, nil
			}
			return false, fmt.Errorf("%w: permit %s is %s, expected %s", repo.ErrConflict, p.ID, p.Status, opts.IfStatus)
		}
		open := p.OpenRenewal()
		if open == nil {
			return false, workflow.InvalidTransitionError{Entity: "renewal", State: string(p.Status), Role: opts.Role, Action: opts.Action}
		}
		entryNext, permitNext, err := workflow.RenewalNext(open.Status, opts.Role, opts.Action)
		if err != nil {
			return false, err
		}
		now := e.nowString()
		switch entryNext {
		case domain.RenewalPendingApproval:
			open.ReviewedBy = opts.ActorID
			open.ReviewedAt = now
		case domain.RenewalApproved:
			open.ApprovedBy = opts.ActorID
			open.ApprovedAt = now
			// The granted extension becomes the permit's validity window.
			if open.ValidFrom != "" {
				p.ValidFrom = open.ValidFrom
			}
			if open.ValidTo != "" {
				p.ValidTo = open.ValidTo
			}
		case domain.RenewalRejected:
			open.RejectedBy = opts.ActorID
			open.RejectedAt = now
			open.RejectedRole = opts.Role
			open.RejectionReason = opts.Reason
		}
		open.Status = entryNext
		p.Status = permitNext
		return true, e.Events.Append(ctx, tx, "renewal."+string(opts.Action), "permit", p.ID, opts.ActorID, events.EventPayload{
			"entry":  len(p.Renewals) - 1,
			"status": entryNext,
		})
	})
}

// renewalAlreadyDecided resolves a retried renewal decision the same way
// checkObserved does for permits: when the transition computed from the
// observed status already produced the current entry and permit status, the
// retry is an idempotent duplicate and the current document is returned
// unchanged.
func renewalAlreadyDecided(p *domain.Permit, opts RenewalActionOptions) bool {
	var observed domain.RenewalStatus
	switch opts.IfStatus {
	case domain.PermitRenewalPendingReview:
		observed = domain.RenewalPendingReview
	case domain.PermitRenewalPendingApproval:
		observed = domain.RenewalPendingApproval
	default:
		return false
	}
	entryNext, permitNext, err := workflow.RenewalNext(observed, opts.Role, opts.Action)
	if err != nil || p.Status != permitNext {
		return false
	}
	last := p.LastRenewal()
	return last != nil && last.Status == entryNext
}

func closureAction(action workflow.Action, from domain.PermitStatus) bool {
	switch action {
	case workflow.ActionApproveClosure, workflow.ActionRejectClosure:
		return true
	case workflow.ActionApprove:
		return from == domain.PermitClosurePendingApproval
	}
	return false
}

func actorLabel(opts PermitActionOptions) string {
	if opts.ActorName != "" {
		return opts.ActorName
	}
	return opts.ActorID
}

func validateWindow(from, to string) error {
	if from == "" && to == "" {
		return nil
	}
	start, err := time.Parse(time.RFC3339, from)
	if err != nil {
		return ValidationError{Field: "valid_from", Reason: "must be RFC3339"}
	}
	end, err := time.Parse(time.RFC3339, to)
	if err != nil {
		return ValidationError{Field: "valid_to", Reason: "must be RFC3339"}
	}
	if !end.After(start) {
		return ValidationError{Field: "valid_to", Reason: "must be after valid_from"}
	}
	return nil
}
