package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"permitflow/internal/domain"
	"permitflow/internal/events"
	"permitflow/internal/repo"
	"permitflow/internal/workflow"
)

// updateWorker is the worker-side counterpart of updatePermit.
func (e Engine) updateWorker(ctx context.Context, id string, fn func(tx *sql.Tx, w *domain.Worker) (bool, error)) (domain.Worker, error) {
	var lastErr error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		w, err := e.tryUpdateWorker(ctx, id, fn)
		if err == nil {
			return w, nil
		}
		if !errors.Is(err, repo.ErrConflict) {
			return domain.Worker{}, err
		}
		lastErr = err
	}
	return domain.Worker{}, lastErr
}

func (e Engine) tryUpdateWorker(ctx context.Context, id string, fn func(tx *sql.Tx, w *domain.Worker) (bool, error)) (domain.Worker, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Worker{}, err
	}
	defer tx.Rollback()

	w, err := e.Repo.GetWorkerTx(ctx, tx, id)
	if err != nil {
		return domain.Worker{}, err
	}
	write, err := fn(tx, &w)
	if err != nil {
		return domain.Worker{}, err
	}
	if !write {
		return w, nil
	}
	w.UpdatedAt = e.nowString()
	if err := e.Repo.UpdateWorkerTx(ctx, tx, w); err != nil {
		return domain.Worker{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Worker{}, err
	}
	w.Version++
	return w, nil
}

// WorkerCreateOptions are parameters for registering a worker credential.
type WorkerCreateOptions struct {
	RequestorEmail string
	Details        domain.WorkerDetails
}

func (e Engine) CreateWorker(ctx context.Context, opts WorkerCreateOptions) (domain.Worker, error) {
	if opts.RequestorEmail == "" {
		return domain.Worker{}, ValidationError{Field: "requestor_email", Reason: "required"}
	}
	if err := e.validateDetails(opts.Details); err != nil {
		return domain.Worker{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Worker{}, err
	}
	defer tx.Rollback()

	id, err := e.Repo.NextID(ctx, tx, "worker", "W")
	if err != nil {
		return domain.Worker{}, err
	}
	now := e.nowString()
	details := opts.Details
	w := domain.Worker{
		ID:             id,
		Status:         domain.WorkerPendingReview,
		RequestorEmail: opts.RequestorEmail,
		Pending:        &details,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.Repo.InsertWorkerTx(ctx, tx, w); err != nil {
		return domain.Worker{}, fmt.Errorf("insert worker: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "worker.created", "worker", w.ID, opts.RequestorEmail, events.EventPayload{
		"status": w.Status,
	}); err != nil {
		return domain.Worker{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Worker{}, err
	}
	return w, nil
}

// WorkerEditOptions carry a partial update of a worker's details. Nil fields
// keep the current value; the merged snapshot goes through approval again.
type WorkerEditOptions struct {
	WorkerID   string
	Role       domain.Role
	ActorID    string
	Name       *string
	Age        *int
	IDType     *string
	IDNumber   *string
	Contractor *string
	Phone      *string
}

// EditWorker stages a change to an approved worker. The approved snapshot in
// Current keeps serving permits unchanged until an Approver accepts the edit.
func (e Engine) EditWorker(ctx context.Context, opts WorkerEditOptions) (domain.Worker, error) {
	if opts.ActorID == "" {
		return domain.Worker{}, ValidationError{Field: "actor", Reason: "required"}
	}
	return e.updateWorker(ctx, opts.WorkerID, func(tx *sql.Tx, w *domain.Worker) (bool, error) {
		if opts.Role != domain.RoleRequester || w.Status != domain.WorkerApproved || w.Current == nil {
			return false, workflow.InvalidTransitionError{Entity: "worker", State: string(w.Status), Role: opts.Role, Action: workflow.ActionEditRequest}
		}
		merged := *w.Current
		merged.ApprovedBy = ""
		merged.ApprovedAt = ""
		if opts.Name != nil {
			merged.Name = *opts.Name
		}
		if opts.Age != nil {
			merged.Age = *opts.Age
		}
		if opts.IDType != nil {
			merged.IDType = *opts.IDType
		}
		if opts.IDNumber != nil {
			merged.IDNumber = *opts.IDNumber
		}
		if opts.Contractor != nil {
			merged.Contractor = *opts.Contractor
		}
		if opts.Phone != nil {
			merged.Phone = *opts.Phone
		}
		if err := e.validateDetails(merged); err != nil {
			return false, err
		}
		w.Pending = &merged
		w.Status = domain.WorkerEditPendingReview
		return true, e.Events.Append(ctx, tx, "worker.edit_requested", "worker", w.ID, opts.ActorID, events.EventPayload{
			"status": w.Status,
		})
	})
}

// WorkerActionOptions carry a reviewer or approver decision on a worker.
type WorkerActionOptions struct {
	WorkerID  string
	Action    workflow.Action
	Role      domain.Role
	ActorID   string
	ActorName string
	Reason    string
	IfStatus  domain.WorkerStatus
}

// ApplyWorkerAction advances a worker through its approval track. On final
// approval the pending snapshot is promoted to Current; on rejection it is
// discarded and the last approved snapshot, if any, stays in force.
func (e Engine) ApplyWorkerAction(ctx context.Context, opts WorkerActionOptions) (domain.Worker, error) {
	if opts.ActorID == "" {
		return domain.Worker{}, ValidationError{Field: "actor", Reason: "required"}
	}
	return e.updateWorker(ctx, opts.WorkerID, func(tx *sql.Tx, w *domain.Worker) (bool, error) {
		if opts.IfStatus != "" && w.Status != opts.IfStatus {
			if next, err := workflow.WorkerNext(opts.IfStatus, opts.Role, opts.Action); err == nil && w.Status == next {
				return false, nil
			}
			return false, fmt.Errorf("%w: worker %s is %s, expected %s", repo.ErrConflict, w.ID, w.Status, opts.IfStatus)
		}
		next, err := workflow.WorkerNext(w.Status, opts.Role, opts.Action)
		if err != nil {
			return false, err
		}
		from := w.Status
		switch next {
		case domain.WorkerApproved:
			if w.Pending == nil {
				return false, fmt.Errorf("worker %s: pending snapshot missing in status %s", w.ID, from)
			}
			promoted := *w.Pending
			promoted.ApprovedBy = actorName(opts)
			promoted.ApprovedAt = e.nowString()
			w.Current = &promoted
			w.Pending = nil
		case domain.WorkerRejected:
			w.Pending = nil
		}
		w.Status = next
		return true, e.Events.Append(ctx, tx, "worker."+string(opts.Action), "worker", w.ID, opts.ActorID, events.EventPayload{
			"from":   from,
			"to":     next,
			"reason": opts.Reason,
		})
	})
}

// DeleteWorker removes a worker record. Only an Approver may delete, and
// never while a non-terminal permit still lists the worker on its roster.
func (e Engine) DeleteWorker(ctx context.Context, workerID string, role domain.Role, actorID string) error {
	if actorID == "" {
		return ValidationError{Field: "actor", Reason: "required"}
	}
	if role != domain.RoleApprover {
		return workflow.InvalidTransitionError{Entity: "worker", State: "", Role: role, Action: workflow.ActionDelete}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Checked inside the tx so a permit filed concurrently cannot slip the
	// worker onto a roster between the check and the commit.
	refs, err := e.Repo.PermitsReferencingWorkerTx(ctx, tx, workerID)
	if err != nil {
		return err
	}
	if len(refs) > 0 {
		return ValidationError{Field: "worker", Reason: fmt.Sprintf("worker %s is on open permits: %s", workerID, strings.Join(refs, ", "))}
	}
	if err := e.Repo.DeleteWorkerTx(ctx, tx, workerID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "worker.deleted", "worker", workerID, actorID, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) validateDetails(d domain.WorkerDetails) error {
	if d.Name == "" {
		return ValidationError{Field: "name", Reason: "required"}
	}
	min := 18
	if e.Config != nil && e.Config.Workers.MinimumAge > 0 {
		min = e.Config.Workers.MinimumAge
	}
	if d.Age < min {
		return ValidationError{Field: "age", Reason: fmt.Sprintf("must be at least %d", min)}
	}
	return nil
}

func actorName(opts WorkerActionOptions) string {
	if opts.ActorName != "" {
		return opts.ActorName
	}
	return opts.ActorID
}
