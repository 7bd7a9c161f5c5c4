package engine

import (
	"context"

	"permitflow/internal/domain"
	"permitflow/internal/repo"
)

// Dashboard is the role-scoped work queue view.
type Dashboard struct {
	Permits []domain.Permit             `json:"permits"`
	Workers []domain.Worker             `json:"workers"`
	Counts  map[domain.PermitStatus]int `json:"counts"`
}

// queue statuses each role acts on.
var permitQueues = map[domain.Role][]domain.PermitStatus{
	domain.RoleReviewer: {domain.PermitPendingReview, domain.PermitRenewalPendingReview, domain.PermitClosurePendingReview},
	domain.RoleApprover: {domain.PermitPendingApproval, domain.PermitRenewalPendingApproval, domain.PermitClosurePendingApproval},
}

var workerQueues = map[domain.Role][]domain.WorkerStatus{
	domain.RoleReviewer: {domain.WorkerPendingReview, domain.WorkerEditPendingReview},
	domain.RoleApprover: {domain.WorkerPendingApproval, domain.WorkerEditPendingApproval},
}

// GetDashboard returns the permits and workers waiting on the given actor.
// Requesters see everything they filed; Reviewers and Approvers see the
// stage queues they decide.
func (e Engine) GetDashboard(ctx context.Context, role domain.Role, email string) (Dashboard, error) {
	var d Dashboard
	counts, err := e.Repo.CountPermitsByStatus(ctx)
	if err != nil {
		return d, err
	}
	d.Counts = counts

	if role == domain.RoleRequester {
		permits, err := e.Repo.ListPermits(ctx, repo.PermitFilter{RequesterEmail: email})
		if err != nil {
			return d, err
		}
		workers, err := e.Repo.ListWorkers(ctx, repo.WorkerFilter{RequestorEmail: email})
		if err != nil {
			return d, err
		}
		d.Permits, d.Workers = permits, workers
		return d, nil
	}

	for _, status := range permitQueues[role] {
		permits, err := e.Repo.ListPermits(ctx, repo.PermitFilter{Status: status})
		if err != nil {
			return d, err
		}
		d.Permits = append(d.Permits, permits...)
	}
	for _, status := range workerQueues[role] {
		workers, err := e.Repo.ListWorkers(ctx, repo.WorkerFilter{Status: status})
		if err != nil {
			return d, err
		}
		d.Workers = append(d.Workers, workers...)
	}
	return d, nil
}

// Stats is the aggregate status breakdown across the store.
type Stats struct {
	Permits map[domain.PermitStatus]int `json:"permits"`
	Workers map[domain.WorkerStatus]int `json:"workers"`
	Events  int64                       `json:"events"`
}

func (e Engine) GetStats(ctx context.Context) (Stats, error) {
	var s Stats
	permits, err := e.Repo.CountPermitsByStatus(ctx)
	if err != nil {
		return s, err
	}
	workers, err := e.Repo.CountWorkersByStatus(ctx)
	if err != nil {
		return s, err
	}
	latest, err := e.Repo.LatestEventID(ctx)
	if err != nil {
		return s, err
	}
	s.Permits, s.Workers, s.Events = permits, workers, latest
	return s, nil
}
