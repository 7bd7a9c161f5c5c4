// Package workflow is the single place transition legality is decided.
// Every edge of the permit, renewal and worker state machines lives in a
// table here; the engine never switches on status strings itself.
package workflow

import (
	"fmt"

	"permitflow/internal/domain"
)

// Action is a transition verb submitted by an actor.
type Action string

const (
	ActionReview          Action = "review"
	ActionApprove         Action = "approve"
	ActionReject          Action = "reject"
	ActionInitiateClosure Action = "initiate_closure"
	ActionApproveClosure  Action = "approve_closure"
	ActionRejectClosure   Action = "reject_closure"
	ActionResubmit        Action = "resubmit"

	ActionRequest     Action = "request"
	ActionCreate      Action = "create"
	ActionEditRequest Action = "edit_request"
	ActionDelete      Action = "delete"
)

// InvalidTransitionError reports an illegal (state, role, action) triple.
// No mutation is performed when it is returned.
type InvalidTransitionError struct {
	Entity string
	State  string
	Role   domain.Role
	Action Action
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s transition %q not allowed for role %s from state %q", e.Entity, e.Action, e.Role, e.State)
}

type permitEdge struct {
	From   domain.PermitStatus
	Action Action
}

type permitRule struct {
	Roles []domain.Role
	To    domain.PermitStatus
}

var permitRules = map[permitEdge]permitRule{
	{domain.PermitPendingReview, ActionReview}:                 {[]domain.Role{domain.RoleReviewer}, domain.PermitPendingApproval},
	{domain.PermitPendingReview, ActionReject}:                 {[]domain.Role{domain.RoleReviewer}, domain.PermitRejected},
	{domain.PermitPendingApproval, ActionApprove}:              {[]domain.Role{domain.RoleApprover}, domain.PermitActive},
	{domain.PermitPendingApproval, ActionReject}:               {[]domain.Role{domain.RoleApprover}, domain.PermitRejected},
	{domain.PermitActive, ActionInitiateClosure}:               {[]domain.Role{domain.RoleRequester}, domain.PermitClosurePendingReview},
	{domain.PermitClosurePendingReview, ActionApproveClosure}:  {[]domain.Role{domain.RoleReviewer}, domain.PermitClosurePendingApproval},
	{domain.PermitClosurePendingApproval, ActionApprove}:       {[]domain.Role{domain.RoleApprover}, domain.PermitClosed},
	{domain.PermitClosurePendingApproval, ActionRejectClosure}: {[]domain.Role{domain.RoleApprover, domain.RoleReviewer}, domain.PermitActive},
	{domain.PermitActive, ActionResubmit}:                      {[]domain.Role{domain.RoleRequester}, domain.PermitPendingReview},
	{domain.PermitPendingApproval, ActionResubmit}:             {[]domain.Role{domain.RoleRequester}, domain.PermitPendingReview},
	{domain.PermitPendingReview, ActionResubmit}:               {[]domain.Role{domain.RoleRequester}, domain.PermitPendingReview},
}

// PermitNext computes the permit status an action produces, or an
// InvalidTransitionError. Pure: no side effects, safe to call twice.
func PermitNext(from domain.PermitStatus, role domain.Role, action Action) (domain.PermitStatus, error) {
	rule, ok := permitRules[permitEdge{from, action}]
	if !ok || !roleAllowed(rule.Roles, role) {
		return "", InvalidTransitionError{Entity: "permit", State: string(from), Role: role, Action: action}
	}
	return rule.To, nil
}

// RenewalNext computes the next renewal-entry status and the permit status it
// implies. entryStatus is the status of the open (last) entry; a Requester
// request has no open entry and is validated by the engine against the
// permit's own status before appending.
func RenewalNext(entryStatus domain.RenewalStatus, role domain.Role, action Action) (domain.RenewalStatus, domain.PermitStatus, error) {
	fail := func() (domain.RenewalStatus, domain.PermitStatus, error) {
		return "", "", InvalidTransitionError{Entity: "renewal", State: string(entryStatus), Role: role, Action: action}
	}
	switch entryStatus {
	case domain.RenewalPendingReview:
		if role != domain.RoleReviewer {
			return fail()
		}
		switch action {
		case ActionApprove:
			return domain.RenewalPendingApproval, domain.PermitRenewalPendingApproval, nil
		case ActionReject:
			return domain.RenewalRejected, domain.PermitActive, nil
		}
	case domain.RenewalPendingApproval:
		if role != domain.RoleApprover {
			return fail()
		}
		switch action {
		case ActionApprove:
			return domain.RenewalApproved, domain.PermitActive, nil
		case ActionReject:
			return domain.RenewalRejected, domain.PermitActive, nil
		}
	}
	return fail()
}

type workerEdge struct {
	From   domain.WorkerStatus
	Action Action
}

type workerRule struct {
	Role domain.Role
	To   domain.WorkerStatus
}

var workerRules = map[workerEdge]workerRule{
	{domain.WorkerPendingReview, ActionApprove}:       {domain.RoleReviewer, domain.WorkerPendingApproval},
	{domain.WorkerPendingReview, ActionReject}:        {domain.RoleReviewer, domain.WorkerRejected},
	{domain.WorkerPendingApproval, ActionApprove}:     {domain.RoleApprover, domain.WorkerApproved},
	{domain.WorkerPendingApproval, ActionReject}:      {domain.RoleApprover, domain.WorkerRejected},
	{domain.WorkerEditPendingReview, ActionApprove}:   {domain.RoleReviewer, domain.WorkerEditPendingApproval},
	{domain.WorkerEditPendingReview, ActionReject}:    {domain.RoleReviewer, domain.WorkerRejected},
	{domain.WorkerEditPendingApproval, ActionApprove}: {domain.RoleApprover, domain.WorkerApproved},
	{domain.WorkerEditPendingApproval, ActionReject}:  {domain.RoleApprover, domain.WorkerRejected},
}

// WorkerNext computes the worker status an approve/reject produces.
func WorkerNext(from domain.WorkerStatus, role domain.Role, action Action) (domain.WorkerStatus, error) {
	rule, ok := workerRules[workerEdge{from, action}]
	if !ok || rule.Role != role {
		return "", InvalidTransitionError{Entity: "worker", State: string(from), Role: role, Action: action}
	}
	return rule.To, nil
}

// CheckPermit verifies the cross-field invariant between a permit's status and
// its renewal log: the last entry is non-terminal exactly when the permit is in
// a renewal-pending status, and at most one entry is ever open.
func CheckPermit(p *domain.Permit) error {
	open := 0
	for i := range p.Renewals {
		if !p.Renewals[i].Status.Terminal() {
			open++
			if i != len(p.Renewals)-1 {
				return fmt.Errorf("permit %s: renewal entry %d is open but not last", p.ID, i)
			}
		}
	}
	if open > 1 {
		return fmt.Errorf("permit %s: %d renewal entries open", p.ID, open)
	}
	if (open == 1) != p.Status.RenewalPending() {
		return fmt.Errorf("permit %s: status %s disagrees with renewal log (open=%d)", p.ID, p.Status, open)
	}
	if last := p.LastRenewal(); last != nil {
		switch {
		case last.Status == domain.RenewalPendingReview && p.Status != domain.PermitRenewalPendingReview:
			return fmt.Errorf("permit %s: renewal pending review but status %s", p.ID, p.Status)
		case last.Status == domain.RenewalPendingApproval && p.Status != domain.PermitRenewalPendingApproval:
			return fmt.Errorf("permit %s: renewal pending approval but status %s", p.ID, p.Status)
		}
	}
	return nil
}

func roleAllowed(roles []domain.Role, role domain.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
