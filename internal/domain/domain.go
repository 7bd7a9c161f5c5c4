package domain

// Role is the acting role on a permit or worker record. There is no role
// hierarchy: every transition edge names the exact role it accepts.
type Role string

const (
	RoleRequester Role = "Requester"
	RoleReviewer  Role = "Reviewer"
	RoleApprover  Role = "Approver"
)

// ValidRole reports whether r is one of the three known roles.
func ValidRole(r Role) bool {
	return r == RoleRequester || r == RoleReviewer || r == RoleApprover
}

// PermitStatus is the single source of truth for a permit's lifecycle stage.
type PermitStatus string

const (
	PermitPendingReview          PermitStatus = "pending_review"
	PermitPendingApproval        PermitStatus = "pending_approval"
	PermitActive                 PermitStatus = "active"
	PermitRejected               PermitStatus = "rejected"
	PermitRenewalPendingReview   PermitStatus = "renewal_pending_review"
	PermitRenewalPendingApproval PermitStatus = "renewal_pending_approval"
	PermitClosurePendingReview   PermitStatus = "closure_pending_review"
	PermitClosurePendingApproval PermitStatus = "closure_pending_approval"
	PermitClosed                 PermitStatus = "closed"
)

// Terminal reports whether no further transition exists from s.
func (s PermitStatus) Terminal() bool {
	return s == PermitClosed || s == PermitRejected
}

// RenewalPending reports whether s indicates an in-flight renewal.
func (s PermitStatus) RenewalPending() bool {
	return s == PermitRenewalPendingReview || s == PermitRenewalPendingApproval
}

type RenewalStatus string

const (
	RenewalPendingReview   RenewalStatus = "pending_review"
	RenewalPendingApproval RenewalStatus = "pending_approval"
	RenewalApproved        RenewalStatus = "approved"
	RenewalRejected        RenewalStatus = "rejected"
)

// Terminal reports whether the renewal entry accepts no further transition.
func (s RenewalStatus) Terminal() bool {
	return s == RenewalApproved || s == RenewalRejected
}

type WorkerStatus string

const (
	WorkerPendingReview       WorkerStatus = "pending_review"
	WorkerPendingApproval     WorkerStatus = "pending_approval"
	WorkerApproved            WorkerStatus = "approved"
	WorkerRejected            WorkerStatus = "rejected"
	WorkerEditPendingReview   WorkerStatus = "edit_pending_review"
	WorkerEditPendingApproval WorkerStatus = "edit_pending_approval"
)

// ApprovalMark is an audit triple written exactly once when a stage acts.
type ApprovalMark struct {
	Name    string `json:"name"`
	At      string `json:"at" format:"date-time"`
	Remarks string `json:"remarks,omitempty"`
}

// RejectionMark records who rejected a permit and why.
type RejectionMark struct {
	By     string `json:"by"`
	At     string `json:"at" format:"date-time"`
	Role   Role   `json:"role"`
	Reason string `json:"reason,omitempty"`
}

// GasReadings are the HC/toxic/oxygen test values attached to a renewal request.
type GasReadings struct {
	HC     string `json:"hc,omitempty"`
	Toxic  string `json:"toxic,omitempty"`
	Oxygen string `json:"oxygen,omitempty"`
}

// RenewalEntry is one cycle in a permit's renewal log. Entries are append-only;
// only the last entry of a log may be mutated, and each audit field is written
// exactly once by its corresponding transition.
type RenewalEntry struct {
	Status          RenewalStatus `json:"status" enum:"pending_review,pending_approval,approved,rejected"`
	ValidFrom       string        `json:"valid_from,omitempty" format:"date-time"`
	ValidTo         string        `json:"valid_to,omitempty" format:"date-time"`
	Gas             GasReadings   `json:"gas"`
	Precautions     string        `json:"precautions,omitempty"`
	Workers         []string      `json:"workers,omitempty"`
	RequestedBy     string        `json:"requested_by"`
	RequestedAt     string        `json:"requested_at" format:"date-time"`
	ReviewedBy      string        `json:"reviewed_by,omitempty"`
	ReviewedAt      string        `json:"reviewed_at,omitempty" format:"date-time"`
	ApprovedBy      string        `json:"approved_by,omitempty"`
	ApprovedAt      string        `json:"approved_at,omitempty" format:"date-time"`
	RejectedBy      string        `json:"rejected_by,omitempty"`
	RejectedAt      string        `json:"rejected_at,omitempty" format:"date-time"`
	RejectedRole    Role          `json:"rejected_role,omitempty"`
	RejectionReason string        `json:"rejection_reason,omitempty"`
}

// Closure is populated once closure is initiated and retained as history even
// when the closure is rejected back to active.
type Closure struct {
	SiteRestored     bool           `json:"site_restored"`
	RequestorRemarks string         `json:"requestor_remarks,omitempty"`
	RequestorDate    string         `json:"requestor_date,omitempty" format:"date-time"`
	Reviewer         *ApprovalMark  `json:"reviewer,omitempty"`
	Approver         *ApprovalMark  `json:"approver,omitempty"`
	Rejection        *RejectionMark `json:"rejection,omitempty"`
}

// Permit is the primary approvable work-authorization record. Status, the
// approval marks, the renewal log and the closure record are owned by the
// workflow engine; Payload carries the free-form form fields (hazards, PPE,
// checklist ticks, supervisors) the engine does not interpret.
type Permit struct {
	ID             string         `json:"id"`
	Status         PermitStatus   `json:"status" enum:"pending_review,pending_approval,active,rejected,renewal_pending_review,renewal_pending_approval,closure_pending_review,closure_pending_approval,closed"`
	WorkType       string         `json:"work_type"`
	RequesterEmail string         `json:"requester_email"`
	RequesterName  string         `json:"requester_name,omitempty"`
	ReviewerEmail  string         `json:"reviewer_email,omitempty"`
	ApproverEmail  string         `json:"approver_email,omitempty"`
	ValidFrom      string         `json:"valid_from,omitempty" format:"date-time"`
	ValidTo        string         `json:"valid_to,omitempty" format:"date-time"`
	Latitude       *float64       `json:"latitude,omitempty"`
	Longitude      *float64       `json:"longitude,omitempty"`
	ExactLocation  string         `json:"exact_location,omitempty"`
	LocationUnit   string         `json:"location_unit,omitempty"`
	Description    string         `json:"description,omitempty"`
	Workers        []string       `json:"workers,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
	Review         *ApprovalMark  `json:"review,omitempty"`
	Approval       *ApprovalMark  `json:"approval,omitempty"`
	Rejection      *RejectionMark `json:"rejection,omitempty"`
	Renewals       []RenewalEntry `json:"renewals,omitempty"`
	Closure        *Closure       `json:"closure,omitempty"`
	Version        int64          `json:"version"`
	CreatedAt      string         `json:"created_at" format:"date-time"`
	UpdatedAt      string         `json:"updated_at" format:"date-time"`
}

// OpenRenewal returns the last renewal entry if it is still in flight.
func (p *Permit) OpenRenewal() *RenewalEntry {
	if len(p.Renewals) == 0 {
		return nil
	}
	last := &p.Renewals[len(p.Renewals)-1]
	if last.Status.Terminal() {
		return nil
	}
	return last
}

// LastRenewal returns the most recent renewal entry, terminal or not.
func (p *Permit) LastRenewal() *RenewalEntry {
	if len(p.Renewals) == 0 {
		return nil
	}
	return &p.Renewals[len(p.Renewals)-1]
}

// WorkerDetails is a snapshot of a worker's attributes. The engine only
// interprets Age; everything else passes through to consumers.
type WorkerDetails struct {
	Name          string `json:"name"`
	Age           int    `json:"age"`
	IDType        string `json:"id_type,omitempty"`
	IDNumber      string `json:"id_number,omitempty"`
	Contractor    string `json:"contractor,omitempty"`
	Phone         string `json:"phone,omitempty"`
	RequestorName string `json:"requestor_name,omitempty"`
	ApprovedBy    string `json:"approved_by,omitempty"`
	ApprovedAt    string `json:"approved_at,omitempty" format:"date-time"`
}

// Worker is a person credential with an independent approval lifecycle.
// Current holds the last approved snapshot (nil until first approval);
// Pending holds the snapshot awaiting approval and is cleared on any
// terminal decision.
type Worker struct {
	ID             string         `json:"id"`
	Status         WorkerStatus   `json:"status" enum:"pending_review,pending_approval,approved,rejected,edit_pending_review,edit_pending_approval"`
	RequestorEmail string         `json:"requestor_email"`
	Current        *WorkerDetails `json:"current,omitempty"`
	Pending        *WorkerDetails `json:"pending,omitempty"`
	Version        int64          `json:"version"`
	CreatedAt      string         `json:"created_at" format:"date-time"`
	UpdatedAt      string         `json:"updated_at" format:"date-time"`
}

// EditInFlight reports whether the worker is in the edit approval track.
func (w *Worker) EditInFlight() bool {
	return w.Status == WorkerEditPendingReview || w.Status == WorkerEditPendingApproval
}

// User is an identity in the permit directory.
type User struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	Role         Role   `json:"role" enum:"Requester,Reviewer,Approver"`
	PasswordHash string `json:"-"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

// Event is one row of the append-only audit log.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// MapMarker is the read-side projection for open permits with coordinates.
type MapMarker struct {
	PermitID      string  `json:"permit_id"`
	WorkType      string  `json:"work_type"`
	Latitude      float64 `json:"lat"`
	Longitude     float64 `json:"lng"`
	ExactLocation string  `json:"exact_location,omitempty"`
	RequesterName string  `json:"requester_name,omitempty"`
	ValidTo       string  `json:"valid_to,omitempty" format:"date-time"`
}
