package server

import (
	"permitflow/internal/domain"
)

// Request payloads

type LoginRequest struct {
	Email    string `json:"email" format:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

type CreatePermitRequest struct {
	WorkType      string         `json:"work_type"`
	RequesterName string         `json:"requester_name,omitempty"`
	ReviewerEmail string         `json:"reviewer_email,omitempty" format:"email"`
	ApproverEmail string         `json:"approver_email,omitempty" format:"email"`
	ValidFrom     string         `json:"valid_from,omitempty" format:"date-time"`
	ValidTo       string         `json:"valid_to,omitempty" format:"date-time"`
	Latitude      *float64       `json:"latitude,omitempty"`
	Longitude     *float64       `json:"longitude,omitempty"`
	ExactLocation string         `json:"exact_location,omitempty"`
	LocationUnit  string         `json:"location_unit,omitempty"`
	Description   string         `json:"description,omitempty"`
	Workers       []string       `json:"workers,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
}

type PermitActionRequest struct {
	Action           string `json:"action" enum:"review,approve,reject,initiate_closure,approve_closure,reject_closure"`
	Remarks          string `json:"remarks,omitempty"`
	Reason           string `json:"reason,omitempty"`
	IfStatus         string `json:"if_status,omitempty"`
	SiteRestored     bool   `json:"site_restored,omitempty"`
	RequestorRemarks string `json:"requestor_remarks,omitempty"`
}

type ResubmitPermitRequest struct {
	ValidFrom *string        `json:"valid_from,omitempty" format:"date-time"`
	ValidTo   *string        `json:"valid_to,omitempty" format:"date-time"`
	Workers   []string       `json:"workers,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	IfStatus  string         `json:"if_status,omitempty"`
}

type RenewalRequest struct {
	ValidFrom   string             `json:"valid_from" format:"date-time"`
	ValidTo     string             `json:"valid_to" format:"date-time"`
	Gas         domain.GasReadings `json:"gas"`
	Precautions string             `json:"precautions,omitempty"`
	Workers     []string           `json:"workers,omitempty"`
}

type RenewalActionRequest struct {
	Action   string `json:"action" enum:"approve,reject"`
	Reason   string `json:"reason,omitempty"`
	IfStatus string `json:"if_status,omitempty"`
}

type CreateWorkerRequest struct {
	Name       string `json:"name"`
	Age        int    `json:"age"`
	IDType     string `json:"id_type,omitempty"`
	IDNumber   string `json:"id_number,omitempty"`
	Contractor string `json:"contractor,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

type EditWorkerRequest struct {
	Name       *string `json:"name,omitempty"`
	Age        *int    `json:"age,omitempty"`
	IDType     *string `json:"id_type,omitempty"`
	IDNumber   *string `json:"id_number,omitempty"`
	Contractor *string `json:"contractor,omitempty"`
	Phone      *string `json:"phone,omitempty"`
}

type WorkerActionRequest struct {
	Action   string `json:"action" enum:"approve,reject"`
	Reason   string `json:"reason,omitempty"`
	IfStatus string `json:"if_status,omitempty"`
}

type CreateUserRequest struct {
	Email    string `json:"email" format:"email"`
	Name     string `json:"name"`
	Role     string `json:"role" enum:"Requester,Reviewer,Approver"`
	Password string `json:"password"`
}
