package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"permitflow/internal/domain"
	"permitflow/internal/engine"
	"permitflow/internal/repo"
	"permitflow/internal/workflow"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"permit transition \"approve\" not allowed for role Requester from state \"pending_review\""`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the PermitFlow API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema-level request errors are the caller's fault, not a
			// workflow rejection.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("PermitFlow API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerAuth(group, cfg.Engine, cfg.Auth)
	registerPermits(group, cfg.Engine)
	registerRenewals(group, cfg.Engine)
	registerWorkers(group, cfg.Engine)
	registerUsers(group, cfg.Engine)
	registerViews(group, cfg.Engine)
	registerEvents(group, cfg.Engine)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, "validation_failed", err.Error(), map[string]any{"field": ve.Field})
	}
	var te workflow.InvalidTransitionError
	if errors.As(err, &te) {
		return newAPIError(http.StatusUnprocessableEntity, "invalid_transition", err.Error(), map[string]any{
			"state":  te.State,
			"role":   te.Role,
			"action": te.Action,
		})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrConflict) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrBadCredentials) {
		return newAPIError(http.StatusUnauthorized, "invalid_credentials", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "invalid_transition"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

var actionErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusUnprocessableEntity,
	http.StatusInternalServerError,
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerAuth(api huma.API, e engine.Engine, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Exchange credentials for a JWT",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body LoginResponse `json:"body"`
	}, error) {
		if input.Body.Email == "" || input.Body.Password == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "email and password are required", nil)
		}
		u, err := e.Authenticate(ctx, input.Body.Email, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		now := time.Now()
		if e.Now != nil {
			now = e.Now()
		}
		token, err := signToken(authCfg.JWTSecret, u, authCfg.tokenTTL(), now)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body LoginResponse `json:"body"`
		}{Body: LoginResponse{Token: token, User: u}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{
			"email":  p.Email,
			"name":   p.Name,
			"role":   p.Role,
			"source": p.Source,
		}}, nil
	})
}

func registerPermits(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-permit",
		Method:        http.MethodPost,
		Path:          "/permits",
		Summary:       "File a new permit request",
		DefaultStatus: http.StatusCreated,
		Errors:        actionErrors,
	}, func(ctx context.Context, input *struct {
		Body CreatePermitRequest `json:"body"`
	}) (*struct {
		Body domain.Permit `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		permit, err := e.CreatePermit(ctx, engine.PermitCreateOptions{
			WorkType:       input.Body.WorkType,
			RequesterEmail: p.Email,
			RequesterName:  firstNonEmpty(input.Body.RequesterName, p.Name),
			ReviewerEmail:  input.Body.ReviewerEmail,
			ApproverEmail:  input.Body.ApproverEmail,
			ValidFrom:      input.Body.ValidFrom,
			ValidTo:        input.Body.ValidTo,
			Latitude:       input.Body.Latitude,
			Longitude:      input.Body.Longitude,
			ExactLocation:  input.Body.ExactLocation,
			LocationUnit:   input.Body.LocationUnit,
			Description:    input.Body.Description,
			Workers:        input.Body.Workers,
			Payload:        input.Body.Payload,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Permit `json:"body"`
		}{Body: permit}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-permits",
		Method:      http.MethodGet,
		Path:        "/permits",
		Summary:     "List permits",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Status   string `query:"status"`
		WorkType string `query:"work_type"`
		Mine     bool   `query:"mine" doc:"Only permits filed by the caller"`
		Limit    int    `query:"limit"`
	}) (*struct {
		Body []domain.Permit `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		f := repo.PermitFilter{
			Status:   domain.PermitStatus(input.Status),
			WorkType: input.WorkType,
			Limit:    input.Limit,
		}
		if input.Mine {
			f.RequesterEmail = p.Email
		}
		items, err := e.Repo.ListPermits(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Permit `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-permit",
		Method:      http.MethodGet,
		Path:        "/permits/{permit_id}",
		Summary:     "Get one permit",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PermitID string `path:"permit_id"`
	}) (*struct {
		Body domain.Permit `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		permit, err := e.Repo.GetPermit(ctx, input.PermitID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Permit `json:"body"`
		}{Body: permit}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "permit-action",
		Method:      http.MethodPost,
		Path:        "/permits/{permit_id}/actions",
		Summary:     "Apply a workflow action to a permit",
		Errors:      actionErrors,
	}, func(ctx context.Context, input *struct {
		PermitID string              `path:"permit_id"`
		Body     PermitActionRequest `json:"body"`
	}) (*struct {
		Body domain.Permit `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		permit, err := e.ApplyPermitAction(ctx, engine.PermitActionOptions{
			PermitID:         input.PermitID,
			Action:           workflow.Action(input.Body.Action),
			Role:             p.Role,
			ActorID:          p.Email,
			ActorName:        p.Name,
			Remarks:          input.Body.Remarks,
			Reason:           input.Body.Reason,
			IfStatus:         domain.PermitStatus(input.Body.IfStatus),
			SiteRestored:     input.Body.SiteRestored,
			RequestorRemarks: input.Body.RequestorRemarks,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Permit `json:"body"`
		}{Body: permit}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resubmit-permit",
		Method:      http.MethodPost,
		Path:        "/permits/{permit_id}/resubmit",
		Summary:     "Edit and resubmit a permit for review",
		Errors:      actionErrors,
	}, func(ctx context.Context, input *struct {
		PermitID string                `path:"permit_id"`
		Body     ResubmitPermitRequest `json:"body"`
	}) (*struct {
		Body domain.Permit `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		permit, err := e.ResubmitPermit(ctx, engine.PermitResubmitOptions{
			PermitID:  input.PermitID,
			Role:      p.Role,
			ActorID:   p.Email,
			ValidFrom: input.Body.ValidFrom,
			ValidTo:   input.Body.ValidTo,
			Workers:   input.Body.Workers,
			Payload:   input.Body.Payload,
			IfStatus:  domain.PermitStatus(input.Body.IfStatus),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Permit `json:"body"`
		}{Body: permit}, nil
	})
}

func registerRenewals(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "request-renewal",
		Method:        http.MethodPost,
		Path:          "/permits/{permit_id}/renewals",
		Summary:       "Request a permit renewal",
		DefaultStatus: http.StatusCreated,
		Errors:        actionErrors,
	}, func(ctx context.Context, input *struct {
		PermitID string         `path:"permit_id"`
		Body     RenewalRequest `json:"body"`
	}) (*struct {
		Body domain.Permit `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		permit, err := e.RequestRenewal(ctx, engine.RenewalRequestOptions{
			PermitID:    input.PermitID,
			Role:        p.Role,
			ActorID:     p.Email,
			ValidFrom:   input.Body.ValidFrom,
			ValidTo:     input.Body.ValidTo,
			Gas:         input.Body.Gas,
			Precautions: input.Body.Precautions,
			Workers:     input.Body.Workers,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Permit `json:"body"`
		}{Body: permit}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "renewal-action",
		Method:      http.MethodPost,
		Path:        "/permits/{permit_id}/renewals/actions",
		Summary:     "Decide the open renewal entry",
		Errors:      actionErrors,
	}, func(ctx context.Context, input *struct {
		PermitID string               `path:"permit_id"`
		Body     RenewalActionRequest `json:"body"`
	}) (*struct {
		Body domain.Permit `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		permit, err := e.ApplyRenewalAction(ctx, engine.RenewalActionOptions{
			PermitID: input.PermitID,
			Action:   workflow.Action(input.Body.Action),
			Role:     p.Role,
			ActorID:  p.Email,
			Reason:   input.Body.Reason,
			IfStatus: domain.PermitStatus(input.Body.IfStatus),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Permit `json:"body"`
		}{Body: permit}, nil
	})
}

func registerWorkers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-worker",
		Method:        http.MethodPost,
		Path:          "/workers",
		Summary:       "Register a worker credential",
		DefaultStatus: http.StatusCreated,
		Errors:        actionErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateWorkerRequest `json:"body"`
	}) (*struct {
		Body domain.Worker `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		w, err := e.CreateWorker(ctx, engine.WorkerCreateOptions{
			RequestorEmail: p.Email,
			Details: domain.WorkerDetails{
				Name:          input.Body.Name,
				Age:           input.Body.Age,
				IDType:        input.Body.IDType,
				IDNumber:      input.Body.IDNumber,
				Contractor:    input.Body.Contractor,
				Phone:         input.Body.Phone,
				RequestorName: p.Name,
			},
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Worker `json:"body"`
		}{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-workers",
		Method:      http.MethodGet,
		Path:        "/workers",
		Summary:     "List workers",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status"`
		Mine   bool   `query:"mine" doc:"Only workers registered by the caller"`
	}) (*struct {
		Body []domain.Worker `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		f := repo.WorkerFilter{Status: domain.WorkerStatus(input.Status)}
		if input.Mine {
			f.RequestorEmail = p.Email
		}
		items, err := e.Repo.ListWorkers(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Worker `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-worker",
		Method:      http.MethodGet,
		Path:        "/workers/{worker_id}",
		Summary:     "Get one worker",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		WorkerID string `path:"worker_id"`
	}) (*struct {
		Body domain.Worker `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		w, err := e.Repo.GetWorker(ctx, input.WorkerID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Worker `json:"body"`
		}{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "edit-worker",
		Method:      http.MethodPost,
		Path:        "/workers/{worker_id}/edit",
		Summary:     "Request changes to an approved worker",
		Errors:      actionErrors,
	}, func(ctx context.Context, input *struct {
		WorkerID string            `path:"worker_id"`
		Body     EditWorkerRequest `json:"body"`
	}) (*struct {
		Body domain.Worker `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		w, err := e.EditWorker(ctx, engine.WorkerEditOptions{
			WorkerID:   input.WorkerID,
			Role:       p.Role,
			ActorID:    p.Email,
			Name:       input.Body.Name,
			Age:        input.Body.Age,
			IDType:     input.Body.IDType,
			IDNumber:   input.Body.IDNumber,
			Contractor: input.Body.Contractor,
			Phone:      input.Body.Phone,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Worker `json:"body"`
		}{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "worker-action",
		Method:      http.MethodPost,
		Path:        "/workers/{worker_id}/actions",
		Summary:     "Apply a workflow action to a worker",
		Errors:      actionErrors,
	}, func(ctx context.Context, input *struct {
		WorkerID string              `path:"worker_id"`
		Body     WorkerActionRequest `json:"body"`
	}) (*struct {
		Body domain.Worker `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		w, err := e.ApplyWorkerAction(ctx, engine.WorkerActionOptions{
			WorkerID:  input.WorkerID,
			Action:    workflow.Action(input.Body.Action),
			Role:      p.Role,
			ActorID:   p.Email,
			ActorName: p.Name,
			Reason:    input.Body.Reason,
			IfStatus:  domain.WorkerStatus(input.Body.IfStatus),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Worker `json:"body"`
		}{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-worker",
		Method:        http.MethodDelete,
		Path:          "/workers/{worker_id}",
		Summary:       "Delete a worker credential",
		DefaultStatus: http.StatusNoContent,
		Errors:        actionErrors,
	}, func(ctx context.Context, input *struct {
		WorkerID string `path:"worker_id"`
	}) (*struct{}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteWorker(ctx, input.WorkerID, p.Role, p.Email); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Register a user in the directory",
		DefaultStatus: http.StatusCreated,
		Errors:        actionErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if p.Role != domain.RoleApprover {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "only Approvers can register users", nil)
		}
		u, err := e.CreateUser(ctx, input.Body.Email, input.Body.Name, domain.Role(input.Body.Role), input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List directory users",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.User `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListUsers(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.User `json:"body"`
		}{Body: items}, nil
	})
}

func registerViews(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "dashboard",
		Method:      http.MethodGet,
		Path:        "/dashboard",
		Summary:     "Role-scoped work queues",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body engine.Dashboard `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.GetDashboard(ctx, p.Role, p.Email)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.Dashboard `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stats",
		Method:      http.MethodGet,
		Path:        "/stats",
		Summary:     "Status breakdown across the store",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body engine.Stats `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		s, err := e.GetStats(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.Stats `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "map",
		Method:      http.MethodGet,
		Path:        "/map",
		Summary:     "Open permits with coordinates",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.MapMarker `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		markers, err := e.Repo.MapMarkers(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.MapMarker `json:"body"`
		}{Body: markers}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "permit-document",
		Method:      http.MethodGet,
		Path:        "/permits/{permit_id}/document",
		Summary:     "Printable permit snapshot with site checklists",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PermitID string `path:"permit_id"`
	}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		permit, err := e.Repo.GetPermit(ctx, input.PermitID)
		if err != nil {
			return nil, handleError(err)
		}
		body := map[string]any{"permit": permit}
		if e.Config != nil {
			body["site"] = map[string]string{
				"name":     e.Config.Site.Name,
				"document": e.Config.Site.Document,
			}
			body["checklists"] = e.Config.Checklists
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: body}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Audit log, newest first",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit"`
		Cursor     int64  `query:"cursor"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		limit := input.Limit
		if limit <= 0 || limit > 500 {
			limit = 100
		}
		items, err := e.Repo.LatestEventsFrom(ctx, limit, input.Cursor, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
