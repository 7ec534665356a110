// Package server exposes the bounty dashboard HTTP API.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"bountyboard/internal/csvimport"
	"bountyboard/internal/discover"
	"bountyboard/internal/domain"
	"bountyboard/internal/engine"
	"bountyboard/internal/github"
	"bountyboard/internal/orchestrator"
	"bountyboard/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine       *engine.Engine
	BasePath     string
	Auth         AuthConfig
	GitHub       *github.Client
	Orchestrator *orchestrator.Client
	Discovery    *discover.Service
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"invalid status transition: open -> paid"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Bountyboard API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
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
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Bountyboard API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerBounties(group, cfg.Engine)
	registerWorkflow(group, cfg.Engine, cfg.Orchestrator)
	registerImport(group, cfg.Engine)
	registerDiscover(group, cfg.Discovery)
	registerGitHub(group, cfg.GitHub)
	registerProofs(group, cfg.Engine)
	registerTenants(group, cfg.Engine)
	registerLedger(group, cfg.Engine)
	registerNotifications(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerMe(group)
	if cfg.Auth.EnableDevLogin {
		registerDevAuth(group, cfg.Auth)
	}
	registerOpenAPI(router, api, basePath)

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
	var ghErr *github.UpstreamError
	if errors.As(err, &ghErr) {
		return newAPIError(http.StatusBadGateway, "upstream_error", err.Error(), map[string]any{"upstream_status": ghErr.Status})
	}
	var orchErr *orchestrator.UpstreamError
	if errors.As(err, &orchErr) {
		return newAPIError(http.StatusBadGateway, "upstream_error", err.Error(), map[string]any{"upstream_status": orchErr.Status})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrInvalidTransition) {
		return newAPIError(http.StatusUnprocessableEntity, "invalid_transition", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrValidation) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrBadRequest) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "unique constraint"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
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
		return "validation_failed"
	case http.StatusBadGateway:
		return "upstream_error"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	open := map[string]bool{
		path.Join(basePath, "health"):         true,
		path.Join(basePath, "auth/dev/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if open[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Bountyboard API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
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

func registerBounties(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-bounty",
		Method:        http.MethodPost,
		Path:          "/bounties",
		Summary:       "Create bounty",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateBountyRequest `json:"body"`
	}) (*struct {
		Body BountyResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.TenantID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "tenant_id is required", nil)
		}
		if input.Body.Title == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		desc := ""
		if input.Body.Description != nil {
			desc = *input.Body.Description
		}
		b, err := e.CreateBounty(ctx, engine.CreateBountyParams{
			TenantID:     input.Body.TenantID,
			Title:        input.Body.Title,
			Description:  desc,
			Value:        input.Body.Value,
			Currency:     input.Body.Currency,
			Source:       input.Body.Source,
			SourceURL:    input.Body.SourceURL,
			Repo:         input.Body.Repo,
			Org:          input.Body.Org,
			IssueNumber:  input.Body.IssueNumber,
			Labels:       input.Body.Labels,
			Technologies: input.Body.Technologies,
			Status:       input.Body.Status,
			ActorID:      userID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BountyResponse `json:"body"`
		}{Body: bountyResponse(b)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-bounties",
		Method:      http.MethodGet,
		Path:        "/bounties",
		Summary:     "List bounties",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		TenantID   string `query:"tenant_id"`
		Status     string `query:"status"`
		Source     string `query:"source"`
		AssigneeID string `query:"assignee_id"`
		Limit      int    `query:"limit"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body BountyListResponse `json:"body"`
	}, error) {
		if input.Status != "" && !domain.KnownStatus(input.Status) {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown status filter", map[string]any{"status": input.Status})
		}
		limit := normalizeLimit(input.Limit)
		cursorCreated, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := e.Repo.ListBounties(ctx, repo.BountyFilters{
			TenantID:        input.TenantID,
			Status:          input.Status,
			Source:          input.Source,
			AssigneeID:      input.AssigneeID,
			Limit:           limit + 1,
			CursorCreatedAt: cursorCreated,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := BountyListResponse{}
		if len(items) > limit {
			resp.NextCursor = composeCursor(items[limit].CreatedAt, items[limit].ID)
			items = items[:limit]
		}
		resp.Items = mapBounties(items)
		return &struct {
			Body BountyListResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-bounty",
		Method:      http.MethodGet,
		Path:        "/bounties/{bounty_id}",
		Summary:     "Get bounty",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		BountyID string `path:"bounty_id"`
	}) (*struct {
		Body BountyResponse `json:"body"`
	}, error) {
		b, err := e.Repo.GetBounty(ctx, input.BountyID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BountyResponse `json:"body"`
		}{Body: bountyResponse(b)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-bounty",
		Method:      http.MethodPatch,
		Path:        "/bounties/{bounty_id}",
		Summary:     "Update bounty",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		BountyID string              `path:"bounty_id"`
		Body     UpdateBountyRequest `json:"body"`
	}) (*struct {
		Body BountyResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b, err := e.UpdateBounty(ctx, input.BountyID, engine.UpdateBountyParams{
			Status:       input.Body.Status,
			Title:        input.Body.Title,
			Description:  input.Body.Description,
			Value:        input.Body.Value,
			AssigneeID:   input.Body.AssigneeID,
			PRURL:        input.Body.PRURL,
			Labels:       input.Body.Labels,
			Technologies: input.Body.Technologies,
			Force:        input.Body.Force,
			ActorID:      userID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BountyResponse `json:"body"`
		}{Body: bountyResponse(b)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-bounty",
		Method:        http.MethodDelete,
		Path:          "/bounties/{bounty_id}",
		Summary:       "Delete bounty",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		BountyID string `path:"bounty_id"`
	}) (*struct{}, error) {
		if err := e.Repo.DeleteBounty(ctx, input.BountyID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

// registerWorkflow proxies run control to the orchestrator and mirrors the
// outcome onto the bounty's status.
func registerWorkflow(api huma.API, e *engine.Engine, orch *orchestrator.Client) {
	type bountyPath struct {
		BountyID string `path:"bounty_id"`
	}
	type runOutput struct {
		Body orchestrator.RunStatus `json:"body"`
	}

	transition := func(ctx context.Context, id, status, userID string) error {
		_, err := e.UpdateBounty(ctx, id, engine.UpdateBountyParams{Status: &status, ActorID: userID})
		return err
	}

	requireOrch := func() huma.StatusError {
		if orch == nil || strings.TrimSpace(orch.BaseURL) == "" {
			return newAPIError(http.StatusInternalServerError, "missing_configuration", "orchestrator URL is not configured", nil)
		}
		return nil
	}

	huma.Register(api, huma.Operation{
		OperationID: "start-bounty-run",
		Method:      http.MethodPost,
		Path:        "/bounties/{bounty_id}/start",
		Summary:     "Start orchestrator run",
		Errors: []int{
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *bountyPath) (*runOutput, error) {
		if cfgErr := requireOrch(); cfgErr != nil {
			return nil, cfgErr
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b, err := e.Repo.GetBounty(ctx, input.BountyID)
		if err != nil {
			return nil, handleError(err)
		}
		if !domain.ValidTransition(b.Status, domain.StatusInProgress) {
			return nil, handleError(fmt.Errorf("%w: %s -> %s", engine.ErrInvalidTransition, b.Status, domain.StatusInProgress))
		}
		run, err := orch.Start(ctx, orchestrator.StartRequest{
			BountyID:  b.ID,
			Title:     b.Title,
			SourceURL: b.SourceURL,
			Repo:      b.Repo,
			Labels:    decodeStringSlice(b.LabelsJSON),
		})
		if err != nil {
			return nil, handleError(err)
		}
		if err := transition(ctx, b.ID, domain.StatusInProgress, userID); err != nil {
			return nil, handleError(err)
		}
		return &runOutput{Body: run}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-bounty-run",
		Method:      http.MethodGet,
		Path:        "/bounties/{bounty_id}/run",
		Summary:     "Orchestrator run status",
		Errors: []int{
			http.StatusNotFound,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *bountyPath) (*runOutput, error) {
		if cfgErr := requireOrch(); cfgErr != nil {
			return nil, cfgErr
		}
		if _, err := e.Repo.GetBounty(ctx, input.BountyID); err != nil {
			return nil, handleError(err)
		}
		run, err := orch.Status(ctx, input.BountyID)
		if err != nil {
			return nil, handleError(err)
		}
		return &runOutput{Body: run}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-bounty-run",
		Method:      http.MethodPost,
		Path:        "/bounties/{bounty_id}/approve",
		Summary:     "Approve run and complete bounty",
		Errors: []int{
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *bountyPath) (*runOutput, error) {
		if cfgErr := requireOrch(); cfgErr != nil {
			return nil, cfgErr
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b, err := e.Repo.GetBounty(ctx, input.BountyID)
		if err != nil {
			return nil, handleError(err)
		}
		if !domain.ValidTransition(b.Status, domain.StatusCompleted) {
			return nil, handleError(fmt.Errorf("%w: %s -> %s", engine.ErrInvalidTransition, b.Status, domain.StatusCompleted))
		}
		run, err := orch.Approve(ctx, b.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := transition(ctx, b.ID, domain.StatusCompleted, userID); err != nil {
			return nil, handleError(err)
		}
		return &runOutput{Body: run}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-bounty-run",
		Method:      http.MethodPost,
		Path:        "/bounties/{bounty_id}/reject",
		Summary:     "Reject run and send bounty back for revision",
		Errors: []int{
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		BountyID string           `path:"bounty_id"`
		Body     RejectRunRequest `json:"body,omitempty"`
	}) (*runOutput, error) {
		if cfgErr := requireOrch(); cfgErr != nil {
			return nil, cfgErr
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b, err := e.Repo.GetBounty(ctx, input.BountyID)
		if err != nil {
			return nil, handleError(err)
		}
		if !domain.ValidTransition(b.Status, domain.StatusRevision) {
			return nil, handleError(fmt.Errorf("%w: %s -> %s", engine.ErrInvalidTransition, b.Status, domain.StatusRevision))
		}
		run, err := orch.Reject(ctx, b.ID, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		if err := transition(ctx, b.ID, domain.StatusRevision, userID); err != nil {
			return nil, handleError(err)
		}
		return &runOutput{Body: run}, nil
	})
}

func registerImport(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "import-bounties",
		Method:      http.MethodPost,
		Path:        "/import",
		Summary:     "Import bounties from CSV",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Body ImportRequest `json:"body"`
	}) (*struct {
		Body engine.ImportResult `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.TenantID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "tenant_id is required", nil)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.ImportBounties(ctx, input.Body.TenantID, input.Body.Filename, input.Body.Content, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ImportResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "import-template",
		Method:      http.MethodGet,
		Path:        "/import/template",
		Summary:     "Download the example CSV",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		ContentType string `header:"Content-Type"`
		Disposition string `header:"Content-Disposition"`
		Body        []byte
	}, error) {
		return &struct {
			ContentType string `header:"Content-Type"`
			Disposition string `header:"Content-Disposition"`
			Body        []byte
		}{
			ContentType: "text/csv",
			Disposition: `attachment; filename="bounties-template.csv"`,
			Body:        []byte(csvimport.Template),
		}, nil
	})
}

func registerDiscover(api huma.API, svc *discover.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "discover-bounties",
		Method:      http.MethodGet,
		Path:        "/discover",
		Summary:     "Discover bounty candidates across sources",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Language string  `query:"language"`
		MinValue float64 `query:"min_value"`
		Limit    int     `query:"limit"`
	}) (*struct {
		Body discover.Result `json:"body"`
	}, error) {
		res, err := svc.Run(ctx, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		res.Candidates = discover.Filter(res.Candidates, input.Language, input.MinValue)
		return &struct {
			Body discover.Result `json:"body"`
		}{Body: res}, nil
	})
}

func registerGitHub(api huma.API, gh *github.Client) {
	type repoPath struct {
		Owner string `path:"owner"`
		Repo  string `path:"repo"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "github-get-repo",
		Method:      http.MethodGet,
		Path:        "/github/repos/{owner}/{repo}",
		Summary:     "Proxy: repository metadata",
		Errors:      []int{http.StatusBadGateway},
	}, func(ctx context.Context, input *repoPath) (*struct {
		Body github.Repository `json:"body"`
	}, error) {
		r, err := gh.GetRepo(ctx, input.Owner, input.Repo)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body github.Repository `json:"body"`
		}{Body: r}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "github-get-issue",
		Method:      http.MethodGet,
		Path:        "/github/repos/{owner}/{repo}/issues/{number}",
		Summary:     "Proxy: issue detail",
		Errors:      []int{http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		Owner  string `path:"owner"`
		Repo   string `path:"repo"`
		Number int    `path:"number"`
	}) (*struct {
		Body github.Issue `json:"body"`
	}, error) {
		issue, err := gh.GetIssue(ctx, input.Owner, input.Repo, input.Number)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body github.Issue `json:"body"`
		}{Body: issue}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "github-list-contributors",
		Method:      http.MethodGet,
		Path:        "/github/repos/{owner}/{repo}/contributors",
		Summary:     "Proxy: repository contributors",
		Errors:      []int{http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		Owner string `path:"owner"`
		Repo  string `path:"repo"`
		Limit int    `query:"limit"`
	}) (*struct {
		Body []github.Contributor `json:"body"`
	}, error) {
		items, err := gh.ListContributors(ctx, input.Owner, input.Repo, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []github.Contributor `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "github-search-issues",
		Method:      http.MethodGet,
		Path:        "/github/search/issues",
		Summary:     "Proxy: issue search",
		Errors:      []int{http.StatusBadRequest, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		Q     string `query:"q"`
		Limit int    `query:"limit"`
	}) (*struct {
		Body github.SearchResult `json:"body"`
	}, error) {
		if strings.TrimSpace(input.Q) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "q is required", nil)
		}
		res, err := gh.SearchIssues(ctx, input.Q, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body github.SearchResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "github-graphql",
		Method:      http.MethodPost,
		Path:        "/github/graphql",
		Summary:     "Proxy: GraphQL passthrough",
		Errors:      []int{http.StatusBadRequest, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		Body GraphQLRequest `json:"body"`
	}) (*struct {
		Body json.RawMessage `json:"body"`
	}, error) {
		if strings.TrimSpace(gh.Token) == "" {
			// REST proxies work anonymously; the GraphQL API does not.
			return nil, newAPIError(http.StatusInternalServerError, "missing_configuration", "github token is not configured", nil)
		}
		if strings.TrimSpace(input.Body.Query) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "query is required", nil)
		}
		raw, err := gh.GraphQL(ctx, input.Body.Query, input.Body.Variables)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body json.RawMessage `json:"body"`
		}{Body: raw}, nil
	})
}

func registerProofs(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-proof",
		Method:        http.MethodPost,
		Path:          "/bounties/{bounty_id}/proofs",
		Summary:       "Attach proof of work",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		BountyID string             `path:"bounty_id"`
		Body     CreateProofRequest `json:"body"`
	}) (*struct {
		Body ProofResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		proof, err := e.AttachProof(ctx, input.BountyID, engine.AttachProofParams{
			Recordings:  input.Body.Recordings,
			Screenshots: input.Body.Screenshots,
			Diff:        input.Body.Diff,
			Vetting:     input.Body.Vetting,
			Summary:     input.Body.Summary,
			ActorID:     userID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProofResponse `json:"body"`
		}{Body: proofResponse(proof)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-proofs",
		Method:      http.MethodGet,
		Path:        "/bounties/{bounty_id}/proofs",
		Summary:     "List proofs for a bounty",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		BountyID string `path:"bounty_id"`
	}) (*struct {
		Body []ProofResponse `json:"body"`
	}, error) {
		if _, err := e.Repo.GetBounty(ctx, input.BountyID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListProofsForBounty(ctx, input.BountyID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]ProofResponse, 0, len(items))
		for _, p := range items {
			res = append(res, proofResponse(p))
		}
		return &struct {
			Body []ProofResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-proof",
		Method:      http.MethodGet,
		Path:        "/proofs/{proof_id}",
		Summary:     "Get proof",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProofID string `path:"proof_id"`
	}) (*struct {
		Body ProofResponse `json:"body"`
	}, error) {
		p, err := e.Repo.GetProof(ctx, input.ProofID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProofResponse `json:"body"`
		}{Body: proofResponse(p)}, nil
	})
}

func registerTenants(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-tenant",
		Method:        http.MethodPost,
		Path:          "/tenants",
		Summary:       "Create tenant",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateTenantRequest `json:"body"`
	}) (*struct {
		Body TenantResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CreateTenant(ctx, engine.CreateTenantParams{
			Host:         input.Body.Host,
			Name:         input.Body.Name,
			PrimaryColor: input.Body.PrimaryColor,
			LogoURL:      input.Body.LogoURL,
			Tagline:      input.Body.Tagline,
			ActorID:      userID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TenantResponse `json:"body"`
		}{Body: tenantResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tenants",
		Method:      http.MethodGet,
		Path:        "/tenants",
		Summary:     "List tenants",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []TenantResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListTenants(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]TenantResponse, 0, len(items))
		for _, t := range items {
			res = append(res, tenantResponse(t))
		}
		return &struct {
			Body []TenantResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-tenant",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}",
		Summary:     "Get tenant",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
	}) (*struct {
		Body TenantResponse `json:"body"`
	}, error) {
		t, err := e.Repo.GetTenant(ctx, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TenantResponse `json:"body"`
		}{Body: tenantResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "tenant-stats",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/stats",
		Summary:     "Tenant dashboard stats",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
	}) (*struct {
		Body TenantStatsResponse `json:"body"`
	}, error) {
		t, err := e.Repo.GetTenant(ctx, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		counts, err := e.Repo.CountBountiesByStatus(ctx, t.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TenantStatsResponse `json:"body"`
		}{Body: TenantStatsResponse{
			TenantID:     t.ID,
			BountyCount:  t.BountyCount,
			OpenCount:    t.OpenCount,
			TotalPaid:    t.TotalPaid,
			StatusCounts: counts,
		}}, nil
	})
}

func registerLedger(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-ledger-entry",
		Method:        http.MethodPost,
		Path:          "/ledger",
		Summary:       "Record a ledger entry",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateLedgerEntryRequest `json:"body"`
	}) (*struct {
		Body domain.LedgerEntry `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.BountyID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "bounty_id is required", nil)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		entry, err := e.CreateLedgerEntry(ctx, engine.CreateLedgerEntryParams{
			BountyID:      input.Body.BountyID,
			Type:          input.Body.Type,
			Amount:        input.Body.Amount,
			Currency:      input.Body.Currency,
			PaymentMethod: input.Body.PaymentMethod,
			Reference:     input.Body.Reference,
			ActorID:       userID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.LedgerEntry `json:"body"`
		}{Body: entry}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-ledger",
		Method:      http.MethodGet,
		Path:        "/ledger",
		Summary:     "List ledger entries",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		BountyID string `query:"bounty_id"`
		TenantID string `query:"tenant_id"`
		Type     string `query:"type"`
		Status   string `query:"status"`
		Limit    int    `query:"limit"`
	}) (*struct {
		Body []domain.LedgerEntry `json:"body"`
	}, error) {
		items, err := e.Repo.ListLedgerEntries(ctx, repo.LedgerFilters{
			BountyID: input.BountyID,
			TenantID: input.TenantID,
			Type:     input.Type,
			Status:   input.Status,
			Limit:    normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.LedgerEntry{}
		}
		return &struct {
			Body []domain.LedgerEntry `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-ledger-entry",
		Method:      http.MethodGet,
		Path:        "/ledger/{entry_id}",
		Summary:     "Get ledger entry",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EntryID string `path:"entry_id"`
	}) (*struct {
		Body domain.LedgerEntry `json:"body"`
	}, error) {
		entry, err := e.Repo.GetLedgerEntry(ctx, input.EntryID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.LedgerEntry `json:"body"`
		}{Body: entry}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "settle-ledger-entry",
		Method:      http.MethodPost,
		Path:        "/ledger/{entry_id}/settle",
		Summary:     "Settle a pending entry",
		Errors: []int{
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		EntryID string                   `path:"entry_id"`
		Body    SettleLedgerEntryRequest `json:"body,omitempty"`
	}) (*struct {
		Body domain.LedgerEntry `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		entry, err := e.SettleLedgerEntry(ctx, input.EntryID, input.Body.Reference, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.LedgerEntry `json:"body"`
		}{Body: entry}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "fail-ledger-entry",
		Method:      http.MethodPost,
		Path:        "/ledger/{entry_id}/fail",
		Summary:     "Mark a pending entry failed",
		Errors: []int{
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		EntryID string                 `path:"entry_id"`
		Body    FailLedgerEntryRequest `json:"body,omitempty"`
	}) (*struct {
		Body domain.LedgerEntry `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		entry, err := e.FailLedgerEntry(ctx, input.EntryID, input.Body.Reason, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.LedgerEntry `json:"body"`
		}{Body: entry}, nil
	})
}

func registerNotifications(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/notifications",
		Summary:     "List my notifications",
	}, func(ctx context.Context, input *struct {
		Unread bool `query:"unread"`
		Limit  int  `query:"limit"`
	}) (*struct {
		Body []domain.Notification `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListNotifications(ctx, userID, input.Unread, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Notification{}
		}
		return &struct {
			Body []domain.Notification `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-notification",
		Method:        http.MethodPost,
		Path:          "/notifications",
		Summary:       "Post a notification",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateNotificationRequest `json:"body"`
	}) (*struct {
		Body domain.Notification `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		n, err := e.CreateNotification(ctx, engine.CreateNotificationParams{
			UserID:   input.Body.UserID,
			Kind:     input.Body.Kind,
			Title:    input.Body.Title,
			Body:     input.Body.Body,
			BountyID: input.Body.BountyID,
			ActorID:  actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Notification `json:"body"`
		}{Body: n}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "read-notification",
		Method:      http.MethodPost,
		Path:        "/notifications/{notification_id}/read",
		Summary:     "Mark one notification read",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		NotificationID string `path:"notification_id"`
	}) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.Repo.MarkNotificationRead(ctx, input.NotificationID, userID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "read-all-notifications",
		Method:      http.MethodPost,
		Path:        "/notifications/read-all",
		Summary:     "Mark all my notifications read",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]int64 `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		n, err := e.Repo.MarkAllNotificationsRead(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]int64 `json:"body"`
		}{Body: map[string]int64{"marked": n}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-notification-prefs",
		Method:      http.MethodGet,
		Path:        "/notifications/prefs",
		Summary:     "My notification preferences",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.NotificationPrefs `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		prefs, err := e.Repo.GetNotificationPrefs(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.NotificationPrefs `json:"body"`
		}{Body: prefs}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-notification-prefs",
		Method:      http.MethodPut,
		Path:        "/notifications/prefs",
		Summary:     "Replace my notification preferences",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body UpdatePrefsRequest `json:"body"`
	}) (*struct {
		Body domain.NotificationPrefs `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		prefs, err := e.SaveNotificationPrefs(ctx, domain.NotificationPrefs{
			UserID:          userID,
			BountyUpdates:   input.Body.BountyUpdates,
			PayoutAlerts:    input.Body.PayoutAlerts,
			DiscoveryDigest: input.Body.DiscoveryDigest,
			SlackDMs:        input.Body.SlackDMs,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.NotificationPrefs `json:"body"`
		}{Body: prefs}, nil
	})
}

func registerEvents(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Latest events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body EventListResponse `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEventsFrom(ctx, limit+1, cursorID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := EventListResponse{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit].ID)
			items = items[:limit]
		}
		for _, ev := range items {
			resp.Items = append(resp.Items, eventResponse(ev))
		}
		return &struct {
			Body EventListResponse `json:"body"`
		}{Body: resp}, nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			UserID: principal.UserID,
			Roles:  nonNilSlice(principal.Roles),
			Source: principal.Source,
		}}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		user := strings.TrimSpace(input.Body.UserID)
		if user == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "user_id is required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, user, input.Body.Roles)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

func parseCompositeCursor(cursor string) (string, string, error) {
	if cursor == "" {
		return "", "", nil
	}
	parts := strings.SplitN(cursor, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid cursor")
	}
	return parts[0], parts[1], nil
}

func composeCursor(ts, id string) string {
	if ts == "" || id == "" {
		return ""
	}
	return ts + "|" + id
}
