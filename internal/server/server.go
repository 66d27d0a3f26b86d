package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"greendesk/internal/app"
	"greendesk/internal/marketplace"
	"greendesk/internal/moderation"
	"greendesk/internal/store"
)

// Config for the HTTP API handler.
type Config struct {
	App      *app.App
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"receipt not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope every endpoint returns.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Greendesk admin API.
func New(cfg Config) (http.Handler, error) {
	if cfg.App == nil {
		return nil, errors.New("server: app is required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope above.
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
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.App.Store))
	hcfg := huma.DefaultConfig("Greendesk Admin API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerDashboard(group, cfg.App)
	registerReviews(group, cfg.App)
	registerReceipts(group, cfg.App)
	registerAuditLog(group, cfg.App)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.App)

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
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	switch {
	case errors.Is(err, moderation.ErrUnknownReview):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, moderation.ErrUnknownToken):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, moderation.ErrDeleteInFlight):
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	case errors.Is(err, store.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	var ae *marketplace.APIError
	if errors.As(err, &ae) {
		return newAPIError(http.StatusBadGateway, "upstream_error", "marketplace request failed", map[string]any{
			"upstream_status": ae.StatusCode,
		})
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") || strings.Contains(lowered, "negative") || strings.Contains(lowered, "malformed"):
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
	case http.StatusBadGateway:
		return "upstream_error"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
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

func registerDashboard(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID: "dashboard",
		Method:      http.MethodGet,
		Path:        "/admin/dashboard",
		Summary:     "Aggregated pending-task queue",
		Description: "Fetches pending tasks from every marketplace domain concurrently and returns one ordered queue. Domains whose fetch failed are listed in failed_domains; their tasks are absent for this cycle, never stale.",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body DashboardResponse `json:"body"`
	}, error) {
		if _, authErr := operatorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		res := a.Dashboard(ctx)
		return &struct {
			Body DashboardResponse `json:"body"`
		}{Body: dashboardResponse(res)}, nil
	})
}

func registerReviews(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID: "list-reviews",
		Method:      http.MethodGet,
		Path:        "/admin/reviews",
		Summary:     "List reviews pending moderation",
		Errors:      []int{http.StatusBadGateway},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ReviewListResponse `json:"body"`
	}, error) {
		if _, authErr := operatorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		reviews, err := a.Moderation.List(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReviewListResponse `json:"body"`
		}{Body: ReviewListResponse{Items: mapReviews(reviews)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "request-review-delete",
		Method:        http.MethodPost,
		Path:          "/admin/reviews/{review_id}/delete-requests",
		Summary:       "Request review deletion",
		Description:   "Starts the two-step delete protocol and returns a confirmation token. Nothing is deleted until the token is confirmed.",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ReviewID string `path:"review_id"`
	}) (*struct {
		Body DeleteRequestResponse `json:"body"`
	}, error) {
		if _, authErr := operatorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		token, err := a.Moderation.RequestDelete(input.ReviewID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DeleteRequestResponse `json:"body"`
		}{Body: DeleteRequestResponse{Token: token, ReviewID: input.ReviewID}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "confirm-review-delete",
		Method:      http.MethodPost,
		Path:        "/admin/reviews/delete-requests/{token}/confirm",
		Summary:     "Confirm review deletion",
		Description: "Consumes the confirmation token and performs the destructive marketplace call. A failed backend call leaves the review in place; the token is spent either way.",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		Token string `path:"token"`
	}) (*struct {
		Body DeleteConfirmResponse `json:"body"`
	}, error) {
		operator, authErr := operatorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		id, err := a.DeleteReview(ctx, input.Token, operator)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DeleteConfirmResponse `json:"body"`
		}{Body: DeleteConfirmResponse{ReviewID: id, Deleted: true}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "cancel-review-delete",
		Method:        http.MethodDelete,
		Path:          "/admin/reviews/delete-requests/{token}",
		Summary:       "Cancel review deletion",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		Token string `path:"token"`
	}) (*struct{}, error) {
		if _, authErr := operatorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		a.Moderation.CancelDelete(input.Token)
		return &struct{}{}, nil
	})
}

func registerReceipts(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID:   "compose-receipt",
		Method:        http.MethodPost,
		Path:          "/admin/orders/{order_id}/receipt",
		Summary:       "Compose and archive a receipt",
		Description:   "Fetches the order snapshot, computes the total from line items, archives the printable receipt, and records an audit entry.",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		OrderID string `path:"order_id"`
	}) (*struct {
		Body ReceiptResponse `json:"body"`
	}, error) {
		operator, authErr := operatorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rc, err := a.ComposeReceipt(ctx, input.OrderID, operator)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReceiptResponse `json:"body"`
		}{Body: receiptResponse(rc)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-receipts",
		Method:      http.MethodGet,
		Path:        "/admin/receipts",
		Summary:     "List archived receipts",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"50"`
	}) (*struct {
		Body ReceiptListResponse `json:"body"`
	}, error) {
		if _, authErr := operatorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		receipts, err := a.Store.ListReceipts(ctx, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReceiptListResponse `json:"body"`
		}{Body: ReceiptListResponse{Items: mapReceipts(receipts)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-receipt",
		Method:      http.MethodGet,
		Path:        "/admin/receipts/{receipt_no}",
		Summary:     "Get archived receipt",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ReceiptNo string `path:"receipt_no"`
	}) (*struct {
		Body ReceiptResponse `json:"body"`
	}, error) {
		if _, authErr := operatorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		rc, err := a.Store.GetReceipt(ctx, input.ReceiptNo)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReceiptResponse `json:"body"`
		}{Body: receiptResponse(rc)}, nil
	})
}

func registerAuditLog(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID: "audit-log",
		Method:      http.MethodGet,
		Path:        "/admin/audit-log",
		Summary:     "Latest audit entries",
	}, func(ctx context.Context, input *struct {
		Type  string `query:"type"`
		Limit int    `query:"limit" default:"50"`
	}) (*struct {
		Body AuditLogResponse `json:"body"`
	}, error) {
		if _, authErr := operatorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		events, err := a.Store.LatestAuditEvents(ctx, input.Limit, input.Type)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AuditLogResponse `json:"body"`
		}{Body: AuditLogResponse{Items: mapAuditEvents(events)}}, nil
	})
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
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
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
    <title>Greendesk API Docs</title>
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
