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
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"travelcatalog/internal/catalog"
	"travelcatalog/internal/logging"
	"travelcatalog/internal/markup"
	"travelcatalog/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Resolver      *catalog.Resolver
	Aggregator    *catalog.Aggregator
	BasePath      string
	Auth          AuthConfig
	Logger        logging.Logger
	PrefetchLimit int
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"category_not_registered"`
	Message string         `json:"message" example:"category \"gardens\" not registered"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"category\":\"gardens\"}"`
}

// apiError models the error envelope shared by every endpoint.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

type handlers struct {
	resolver      *catalog.Resolver
	aggregator    *catalog.Aggregator
	registry      *catalog.Registry
	renderer      markup.Renderer
	prefetchLimit int
}

// New returns an HTTP handler exposing the catalog API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Resolver == nil || cfg.Aggregator == nil {
		return nil, errors.New("server: resolver and aggregator are required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NoOp()
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the shared envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(requestLogger(logger))
	router.Use(newAuthMiddleware(cfg.Auth))
	hcfg := huma.DefaultConfig("Travel Catalog API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	h := handlers{
		resolver:      cfg.Resolver,
		aggregator:    cfg.Aggregator,
		registry:      cfg.Resolver.Registry(),
		renderer:      markup.New(),
		prefetchLimit: cfg.PrefetchLimit,
	}
	registerDocs(router, basePath)
	registerHealth(group)
	h.registerCategories(group)
	h.registerCards(group)
	h.registerItems(group)
	h.registerPrefetch(group)
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
	var nre *catalog.NotRegisteredError
	if errors.As(err, &nre) {
		return newAPIError(http.StatusNotFound, "category_not_registered", err.Error(), map[string]any{"category": nre.CategoryID})
	}
	if errors.Is(err, catalog.ErrNotFound) || errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	var le *catalog.LoadError
	if errors.As(err, &le) {
		return newAPIError(http.StatusInternalServerError, "content_load_failed", "content could not be loaded", map[string]any{
			"category": le.Category,
			"locale":   le.Locale,
			"path":     le.Path,
		})
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return newAPIError(http.StatusServiceUnavailable, "request_canceled", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// requestLogger tags each request with an id and logs its outcome.
func requestLogger(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get("X-Request-Id"))
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set("X-Request-Id", id)
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			args := []any{
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if status >= http.StatusInternalServerError {
				logger.Error("request failed", args...)
				return
			}
			logger.Info("request", args...)
		})
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		spec []byte
	)
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas)
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

// applyAuthSecurity documents the optional preview bearer token.
func applyAuthSecurity(oas *huma.OpenAPI) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["previewToken"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
		Description:  "HS256 token with scope=preview; shows unpublished content.",
	}
	oas.Security = []map[string][]string{{}, {"previewToken": {}}}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Travel Catalog API Docs</title>
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
      Send Authorization: Bearer &lt;preview token&gt; to include unpublished content.
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

func (h handlers) registerCategories(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-categories",
		Method:      http.MethodGet,
		Path:        "/categories",
		Summary:     "List registered categories",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []CategoryResponse `json:"body"`
	}, error) {
		descs := h.registry.Categories()
		out := make([]CategoryResponse, 0, len(descs))
		for _, d := range descs {
			out = append(out, categoryResponse(d))
		}
		return &struct {
			Body []CategoryResponse `json:"body"`
		}{Body: out}, nil
	})
}

func (h handlers) registerCards(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-cards",
		Method:      http.MethodGet,
		Path:        "/categories/{category}/cards",
		Summary:     "List a category's cards",
		Errors:      []int{http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Category    string `path:"category"`
		Locale      string `query:"locale"`
		Query       string `query:"q"`
		Subcategory string `query:"subcategory"`
	}) (*struct {
		ContentLanguage string        `header:"Content-Language"`
		Body            CardsResponse `json:"body"`
	}, error) {
		res, err := h.aggregator.Index(ctx, input.Category, input.Locale)
		if err != nil {
			return nil, handleError(err)
		}
		pred := catalog.All(catalog.TitleContains(input.Query), catalog.InSubcategory(input.Subcategory))
		if !isPreview(ctx) {
			pred = catalog.All(catalog.Published(), pred)
		}
		cards := catalog.FilterCards(res.Value, pred)
		return &struct {
			ContentLanguage string        `header:"Content-Language"`
			Body            CardsResponse `json:"body"`
		}{ContentLanguage: res.LocaleServed, Body: cardsResponse(input.Category, res, cards)}, nil
	})
}

func (h handlers) registerItems(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "get-item",
		Method:      http.MethodGet,
		Path:        "/categories/{category}/items/{slug}",
		Summary:     "Get one detail record",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Category string `path:"category"`
		Slug     string `path:"slug"`
		Locale   string `query:"locale"`
		Format   string `query:"format" doc:"json (default) or html; html adds the rendered long description"`
	}) (*struct {
		ContentLanguage string       `header:"Content-Language"`
		Body            ItemResponse `json:"body"`
	}, error) {
		if input.Format != "" && input.Format != "json" && input.Format != "html" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid format", map[string]any{"format": input.Format})
		}
		res, err := h.resolver.ResolveRecord(ctx, input.Category, input.Slug, input.Locale)
		if err != nil {
			return nil, handleError(err)
		}
		if !res.Value.IsLive && !isPreview(ctx) {
			return nil, handleError(&catalog.NotFoundError{Category: input.Category, Slug: input.Slug, Locale: res.RequestedLocale})
		}
		body := itemResponse(input.Category, res)
		if input.Format == "html" {
			html, err := h.renderer.HTML(res.Value.LongDescription)
			if err != nil {
				return nil, handleError(err)
			}
			body.HTML = html
		}
		return &struct {
			ContentLanguage string       `header:"Content-Language"`
			Body            ItemResponse `json:"body"`
		}{ContentLanguage: res.LocaleServed, Body: body}, nil
	})
}

func (h handlers) registerPrefetch(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "prefetch-items",
		Method:      http.MethodPost,
		Path:        "/categories/{category}/prefetch",
		Summary:     "Resolve several items at once",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Category string          `path:"category"`
		Body     PrefetchRequest `json:"body"`
	}) (*struct {
		Body PrefetchResponse `json:"body"`
	}, error) {
		results, err := h.resolver.Prefetch(ctx, input.Category, input.Body.Slugs, input.Body.Locale, h.prefetchLimit)
		if err != nil {
			return nil, handleError(err)
		}
		preview := isPreview(ctx)
		resp := PrefetchResponse{Category: input.Category, Items: make([]PrefetchItem, 0, len(results))}
		for _, r := range results {
			resp.Items = append(resp.Items, prefetchItem(r, preview))
		}
		return &struct {
			Body PrefetchResponse `json:"body"`
		}{Body: resp}, nil
	})
}
