package app

import (
	_ "embed"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	openapimiddleware "github.com/oapi-codegen/nethttp-middleware"
	"github.com/oapi-codegen/runtime"

	"github.com/suivivente/apps/api/internal/audit"
	"github.com/suivivente/apps/api/internal/config"
	"github.com/suivivente/apps/api/internal/handlers"
	"github.com/suivivente/apps/api/internal/httpx"
	"github.com/suivivente/apps/api/internal/importer"
	"github.com/suivivente/apps/api/internal/middleware"
	"github.com/suivivente/apps/api/internal/store"
)

//go:embed openapi.yaml
var openAPISpec []byte

func NewRouter(cfg config.Config, st *store.Store, logger *slog.Logger) (http.Handler, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openAPISpec)
	if err != nil {
		return nil, fmt.Errorf("load openapi spec: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("validate openapi spec: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.SecurityHeaders(cfg.Env))
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.BodyLimits{
		Default:     cfg.APIMaxBodyBytes,
		Upload:      cfg.ImportMaxFileBytes + 1<<20,
		UploadPaths: []string{"/imports/"},
	}.Middleware)

	api := chi.NewRouter()
	api.Use(openapimiddleware.OapiRequestValidatorWithOptions(doc, &openapimiddleware.Options{
		SilenceServersWarning: true,
		// multipart uploads are checked by the import handlers
		Options: openapi3filter.Options{ExcludeRequestBody: true},
		ErrorHandler: func(w http.ResponseWriter, message string, statusCode int) {
			requestID := w.Header().Get("X-Request-Id")
			httpx.WriteJSON(w, statusCode, httpx.ErrorEnvelope{
				Error:     httpx.ErrorBody{Code: "validation_error", Message: message},
				RequestID: requestID,
			})
		},
	}))

	auditLogger := audit.NewLogger(st.Pool())
	svc := importer.NewService(st, logger,
		importer.WithBatchSize(cfg.ImportBatchSize),
		importer.WithMaxRows(cfg.ImportMaxRows),
	)
	h := handlers.NewServer(cfg, st, svc, auditLogger, logger)

	authMW := middleware.AuthMiddleware{Sessions: st, CookieName: cfg.SessionCookieName}
	loginLimiter := middleware.NewLoginRateLimiter(10, time.Minute)
	importLimiter := middleware.NewIPRateLimiterWithMaxEntries(30, time.Minute, cfg.RateLimitMaxIPs)
	csrf := middleware.EnforceCSRF(cfg.CSRFEnforce)

	api.Group(func(public chi.Router) {
		public.With(loginLimiter.Middleware).Post("/auth/login", h.PostAuthLogin)
		public.Get("/health", h.GetHealth)
	})

	api.Group(func(protected chi.Router) {
		protected.Use(authMW.RequireAuth)
		protected.Get("/auth/me", h.GetAuthMe)
		protected.Get("/auth/csrf", h.GetAuthCsrf)
		protected.With(csrf).Post("/auth/logout", h.PostAuthLogout)

		protected.With(
			importLimiter.Middleware("Too many imports, try again later"),
			csrf,
		).Post("/imports/dry-run", h.PostImportsDryRun)

		protected.With(
			middleware.RequireRole(middleware.RoleAdmin),
			importLimiter.Middleware("Too many imports, try again later"),
			csrf,
		).Post("/imports/apply", h.PostImportsApply)

		protected.Get("/imports/templates/{kind}", func(w http.ResponseWriter, r *http.Request) {
			h.GetImportsTemplatesKind(w, r, chi.URLParam(r, "kind"))
		})
		protected.Get("/imports/{importRunId}", withImportRunID(h.GetImportsImportRunId))
		protected.Get("/imports/{importRunId}/errors.csv", withImportRunID(h.GetImportsImportRunIdErrorsCsv))

		protected.Get("/exports/sales.csv", h.GetExportsSalesCsv)
		protected.Get("/exports/products.csv", h.GetExportsProductsCsv)
	})

	r.Mount("/api", api)
	return r, nil
}

func withImportRunID(next func(http.ResponseWriter, *http.Request, uuid.UUID)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var id uuid.UUID
		err := runtime.BindStyledParameterWithLocation("simple", false, "importRunId", runtime.ParamLocationPath, chi.URLParam(r, "importRunId"), &id)
		if err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "importRunId must be a UUID", nil)
			return
		}
		next(w, r, id)
	}
}
