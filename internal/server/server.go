package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"missiondesk/internal/domain"
	"missiondesk/internal/engine"
	"missiondesk/internal/engine/auth"
	"missiondesk/internal/lifecycle"
	"missiondesk/internal/repo"
	"missiondesk/internal/view"
)

// Config for the HTTP API handler.
type Config struct {
	Engine      engine.Engine
	BasePath    string
	Auth        AuthConfig
	Logger      *slog.Logger
	CORSOrigins []string
	// Locale picks the language of error messages ("fa" or "en").
	Locale string
}

// apiError is the error body the web client understands: {message} for client
// errors, {message, details, code} for server errors.
type apiError struct {
	status  int
	Message string `json:"message" example:"ماموریت یافت نشد."`
	Details string `json:"details,omitempty"`
	Code    string `json:"code,omitempty"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Message }

func newAPIError(status int, message string) huma.StatusError {
	return &apiError{status: status, Message: message}
}

// service carries what handlers share.
type service struct {
	e        engine.Engine
	msgs     messages
	log      *slog.Logger
	tokens   auth.Tokens
	basePath string
}

func (s *service) newError(status int, code, fallback string) huma.StatusError {
	return newAPIError(status, s.msgs.For(code, fallback))
}

// huma's error constructors are process-wide, so they are set once here rather
// than per handler. Every API in this binary answers with apiError bodies.
func init() {
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, joinErrors(msg, errs))
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			// request validation failures are plain bad requests for this API
			status = http.StatusBadRequest
		}
		return newAPIError(status, joinErrors(msg, errs))
	}
}

// New returns an HTTP handler exposing the mission API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	basePath = strings.TrimRight(basePath, "/")
	if basePath == "" {
		return nil, errors.New("base path must not be the root")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = logger
	}
	if !cfg.Auth.Tokens.Enabled() {
		cfg.Auth.Tokens = cfg.Engine.Tokens
	}
	locale := strings.ToLower(strings.TrimSpace(cfg.Locale))
	if locale == "" {
		locale = "fa"
	}
	svc := &service{
		e:        cfg.Engine,
		msgs:     messages{locale: locale},
		log:      logger,
		tokens:   cfg.Auth.Tokens,
		basePath: basePath,
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(accessLog(logger))
	router.Use(middleware.Recoverer)
	if origins := corsOrigins(cfg.CORSOrigins); len(origins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
			ExposedHeaders: []string{"Location", "X-Auth-Token", "X-Auth-Expires"},
			MaxAge:         600,
		}))
	}
	router.Use(newAuthMiddleware(basePath, cfg.Auth, svc.msgs))

	hcfg := huma.DefaultConfig("Missiondesk API", "1.0.0")
	hcfg.OpenAPIPath = ""
	hcfg.DocsPath = ""
	hcfg.CreateHooks = nil
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerLogin(group, svc)
	registerUsers(group, svc)
	registerMissions(group, svc)
	registerDelegations(group, svc)
	registerEvents(group, svc)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func joinErrors(msg string, errs []error) string {
	if len(errs) == 0 {
		return msg
	}
	parts := make([]string, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			parts = append(parts, err.Error())
		}
	}
	if len(parts) == 0 {
		return msg
	}
	return msg + ": " + strings.Join(parts, "; ")
}

func (s *service) handleError(ctx context.Context, err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var ve lifecycle.ValidationError
	if errors.As(err, &ve) {
		return s.newError(http.StatusBadRequest, ve.Code, ve.Error())
	}
	var ise lifecycle.InvalidStateError
	if errors.As(err, &ise) {
		return s.newError(http.StatusBadRequest, ise.Code, ise.Error())
	}
	var nae lifecycle.NotAuthorizedError
	if errors.As(err, &nae) {
		return s.newError(http.StatusForbidden, nae.Code, nae.Error())
	}
	var nfe lifecycle.NotFoundError
	if errors.As(err, &nfe) {
		return s.newError(http.StatusNotFound, nfe.ErrorCode(), nfe.Error())
	}
	var ce auth.CredentialsError
	if errors.As(err, &ce) {
		return s.newError(http.StatusUnauthorized, ce.Code, ce.Error())
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, err.Error())
	}
	s.log.Error("request failed", "request_id", middleware.GetReqID(ctx), "err", err)
	return &apiError{
		status:  http.StatusInternalServerError,
		Message: s.msgs.For("internal_error", "internal error"),
		Details: err.Error(),
		Code:    "internal_error",
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get(path.Join(basePath, "docs"), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	r.Get(path.Join(basePath, "openapi.json"), func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	var errSchema *huma.Schema
	if oas.Components != nil && oas.Components.Schemas != nil {
		errSchema = oas.Components.Schemas.Schema(reflect.TypeOf(apiError{}), true, "ApiError")
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
					"application/json": {Schema: errSchema},
				},
			}
		}
	}
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
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	open := map[string]bool{
		path.Join(basePath, "health"): true,
		path.Join(basePath, "login"):  true,
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
    <title>Missiondesk API Docs</title>
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
      Sign in with POST /login and send the X-Auth-Token value as Authorization: Bearer &lt;token&gt;.
    </p>
  </body>
</html>`, specURL)
}

func accessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// corsOrigins cleans the configured origin list. An empty result disables CORS
// headers entirely.
func corsOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body HealthResponse `json:"body"`
	}, error) {
		return &struct {
			Body HealthResponse `json:"body"`
		}{Body: HealthResponse{Status: "ok"}}, nil
	})
}

type loginOutput struct {
	Token   string      `header:"X-Auth-Token"`
	Expires string      `header:"X-Auth-Expires"`
	Body    domain.User `json:"body"`
}

func registerLogin(api huma.API, s *service) {
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/login",
		Summary:     "Sign in with name and password",
		Description: "Returns the user. When token signing is configured the X-Auth-Token header carries a bearer token.",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*loginOutput, error) {
		u, err := s.e.Login(ctx, input.Body.Username, input.Body.Password)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		out := &loginOutput{Body: u}
		if s.tokens.Enabled() {
			token, expires, err := s.tokens.Issue(u)
			if err != nil {
				return nil, s.handleError(ctx, err)
			}
			out.Token = token
			out.Expires = expires.Format(time.RFC3339)
		}
		return out, nil
	})
}

type createdOutput struct {
	Location string `header:"Location"`
}

type idPath struct {
	ID string `path:"id"`
}

func registerUsers(api huma.API, s *service) {
	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.User `json:"body"`
	}, error) {
		users, err := s.e.ListUsers(ctx)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		if users == nil {
			users = []domain.User{}
		}
		return &struct {
			Body []domain.User `json:"body"`
		}{Body: users}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-user",
		Method:      http.MethodGet,
		Path:        "/users/{id}",
		Summary:     "Get a user",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		u, err := s.e.GetUser(ctx, input.ID)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Create a user",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest `json:"body"`
	}) (*createdOutput, error) {
		actor, herr := s.actorFor(ctx, "")
		if herr != nil {
			return nil, herr
		}
		u, err := s.e.CreateUser(ctx, engine.UserCreateOptions{
			Name:       input.Body.Name,
			Password:   input.Body.Password,
			Role:       input.Body.Role,
			Department: input.Body.Department,
			Phone:      input.Body.Phone,
			ActorID:    actor,
		})
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return &createdOutput{Location: s.location("users", u.ID)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "update-user",
		Method:        http.MethodPut,
		Path:          "/users/{id}",
		Summary:       "Update a user",
		Description:   "Only keys present in the body change. An empty password keeps the current one.",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body UpdateUserRequest `json:"body"`
	}) (*struct{}, error) {
		req := input.Body
		actor, herr := s.actorFor(ctx, "")
		if herr != nil {
			return nil, herr
		}
		if _, err := s.e.UpdateUser(ctx, input.ID, engine.UserUpdateOptions{
			Name:       req.Name,
			Password:   req.Password,
			Role:       req.Role,
			Department: req.Department,
			Phone:      req.Phone,
			ActorID:    actor,
		}); err != nil {
			return nil, s.handleError(ctx, err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-user",
		Method:        http.MethodDelete,
		Path:          "/users/{id}",
		Summary:       "Delete a user and every mission assigned to them",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct{}, error) {
		actor, herr := s.actorFor(ctx, "")
		if herr != nil {
			return nil, herr
		}
		if _, err := s.e.DeleteUser(ctx, input.ID, actor); err != nil {
			return nil, s.handleError(ctx, err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "user-performance",
		Method:      http.MethodGet,
		Path:        "/users/{id}/performance",
		Summary:     "Mission and checklist counters for a user",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct {
		Body view.Performance `json:"body"`
	}, error) {
		perf, err := s.e.Performance(ctx, input.ID)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return &struct {
			Body view.Performance `json:"body"`
		}{Body: perf}, nil
	})
}

type missionOutput struct {
	Body domain.Mission `json:"body"`
}

func registerMissions(api huma.API, s *service) {
	huma.Register(api, huma.Operation{
		OperationID: "list-missions",
		Method:      http.MethodGet,
		Path:        "/missions",
		Summary:     "List missions",
		Description: "Without parameters every mission is returned. With userId (or a signed-in user) and view, the list is what that user sees on the matching screen.",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		View   string `query:"view" doc:"DASHBOARD, MY_MISSIONS, CREATED_MISSIONS or DELEGATIONS"`
		UserID string `query:"userId"`
		Status string `query:"status" doc:"ALL, a wire status or NEW/IN_PROGRESS/COMPLETED"`
	}) (*struct {
		Body []domain.Mission `json:"body"`
	}, error) {
		filter, err := view.ParseStatusFilter(input.Status)
		if err != nil {
			return nil, s.newError(http.StatusBadRequest, lifecycle.CodeInvalidStatus, err.Error())
		}
		userID := strings.TrimSpace(input.UserID)
		if userID == "" && input.View != "" {
			if p, ok := principalFromContext(ctx); ok {
				userID = p.UserID
			}
		}
		var items []domain.Mission
		if userID == "" {
			items, err = s.e.ListMissions(ctx, repo.MissionFilters{Status: filter.Status})
		} else {
			items, err = s.e.VisibleMissions(ctx, userID, view.ParseNav(input.View), filter)
		}
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		if items == nil {
			items = []domain.Mission{}
		}
		return &struct {
			Body []domain.Mission `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-mission",
		Method:      http.MethodGet,
		Path:        "/missions/{id}",
		Summary:     "Get a mission",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*missionOutput, error) {
		m, err := s.e.GetMission(ctx, input.ID)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return &missionOutput{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-mission",
		Method:        http.MethodPost,
		Path:          "/missions",
		Summary:       "Create a mission",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateMissionRequest `json:"body"`
	}) (*createdOutput, error) {
		createdBy := strings.TrimSpace(input.Body.CreatedBy)
		actor, herr := s.actorFor(ctx, createdBy)
		if herr != nil {
			return nil, herr
		}
		if createdBy == "" {
			createdBy = actor
		}
		m, err := s.e.CreateMission(ctx, engine.MissionCreateOptions{
			MissionDraft: lifecycle.MissionDraft{
				Subject:    input.Body.Subject,
				Location:   input.Body.Location,
				StartTime:  input.Body.StartTime,
				EndTime:    input.Body.EndTime,
				AssignedTo: input.Body.AssignedTo,
				CreatedBy:  createdBy,
				Checklist:  input.Body.Checklist,
			},
			ActorID: actor,
		})
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return &createdOutput{Location: s.location("missions", m.ID)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "update-mission",
		Method:        http.MethodPut,
		Path:          "/missions/{id}",
		Summary:       "Update a mission from a full row",
		Description:   "Changed descriptive fields are applied as an edit. A new or changed last report is filed as a report submission. Other columns are ignored.",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body UpdateMissionRequest `json:"body"`
	}) (*struct{}, error) {
		if err := s.updateFromRow(ctx, input.ID, input.Body); err != nil {
			return nil, s.handleError(ctx, err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-report",
		Method:      http.MethodPost,
		Path:        "/missions/{id}/report",
		Summary:     "File a report and move the mission forward",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body SubmitReportRequest `json:"body"`
	}) (*missionOutput, error) {
		reporter, herr := s.actorFor(ctx, input.Body.ReporterID)
		if herr != nil {
			return nil, herr
		}
		declared, err := domain.ParseMissionStatus(input.Body.Status)
		if err != nil {
			return nil, s.newError(http.StatusBadRequest, lifecycle.CodeInvalidStatus, err.Error())
		}
		m, err := s.e.SubmitReport(ctx, input.ID, reporter, lifecycle.ReportInput{
			DepartureTime:  input.Body.DepartureTime,
			ReturnTime:     input.Body.ReturnTime,
			Summary:        input.Body.Summary,
			ChecklistState: input.Body.ChecklistState,
		}, declared)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return &missionOutput{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "purge-user-missions",
		Method:        http.MethodDelete,
		Path:          "/missions/user/{userId}",
		Summary:       "Delete every mission assigned to a user",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"userId"`
	}) (*struct{}, error) {
		actor, herr := s.actorFor(ctx, "")
		if herr != nil {
			return nil, herr
		}
		if _, err := s.e.PurgeMissionsForUser(ctx, input.UserID, actor); err != nil {
			return nil, s.handleError(ctx, err)
		}
		return &struct{}{}, nil
	})
}

// updateFromRow turns a full mission row posted by the web client into the
// operations it stands for, applied in one transaction. Status, assignment and
// delegation columns are never copied from the body.
func (s *service) updateFromRow(ctx context.Context, id string, req UpdateMissionRequest) error {
	actor, herr := s.actorFor(ctx, "")
	if herr != nil {
		return herr
	}
	_, err := s.e.ApplyMissionRow(ctx, id, actor, func(current domain.Mission) (engine.RowChange, error) {
		change := engine.RowChange{Edit: detailChanges(current, req)}
		report, ok := submittedReport(current, req.Reports, req.Status)
		if !ok {
			return change, nil
		}
		var status string
		if req.Status != nil {
			status = *req.Status
		}
		declared, err := domain.ParseMissionStatus(status)
		if err != nil {
			return change, lifecycle.ValidationError{Code: lifecycle.CodeInvalidStatus, Fields: []string{"status"}, Message: err.Error()}
		}
		change.Report = &engine.RowReport{
			ReporterID: actorOr(actor, report.ReporterID),
			Input: lifecycle.ReportInput{
				DepartureTime:  report.DepartureTime,
				ReturnTime:     report.ReturnTime,
				Summary:        report.Summary,
				ChecklistState: report.ChecklistSnapshot,
			},
			Declared: declared,
		}
		return change, nil
	})
	return err
}

func actorOr(actor, fallback string) string {
	if actor != "" {
		return actor
	}
	return fallback
}

func detailChanges(current domain.Mission, req UpdateMissionRequest) lifecycle.MissionEdit {
	var edit lifecycle.MissionEdit
	if req.Subject != nil && *req.Subject != current.Subject {
		edit.Subject = req.Subject
	}
	if req.Location != nil && *req.Location != current.Location {
		edit.Location = req.Location
	}
	if req.StartTime != nil && *req.StartTime != current.StartTime {
		edit.StartTime = req.StartTime
	}
	if req.EndTime != nil && *req.EndTime != current.EndTime {
		edit.EndTime = req.EndTime
	}
	return edit
}

// submittedReport finds the report a row update carries: a report beyond the
// stored ones, a rewritten last report, or an unchanged report resent with a
// new status.
func submittedReport(current domain.Mission, sent []RowReport, status *string) (RowReport, bool) {
	if len(sent) == 0 {
		return RowReport{}, false
	}
	last := sent[len(sent)-1]
	if len(sent) > len(current.Reports) {
		return last, true
	}
	if !sameReport(current.Checklist, last, current.Reports[len(sent)-1]) {
		return last, true
	}
	if status != nil {
		if st, err := domain.ParseMissionStatus(*status); err == nil && st != current.Status {
			return last, true
		}
	}
	return RowReport{}, false
}

func sameReport(checklist []domain.ChecklistItem, a RowReport, b domain.MissionReport) bool {
	return a.DepartureTime == b.DepartureTime &&
		a.ReturnTime == b.ReturnTime &&
		a.Summary == b.Summary &&
		reflect.DeepEqual(domain.NormalizeState(checklist, a.ChecklistSnapshot), domain.NormalizeState(checklist, b.ChecklistSnapshot))
}

func registerDelegations(api huma.API, s *service) {
	huma.Register(api, huma.Operation{
		OperationID: "propose-delegation",
		Method:      http.MethodPost,
		Path:        "/missions/{id}/delegate",
		Summary:     "Propose handing a mission to another user",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Body DelegateRequest `json:"body"`
	}) (*missionOutput, error) {
		initiator, herr := s.actorFor(ctx, input.Body.InitiatorID)
		if herr != nil {
			return nil, herr
		}
		m, err := s.e.ProposeDelegation(ctx, input.ID, initiator, strings.TrimSpace(input.Body.TargetUserID), input.Body.Reason)
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		return &missionOutput{Body: m}, nil
	})

	actions := []struct {
		id, path, summary string
		run               func(ctx context.Context, missionID, userID string) (domain.Mission, error)
	}{
		{"accept-delegation", "/missions/{id}/accept", "Accept a pending delegation", s.e.AcceptDelegation},
		{"reject-delegation", "/missions/{id}/reject", "Reject a pending delegation", s.e.RejectDelegation},
		{"clear-delegation", "/missions/{id}/clear-delegation", "Clear the delegation state", s.e.ClearDelegation},
	}
	for _, action := range actions {
		run := action.run
		huma.Register(api, huma.Operation{
			OperationID: action.id,
			Method:      http.MethodPost,
			Path:        action.path,
			Summary:     action.summary,
			Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
		}, func(ctx context.Context, input *struct {
			ID   string            `path:"id"`
			Body UserActionRequest `json:"body"`
		}) (*missionOutput, error) {
			userID, herr := s.actorFor(ctx, input.Body.UserID)
			if herr != nil {
				return nil, herr
			}
			m, err := run(ctx, input.ID, userID)
			if err != nil {
				return nil, s.handleError(ctx, err)
			}
			return &missionOutput{Body: m}, nil
		})
	}
}

func registerEvents(api huma.API, s *service) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"mission,user" required:"false"`
		EntityID   string `query:"entity_id"`
		ActorID    string `query:"actor_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		if p, ok := principalFromContext(ctx); ok {
			u, err := s.e.GetUser(ctx, p.UserID)
			if err != nil {
				return nil, s.handleError(ctx, err)
			}
			if !u.IsAdmin() {
				return nil, s.newError(http.StatusForbidden, lifecycle.CodeNotAdmin, "administrator required")
			}
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, s.newError(http.StatusBadRequest, "bad_request", "invalid cursor")
			}
			cursorID = parsed
		}
		items, err := s.e.RecentEvents(ctx, limit+1, cursorID, repo.EventFilters{
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			ActorID:    input.ActorID,
		})
		if err != nil {
			return nil, s.handleError(ctx, err)
		}
		resp := paginatedEvents{Items: []domain.Event{}}
		if len(items) > limit {
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
			items = items[:limit]
		}
		resp.Items = append(resp.Items, items...)
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func (s *service) location(kind, id string) string {
	return path.Join(s.basePath, kind, url.PathEscape(id))
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
