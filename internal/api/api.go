// Package api serves the SumFields API3 actions over HTTP
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sumfields/sumfields/internal/generator"
	"github.com/sumfields/sumfields/internal/logger"
	"github.com/sumfields/sumfields/internal/registry"
	"github.com/sumfields/sumfields/internal/status"
	"github.com/sumfields/sumfields/internal/web/middleware"
	"github.com/sumfields/sumfields/internal/web/response"
)

// Generation failures are reported with one fixed code and message. The
// cause is logged, never returned.
const (
	GenerateErrorCode    = 1234
	GenerateErrorMessage = "Generating data returned an error."
)

// Entity is the API3 entity served here
const Entity = "SumFields"

// Generator runs and reports data generation
type Generator interface {
	Generate(ctx context.Context) (*generator.Result, error)
	Status(ctx context.Context) (status.Status, error)
}

// Pinger checks that the database is reachable. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Error is an API3 failure with the HTTP status it is sent with
type Error struct {
	Status  int
	Code    interface{}
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// ActionFunc handles one API3 action and returns its values
type ActionFunc func(r *http.Request) (interface{}, error)

// Options configures the HTTP handler
type Options struct {
	// Prefix is mounted in front of every route, e.g. "/sumfields"
	Prefix string
	// Auth enables authentication when set
	Auth *middleware.AuthConfig
	// CORSOrigins lists browser origins allowed to call the API
	CORSOrigins []string
	// DB is pinged by /healthz when set
	DB Pinger
}

// API dispatches API3 requests to actions
type API struct {
	gen     Generator
	reg     *registry.Registry
	log     *logger.Logger
	actions map[string]ActionFunc
}

// New creates the API with the SumFields actions registered
func New(gen Generator, reg *registry.Registry, log *logger.Logger) *API {
	if log == nil {
		log = logger.Nop()
	}

	a := &API{
		gen:     gen,
		reg:     reg,
		log:     log,
		actions: make(map[string]ActionFunc),
	}
	a.Register(Entity, "gendata", a.gendata)
	a.Register(Entity, "getfields", a.getfields)
	a.Register(Entity, "getstatus", a.getstatus)
	return a
}

// Register adds an action. Entity and action names match case-insensitively
// and entity underscores are ignored, so sum_fields.GenData reaches
// SumFields.gendata.
func (a *API) Register(entity, action string, fn ActionFunc) {
	a.actions[actionKey(entity, action)] = fn
}

func actionKey(entity, action string) string {
	entity = strings.ToLower(strings.ReplaceAll(entity, "_", ""))
	return entity + "." + strings.ToLower(action)
}

// Handler returns the router with the middleware chain applied
func (a *API) Handler(opts Options) http.Handler {
	prefix := strings.TrimRight(opts.Prefix, "/")
	healthPath := prefix + "/healthz"

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(),
		middleware.Logging(a.log, healthPath),
		middleware.Recovery(a.log, func(w http.ResponseWriter, r *http.Request) {
			response.RenderError(w, http.StatusInternalServerError, nil, "Internal server error")
		}),
		middleware.CORS(opts.CORSOrigins),
	)
	if opts.Auth != nil {
		authConfig := *opts.Auth
		authConfig.SkipPaths = append(authConfig.SkipPaths, healthPath)
		if authConfig.Unauthorized == nil {
			authConfig.Unauthorized = func(w http.ResponseWriter, r *http.Request) {
				response.RenderError(w, http.StatusUnauthorized, nil, "Authorization required")
			}
		}
		r.Use(middleware.Auth(authConfig))
	}

	r.Get(healthPath, a.health(opts.DB))
	r.Get(prefix+"/api/v3/{entity}/{action}", a.dispatch)
	r.Post(prefix+"/api/v3/{entity}/{action}", a.dispatch)

	return r
}

func (a *API) dispatch(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")
	action := chi.URLParam(r, "action")

	fn, ok := a.actions[actionKey(entity, action)]
	if !ok {
		response.RenderError(w, http.StatusNotFound, nil,
			fmt.Sprintf("API (%s, %s) does not exist", entity, action))
		return
	}

	values, err := fn(r)
	if err != nil {
		var apiErr *Error
		if !errors.As(err, &apiErr) {
			apiErr = &Error{Status: http.StatusInternalServerError, Message: "Internal server error"}
		}
		response.RenderError(w, apiErr.Status, apiErr.Code, apiErr.Message)
		return
	}

	response.RenderSuccess(w, values)
}

// gendata runs a full backfill. The run is detached from the request so a
// dropped connection does not roll back a nearly finished backfill.
func (a *API) gendata(r *http.Request) (interface{}, error) {
	result, err := a.gen.Generate(context.WithoutCancel(r.Context()))
	if err != nil {
		a.log.Error("data generation failed",
			"request_id", middleware.GetRequestID(r.Context()),
			"subject", middleware.GetSubject(r.Context()),
			"error", err)
		return nil, &Error{
			Status:  http.StatusInternalServerError,
			Code:    GenerateErrorCode,
			Message: GenerateErrorMessage,
		}
	}
	return result.Values(), nil
}

func (a *API) getfields(r *http.Request) (interface{}, error) {
	return a.reg.Export(), nil
}

func (a *API) getstatus(r *http.Request) (interface{}, error) {
	st, err := a.gen.Status(r.Context())
	if err != nil {
		a.log.Error("reading generation status failed", "error", err)
		return nil, &Error{
			Status:  http.StatusInternalServerError,
			Message: "Could not read data generation status.",
		}
	}
	return map[string]interface{}{"status": st}, nil
}

func (a *API) health(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := http.StatusOK
		body := map[string]string{"status": "ok"}

		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				a.log.Warn("health check failed", "error", err)
				code = http.StatusServiceUnavailable
				body = map[string]string{"status": "unavailable"}
			}
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(body)
	}
}
