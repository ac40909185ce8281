// Package api exposes the tracker service as a JSON REST API.
package api

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/julianstephens/habittrack/internal/constants"
	"github.com/julianstephens/habittrack/internal/tracker"
)

type API struct {
	Service *tracker.Service
	Origins []string
	Timeout time.Duration
	// Ping reports storage health on /health. Optional.
	Ping func(ctx context.Context) error

	validate *validator.Validate
}

func New(svc *tracker.Service, origins []string, timeout time.Duration) *API {
	if timeout <= 0 {
		timeout = constants.DefaultRequestTimeout
	}
	return &API{
		Service:  svc,
		Origins:  origins,
		Timeout:  timeout,
		validate: newValidator(),
	}
}

// newValidator reports field names using their json tags
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (a *API) Router() http.Handler {
	if a.validate == nil {
		a.validate = newValidator()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(a.Timeout))
	r.Use(a.corsMiddleware)
	r.Use(bodyLimit(constants.MaxBodyBytes))

	r.Get("/health", a.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", a.handleRegister)
		r.Post("/auth/login", a.handleLogin)
		r.Get("/user/{userId}", a.handleGetUser)
		r.Put("/user/{userId}", a.handleUpdateUser)
		r.Put("/user/{userId}/password", a.handleChangePassword)

		r.Route("/habit", func(r chi.Router) {
			r.Post("/", a.handleCreateHabit)
			r.Get("/user/{userId}", a.handleListHabits(false))
			r.Get("/user/{userId}/archived", a.handleListHabits(true))

			r.Route("/{habitId}", func(r chi.Router) {
				r.Get("/", a.handleGetHabit)
				r.Put("/", a.handleUpdateHabit)
				r.Delete("/", a.handleDeleteHabit)
				r.Post("/archive", a.handleSetArchived(true))
				r.Post("/unarchive", a.handleSetArchived(false))
				r.Get("/completions", a.handleListCompletions)
				r.Post("/complete", a.handleComplete)
				r.Delete("/complete/{completionId}", a.handleUncomplete)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	})

	return r
}
