package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/mind-engage/mindengage-assessment/internal/assessment"
	auth "github.com/mind-engage/mindengage-assessment/internal/auth/middleware"
	"github.com/mind-engage/mindengage-assessment/internal/rbac"
)

type RouterConfig struct {
	Catalog *assessment.Catalog
	Engine  *assessment.Engine
	Events  EventLister
	Auth    *auth.AuthService
	Log     logrus.FieldLogger

	EnableLocalAuth bool
	CORSOrigins     []string
	RequestTimeout  time.Duration
	Ready           func(context.Context) error // nil means always ready
}

func NewRouter(c RouterConfig) http.Handler {
	if c.Log == nil {
		c.Log = logrus.StandardLogger()
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, RequestLogger(c.Log), middleware.Recoverer)
	r.Use(middleware.Timeout(c.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   c.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if c.EnableLocalAuth {
		r.Post("/auth/login", auth.LoginHandler(c.Auth))
	}
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if c.Ready != nil {
			if err := c.Ready(r.Context()); err != nil {
				http.Error(w, "not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	// Protected API (JWT → principal in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(c.Auth))

		pr.With(rbac.Require("exam:create")).
			Post("/courses/{courseID}/tests", CreateTestHandler(c.Catalog))
		pr.With(rbac.Require("exam:view")).
			Get("/courses/{courseID}/tests", ListCourseTestsHandler(c.Catalog))

		pr.With(rbac.Require("exam:publish")).
			Post("/tests/{testID}/publish", PublishTestHandler(c.Catalog))
		pr.With(rbac.Require("exam:view")).
			Get("/tests/{testID}", GetTestHandler(c.Catalog))

		// Student flow
		pr.With(rbac.Require("attempt:create")).
			Post("/tests/{testID}/attempts/start", StartAttemptHandler(c.Engine))
		pr.With(rbac.Require("attempt:submit")).
			Post("/tests/{testID}/attempts/{attemptID}/submit", SubmitAttemptHandler(c.Engine))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/tests/{testID}/attempts/{attemptID}", GetAttemptResultHandler(c.Engine))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/tests/{testID}/attempts", ListAttemptsHandler(c.Engine))

		if c.Events != nil {
			pr.With(rbac.Require("events:read")).
				Get("/events", ListEventsHandler(c.Events))
		}
	})
	return r
}
