package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mind-engage/mindengage-assessment/internal/assessment"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// respondError maps the assessment error taxonomy onto HTTP statuses.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, assessment.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, assessment.ErrValidation), errors.Is(err, assessment.ErrInvalidState):
		status = http.StatusBadRequest
	case errors.Is(err, assessment.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, assessment.ErrConflict):
		status = http.StatusConflict
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		loggerFrom(r.Context()).WithError(err).Error("request failed")
		msg = "internal error"
	}
	respondJSON(w, status, map[string]string{"error": msg})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return v
	}
	return def
}

type logCtxKey struct{}

func loggerFrom(ctx context.Context) logrus.FieldLogger {
	if l, ok := ctx.Value(logCtxKey{}).(logrus.FieldLogger); ok {
		return l
	}
	return logrus.StandardLogger()
}

// RequestLogger attaches a request-scoped logger and logs one line per request.
func RequestLogger(base logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			l := base.WithFields(logrus.Fields{
				"request_id": middleware.GetReqID(r.Context()),
				"method":     r.Method,
				"path":       r.URL.Path,
			})
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), logCtxKey{}, l)))
			l.WithFields(logrus.Fields{
				"status":   ww.Status(),
				"bytes":    ww.BytesWritten(),
				"duration": time.Since(start).String(),
			}).Info("request")
		})
	}
}
