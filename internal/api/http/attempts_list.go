package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/mind-engage/mindengage-assessment/internal/assessment"
	"github.com/mind-engage/mindengage-assessment/internal/rbac"
)

// GET /tests/{testID}/attempts?student_id=...&status=...&offset=0&count=20
// RBAC:
// - attempt:view-all can filter by any student
// - everyone else only sees their own attempts (student_id is forced to subject)
func ListAttemptsHandler(eng *assessment.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		studentID := strings.TrimSpace(q.Get("student_id"))
		if !rbac.Can(r, "attempt:view-all") {
			studentID = rbac.SubjectFromContext(r.Context())
		}
		status := assessment.AttemptStatus(strings.TrimSpace(q.Get("status")))
		switch status {
		case "", assessment.AttemptInProgress, assessment.AttemptFinished, assessment.AttemptExpired:
		default:
			respondError(w, r, errors.Wrapf(assessment.ErrValidation, "unknown status %q", status))
			return
		}

		list, err := eng.ListAttempts(r.Context(), assessment.AttemptListOpts{
			TestID:    chi.URLParam(r, "testID"),
			StudentID: studentID,
			Status:    status,
			Offset:    parseIntDefault(q.Get("offset"), 0),
			Count:     parseIntDefault(q.Get("count"), 0),
		})
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, list)
	}
}
