package http

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/mind-engage/mindengage-assessment/internal/assessment"
	"github.com/mind-engage/mindengage-assessment/internal/rbac"
)

// POST /courses/{courseID}/tests
func CreateTestHandler(cat *assessment.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := rbac.RequireTeacherOrAdmin(rbac.RoleFromContext(r.Context())); err != nil {
			respondError(w, r, err)
			return
		}
		var in assessment.CreateTestInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			respondError(w, r, errors.Wrap(assessment.ErrValidation, "bad json"))
			return
		}
		in.CourseID = chi.URLParam(r, "courseID")
		t, err := cat.CreateTest(r.Context(), in)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusCreated, testOut{Test: t, Questions: t.Questions})
	}
}

// POST /tests/{testID}/publish  { "available_from": RFC3339?, "available_to": RFC3339? }
// An empty body publishes without a window.
func PublishTestHandler(cat *assessment.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := rbac.RequireTeacherOrAdmin(rbac.RoleFromContext(r.Context())); err != nil {
			respondError(w, r, err)
			return
		}
		var req struct {
			AvailableFrom *time.Time `json:"available_from"`
			AvailableTo   *time.Time `json:"available_to"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			respondError(w, r, errors.Wrap(assessment.ErrValidation, "bad json"))
			return
		}
		t, err := cat.PublishTest(r.Context(), chi.URLParam(r, "testID"), req.AvailableFrom, req.AvailableTo)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, t)
	}
}

type testOut struct {
	assessment.Test
	Questions any `json:"questions"`
}

// GET /tests/{testID}
// Roles with exam:view-answers get the answer keys; everyone else the student
// view of a published test. Drafts are hidden from them.
func GetTestHandler(cat *assessment.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		testID := chi.URLParam(r, "testID")
		t, err := cat.GetTest(r.Context(), testID)
		if err != nil {
			respondError(w, r, err)
			return
		}
		if rbac.Can(r, "exam:view-answers") {
			qs, err := cat.GetQuestions(r.Context(), testID, assessment.TeacherView)
			if err != nil {
				respondError(w, r, err)
				return
			}
			respondJSON(w, http.StatusOK, testOut{Test: t, Questions: qs})
			return
		}
		if t.Status != assessment.TestPublished {
			respondError(w, r, errors.Wrapf(assessment.ErrNotFound, "test %s", testID))
			return
		}
		qs, err := cat.GetQuestions(r.Context(), testID, assessment.StudentView)
		if err != nil {
			respondError(w, r, err)
			return
		}
		out := make([]assessment.QuestionOut, 0, len(qs))
		for _, q := range qs {
			out = append(out, q.StudentView())
		}
		respondJSON(w, http.StatusOK, testOut{Test: t, Questions: out})
	}
}

// GET /courses/{courseID}/tests?student_id=&offset=0&count=20
// Students always see their own attempt stats; teachers may pick a student.
func ListCourseTestsHandler(cat *assessment.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		studentID := strings.TrimSpace(q.Get("student_id"))
		if !rbac.Can(r, "attempt:view-all") {
			studentID = rbac.SubjectFromContext(r.Context())
		}
		list, err := cat.ListCourseTests(r.Context(), chi.URLParam(r, "courseID"), studentID,
			parseIntDefault(q.Get("offset"), 0), parseIntDefault(q.Get("count"), 0))
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, list)
	}
}
