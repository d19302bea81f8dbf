package http

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/mind-engage/mindengage-assessment/internal/assessment"
	"github.com/mind-engage/mindengage-assessment/internal/rbac"
)

// POST /tests/{testID}/attempts/start
func StartAttemptHandler(eng *assessment.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := rbac.SubjectFromContext(r.Context())
		out, err := eng.StartAttempt(r.Context(), chi.URLParam(r, "testID"), sub)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusCreated, out)
	}
}

// POST /tests/{testID}/attempts/{attemptID}/submit
// Body: {"answers":[{"question_id":"q1","value":"4"}]} or the shorthand {"q1":"4"}.
func SubmitAttemptHandler(eng *assessment.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		answers, err := decodeAnswers(r)
		if err != nil {
			respondError(w, r, err)
			return
		}
		res, err := eng.SubmitAttempt(r.Context(),
			chi.URLParam(r, "testID"), chi.URLParam(r, "attemptID"),
			rbac.SubjectFromContext(r.Context()), answers)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, res)
	}
}

func decodeAnswers(r *http.Request) ([]assessment.SubmittedAnswer, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, errors.Wrap(assessment.ErrValidation, "bad json")
	}
	if body, ok := raw["answers"]; ok {
		var list []assessment.SubmittedAnswer
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, errors.Wrapf(assessment.ErrValidation, "answers: %v", err)
		}
		return list, nil
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	list := make([]assessment.SubmittedAnswer, 0, len(keys))
	for _, k := range keys {
		var v assessment.Value
		if err := json.Unmarshal(raw[k], &v); err != nil {
			return nil, errors.Wrapf(assessment.ErrValidation, "answer %q: %v", k, err)
		}
		list = append(list, assessment.SubmittedAnswer{QuestionID: k, Value: v})
	}
	return list, nil
}

// GET /tests/{testID}/attempts/{attemptID}
// attempt:view-all reviews any attempt; otherwise only the owner may read it.
func GetAttemptResultHandler(eng *assessment.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		testID, attemptID := chi.URLParam(r, "testID"), chi.URLParam(r, "attemptID")
		var (
			res assessment.AttemptResult
			err error
		)
		if rbac.Can(r, "attempt:view-all") {
			res, err = eng.ReviewAttempt(r.Context(), testID, attemptID)
		} else {
			res, err = eng.GetAttemptResult(r.Context(), testID, attemptID, rbac.SubjectFromContext(r.Context()))
		}
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, res)
	}
}
