package assessment

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mind-engage/mindengage-assessment/internal/grading"
	"github.com/mind-engage/mindengage-assessment/internal/rbac"
)

// Engine runs student attempts: start, submit (grading + finalization),
// result retrieval and lazy expiry.
type Engine struct {
	store Store
	deps
}

func NewEngine(store Store, opts ...Option) *Engine {
	return &Engine{store: store, deps: newDeps(opts)}
}

// StartAttempt opens a new in_progress attempt. Concurrent starts by the same
// student are not deduplicated.
func (e *Engine) StartAttempt(ctx context.Context, testID, studentID string) (AttemptStart, error) {
	if studentID == "" {
		return AttemptStart{}, invalid("student id is required")
	}
	t, err := e.store.GetTest(ctx, testID)
	if err != nil {
		return AttemptStart{}, err
	}
	now := e.clock()
	if err := t.Available(now); err != nil {
		return AttemptStart{}, err
	}
	qs, err := e.store.ListQuestions(ctx, t.ID)
	if err != nil {
		return AttemptStart{}, err
	}

	a := Attempt{ID: uuid.NewString(), TestID: t.ID, StudentID: studentID, Status: AttemptInProgress, StartedAt: now}
	if err := e.store.CreateAttempt(ctx, a); err != nil {
		return AttemptStart{}, err
	}

	out := AttemptStart{
		AttemptID: a.ID,
		TestID:    t.ID,
		StudentID: studentID,
		StartedAt: a.StartedAt,
		Status:    a.Status,
		Questions: make([]QuestionOut, 0, len(qs)),
	}
	if deadline, ok := t.Deadline(a.StartedAt); ok {
		out.ExpiresAt = &deadline
	}
	for _, q := range qs {
		out.Questions = append(out.Questions, q.StudentView())
	}
	e.log.WithFields(logrus.Fields{"test_id": t.ID, "attempt_id": a.ID, "student_id": studentID}).Info("attempt started")
	return out, nil
}

// SubmitAttempt grades the answers and finalizes the attempt. Exactly one of
// several concurrent submissions succeeds; the others get ErrConflict.
// Unknown question ids are ignored; when a question id repeats, the last
// value wins. Details come back in question order.
func (e *Engine) SubmitAttempt(ctx context.Context, testID, attemptID, studentID string, answers []SubmittedAnswer) (AttemptResult, error) {
	a, err := e.attemptIn(ctx, testID, attemptID)
	if err != nil {
		return AttemptResult{}, err
	}
	if err := rbac.RequireOwner(a.StudentID, studentID); err != nil {
		return AttemptResult{}, err
	}
	t, err := e.store.GetTest(ctx, a.TestID)
	if err != nil {
		return AttemptResult{}, err
	}
	log := e.log.WithFields(logrus.Fields{"test_id": t.ID, "attempt_id": a.ID, "student_id": a.StudentID})

	now := e.clock()
	if deadline, overdue := isOverdue(t, a, now); overdue {
		if _, err := e.expire(ctx, t, a, deadline); err != nil && !errors.Is(err, ErrConflict) {
			return AttemptResult{}, err
		}
		log.Warn("submit after time limit")
		return AttemptResult{}, conflict("attempt %s has expired", a.ID)
	}

	qs, err := e.store.ListQuestions(ctx, t.ID)
	if err != nil {
		return AttemptResult{}, err
	}
	byLocal := make(map[string]Question, len(qs))
	for _, q := range qs {
		byLocal[q.LocalID] = q
	}
	submitted, order := latestByQuestion(answers, byLocal)
	sort.Slice(order, func(i, j int) bool {
		return byLocal[order[i]].OrderIndex < byLocal[order[j]].OrderIndex
	})

	var details []AnswerDetail
	finished, err := e.store.TransitionAttempt(ctx, a.ID, AttemptFinished, now, func(ctx context.Context, w AnswerWriter) (Outcome, error) {
		details = make([]AnswerDetail, 0, len(order))
		total := 0.0
		for _, localID := range order {
			q, v := byLocal[localID], submitted[localID]
			res := e.grader.Grade(gradingView(q), gradedValue(q, v))
			score := res.Score
			if err := w.UpsertAnswer(ctx, Answer{
				AttemptID:  a.ID,
				QuestionID: q.ID,
				Value:      v,
				IsCorrect:  res.IsCorrect,
				Score:      &score,
			}); err != nil {
				return Outcome{}, err
			}
			total += score
			details = append(details, detailFor(q, v, res.IsCorrect, &score))
		}
		return outcomeFor(total, t.MaxScore), nil
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			log.Warn("duplicate submit rejected")
		}
		return AttemptResult{}, err
	}
	log.WithFields(logrus.Fields{"score": *finished.Score, "percent": *finished.Percent, "grade": *finished.Grade}).Info("attempt finished")
	return resultFor(finished, details), nil
}

// GetAttemptResult returns the stored result to the attempt's own student.
// A non-empty testID must match the attempt's test.
func (e *Engine) GetAttemptResult(ctx context.Context, testID, attemptID, requesterID string) (AttemptResult, error) {
	a, err := e.attemptIn(ctx, testID, attemptID)
	if err != nil {
		return AttemptResult{}, err
	}
	if err := rbac.RequireOwner(a.StudentID, requesterID); err != nil {
		return AttemptResult{}, err
	}
	return e.result(ctx, a)
}

// ReviewAttempt is the teacher-facing variant of GetAttemptResult; the caller
// has already checked the attempt:view-all permission.
func (e *Engine) ReviewAttempt(ctx context.Context, testID, attemptID string) (AttemptResult, error) {
	a, err := e.attemptIn(ctx, testID, attemptID)
	if err != nil {
		return AttemptResult{}, err
	}
	return e.result(ctx, a)
}

func (e *Engine) attemptIn(ctx context.Context, testID, attemptID string) (Attempt, error) {
	a, err := e.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if testID != "" && a.TestID != testID {
		return Attempt{}, notFound("attempt %s in test %s", attemptID, testID)
	}
	return a, nil
}

func (e *Engine) result(ctx context.Context, a Attempt) (AttemptResult, error) {
	t, err := e.store.GetTest(ctx, a.TestID)
	if err != nil {
		return AttemptResult{}, err
	}
	if deadline, overdue := isOverdue(t, a, e.clock()); overdue {
		expired, err := e.expire(ctx, t, a, deadline)
		switch {
		case err == nil:
			a = expired
		case errors.Is(err, ErrConflict):
			// finished or expired concurrently; reload the winner
			if a, err = e.store.GetAttempt(ctx, a.ID); err != nil {
				return AttemptResult{}, err
			}
		default:
			return AttemptResult{}, err
		}
	}

	answers, err := e.store.ListAnswers(ctx, a.ID)
	if err != nil {
		return AttemptResult{}, err
	}
	qs, err := e.store.ListQuestions(ctx, t.ID)
	if err != nil {
		return AttemptResult{}, err
	}
	byID := make(map[string]Question, len(qs))
	for _, q := range qs {
		byID[q.ID] = q
	}
	details := make([]AnswerDetail, 0, len(answers))
	for _, ans := range answers {
		if q, ok := byID[ans.QuestionID]; ok {
			details = append(details, detailFor(q, ans.Value, ans.IsCorrect, ans.Score))
		}
	}
	return resultFor(a, details), nil
}

// ListAttempts pages through a test's attempts, newest first. Overdue
// in_progress attempts of the test are expired first, so the status filter
// and the total see the same status the items report.
func (e *Engine) ListAttempts(ctx context.Context, opts AttemptListOpts) (AttemptList, error) {
	opts.Offset, opts.Count = pageBounds(opts.Offset, opts.Count)
	t, err := e.store.GetTest(ctx, opts.TestID)
	if err != nil {
		return AttemptList{}, err
	}
	if t.TimeLimitMinutes != nil {
		if _, err := e.expireOverdue(ctx, t.ID); err != nil {
			return AttemptList{}, err
		}
	}
	items, total, err := e.store.ListAttempts(ctx, opts)
	if err != nil {
		return AttemptList{}, err
	}
	now := e.clock()
	for i := range items {
		items[i] = projectExpiry(t, items[i], now)
	}
	return AttemptList{Items: items, Total: total, Offset: opts.Offset, Count: opts.Count}, nil
}

// ExpireOverdue moves every overdue in_progress attempt to expired and
// returns how many it moved.
func (e *Engine) ExpireOverdue(ctx context.Context) (int, error) {
	return e.expireOverdue(ctx, "")
}

func (e *Engine) expireOverdue(ctx context.Context, testID string) (int, error) {
	attempts, err := e.store.ListTimedInProgress(ctx, testID)
	if err != nil {
		return 0, err
	}
	now := e.clock()
	tests := map[string]Test{}
	n := 0
	for _, a := range attempts {
		t, ok := tests[a.TestID]
		if !ok {
			if t, err = e.store.GetTest(ctx, a.TestID); err != nil {
				return n, err
			}
			tests[a.TestID] = t
		}
		deadline, overdue := isOverdue(t, a, now)
		if !overdue {
			continue
		}
		if _, err := e.expire(ctx, t, a, deadline); err != nil {
			if errors.Is(err, ErrConflict) {
				continue
			}
			return n, err
		}
		n++
	}
	return n, nil
}

// expire records a zero outcome; in_progress attempts never hold answers.
func (e *Engine) expire(ctx context.Context, t Test, a Attempt, deadline time.Time) (Attempt, error) {
	out, err := e.store.TransitionAttempt(ctx, a.ID, AttemptExpired, deadline, func(context.Context, AnswerWriter) (Outcome, error) {
		return outcomeFor(0, t.MaxScore), nil
	})
	if err == nil {
		e.log.WithFields(logrus.Fields{"test_id": t.ID, "attempt_id": a.ID, "student_id": a.StudentID}).Info("attempt expired")
	}
	return out, err
}

func isOverdue(t Test, a Attempt, now time.Time) (time.Time, bool) {
	if a.Status != AttemptInProgress {
		return time.Time{}, false
	}
	deadline, ok := t.Deadline(a.StartedAt)
	return deadline, ok && now.After(deadline)
}

// projectExpiry reports an overdue in_progress attempt the way it will be
// stored once expired, without writing anything.
func projectExpiry(t Test, a Attempt, now time.Time) Attempt {
	if deadline, overdue := isOverdue(t, a, now); overdue {
		a.apply(AttemptExpired, deadline, outcomeFor(0, t.MaxScore))
	}
	return a
}

func outcomeFor(total, max float64) Outcome {
	p := grading.Percent(total, max)
	return Outcome{Score: total, MaxScore: max, Percent: p, Grade: grading.GradeFromPercent(p)}
}

func latestByQuestion(answers []SubmittedAnswer, known map[string]Question) (map[string]Value, []string) {
	values := make(map[string]Value, len(answers))
	var order []string
	for _, ans := range answers {
		if _, ok := known[ans.QuestionID]; !ok {
			continue
		}
		if _, seen := values[ans.QuestionID]; !seen {
			order = append(order, ans.QuestionID)
		}
		values[ans.QuestionID] = ans.Value
	}
	return values, order
}

func gradingView(q Question) grading.Q {
	key := q.CorrectAnswers.Canonical()
	if q.Type == Number {
		for i, v := range q.CorrectAnswers {
			key[i] = v.numeric().Canonical()
		}
	}
	return grading.Q{Type: string(q.Type), MaxScore: q.MaxScore, AnswerKey: key}
}

// gradedValue is what the grader compares; the stored answer keeps the
// submitted form.
func gradedValue(q Question, v Value) Value {
	if q.Type == Number {
		return v.numeric()
	}
	return v
}

func detailFor(q Question, v Value, isCorrect *bool, score *float64) AnswerDetail {
	return AnswerDetail{
		QuestionID:     q.LocalID,
		QuestionText:   q.Text,
		YourAnswer:     v,
		CorrectAnswers: q.CorrectAnswers,
		IsCorrect:      isCorrect,
		Score:          score,
		MaxScore:       q.MaxScore,
	}
}

func resultFor(a Attempt, details []AnswerDetail) AttemptResult {
	if details == nil {
		details = []AnswerDetail{}
	}
	return AttemptResult{
		AttemptID:  a.ID,
		TestID:     a.TestID,
		StudentID:  a.StudentID,
		Status:     a.Status,
		StartedAt:  a.StartedAt,
		FinishedAt: a.FinishedAt,
		Score:      a.Score,
		MaxScore:   a.MaxScore,
		Percent:    a.Percent,
		Grade:      a.Grade,
		Details:    details,
	}
}
