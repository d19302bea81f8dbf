package assessment_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-assessment/internal/assessment"
	syncx "github.com/mind-engage/mindengage-assessment/internal/sync"
)

func newMockStore(t *testing.T) (*assessment.SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	dbh := sqlx.NewDb(raw, "sqlmock")
	return assessment.NewSQLStore(dbh, syncx.NewEventRepo(dbh, "test")), mock
}

var attemptCols = []string{"id", "test_id", "student_id", "status", "started_at", "finished_at", "score", "max_score", "percent", "grade"}

func TestSQLStore_TransitionLosesRace(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE test_attempts SET status=?, finished_at=?")).
		WithArgs("finished", at.UnixMilli(), "a1", "in_progress").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM test_attempts WHERE id=?")).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows(attemptCols).
			AddRow("a1", "t1", "s1", "finished", at.Add(-time.Minute).UnixMilli(), at.UnixMilli(), 10.0, 10.0, 100.0, int64(5)))
	mock.ExpectRollback()

	settled := false
	_, err := store.TransitionAttempt(context.Background(), "a1", assessment.AttemptFinished, at,
		func(context.Context, assessment.AnswerWriter) (assessment.Outcome, error) {
			settled = true
			return assessment.Outcome{}, nil
		})
	assert.True(t, errors.Is(err, assessment.ErrConflict), "got %v", err)
	assert.False(t, settled, "no answers may be written after a lost compare-and-set")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_TransitionMissingAttempt(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE test_attempts SET status=?")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM test_attempts WHERE id=?")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(attemptCols))
	mock.ExpectRollback()

	_, err := store.TransitionAttempt(context.Background(), "nope", assessment.AttemptFinished, at,
		func(context.Context, assessment.AnswerWriter) (assessment.Outcome, error) {
			return assessment.Outcome{}, nil
		})
	assert.True(t, errors.Is(err, assessment.ErrNotFound), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_TransitionRollsBackOnAnswerFailure(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	boom := errors.New("disk full")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE test_attempts SET status=?")).
		WithArgs("finished", at.UnixMilli(), "a1", "in_progress").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO test_answers")).
		WillReturnError(boom)
	mock.ExpectRollback()

	score := 1.0
	_, err := store.TransitionAttempt(context.Background(), "a1", assessment.AttemptFinished, at,
		func(ctx context.Context, w assessment.AnswerWriter) (assessment.Outcome, error) {
			err := w.UpsertAnswer(ctx, assessment.Answer{
				AttemptID:  "a1",
				QuestionID: "q1",
				Value:      assessment.StringValue("4"),
				Score:      &score,
			})
			return assessment.Outcome{}, err
		})
	assert.True(t, errors.Is(err, boom), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_RejectsIllegalTransition(t *testing.T) {
	store, mock := newMockStore(t)
	_, err := store.TransitionAttempt(context.Background(), "a1", assessment.AttemptInProgress, time.Now(), nil)
	assert.True(t, errors.Is(err, assessment.ErrInvalidState), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_GetTestStorageError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM tests WHERE id=?")).
		WithArgs("t1").
		WillReturnError(errors.New("connection reset"))

	_, err := store.GetTest(context.Background(), "t1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, assessment.ErrNotFound))
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_UpsertAnswerKeepsOneRowPerQuestion(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	f := newFixture(t, store)
	tst := f.publish(t, arithmetic(nil))
	st := f.start(t, tst.ID, "s1")
	qs, err := store.ListQuestions(ctx, tst.ID)
	require.NoError(t, err)
	qid := qs[0].ID

	one, zero := 10.0, 0.0
	_, err = store.TransitionAttempt(ctx, st.AttemptID, assessment.AttemptFinished, f.clock.Now(),
		func(ctx context.Context, w assessment.AnswerWriter) (assessment.Outcome, error) {
			if err := w.UpsertAnswer(ctx, assessment.Answer{AttemptID: st.AttemptID, QuestionID: qid, Value: assessment.StringValue("3"), IsCorrect: boolPtr(false), Score: &zero}); err != nil {
				return assessment.Outcome{}, err
			}
			if err := w.UpsertAnswer(ctx, assessment.Answer{AttemptID: st.AttemptID, QuestionID: qid, Value: assessment.NumberValue(4), IsCorrect: boolPtr(true), Score: &one}); err != nil {
				return assessment.Outcome{}, err
			}
			return assessment.Outcome{Score: 10, MaxScore: 10, Percent: 100, Grade: 5}, nil
		})
	require.NoError(t, err)

	answers, err := store.ListAnswers(ctx, st.AttemptID)
	require.NoError(t, err)
	require.Len(t, answers, 1)
	assert.Equal(t, assessment.KindNumber, answers[0].Value.Kind())
	assert.Equal(t, "4", answers[0].Value.Canonical())
	assert.Equal(t, boolPtr(true), answers[0].IsCorrect)
	assert.Equal(t, 10.0, *answers[0].Score)
}

func TestSQLStore_TransitionFailureLeavesAttemptOpen(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	f := newFixture(t, store)
	tst := f.publish(t, arithmetic(nil))
	st := f.start(t, tst.ID, "s1")

	boom := errors.New("grader exploded")
	_, err := store.TransitionAttempt(ctx, st.AttemptID, assessment.AttemptFinished, f.clock.Now(),
		func(context.Context, assessment.AnswerWriter) (assessment.Outcome, error) {
			return assessment.Outcome{}, boom
		})
	assert.True(t, errors.Is(err, boom))

	a, err := store.GetAttempt(ctx, st.AttemptID)
	require.NoError(t, err)
	assert.Equal(t, assessment.AttemptInProgress, a.Status)
	assert.Nil(t, a.FinishedAt)

	events, err := store.ListEvents(ctx, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}
