package assessment

import (
	"context"
	"time"

	syncx "github.com/mind-engage/mindengage-assessment/internal/sync"
)

type AttemptListOpts struct {
	TestID    string
	StudentID string        // optional
	Status    AttemptStatus // optional
	Offset    int
	Count     int
}

// AnswerWriter is the single write path for answers. It is only handed out
// inside Store.TransitionAttempt, after the status compare-and-set has won.
type AnswerWriter interface {
	UpsertAnswer(ctx context.Context, a Answer) error
}

// SettleFunc runs inside the transition; it may write answers and must
// return the attempt's final outcome.
type SettleFunc func(ctx context.Context, w AnswerWriter) (Outcome, error)

type Store interface {
	// CreateTest persists t and t.Questions atomically.
	CreateTest(ctx context.Context, t Test) error
	GetTest(ctx context.Context, id string) (Test, error)
	PublishTest(ctx context.Context, id string, from, to *time.Time, at time.Time) (Test, error)
	// ListQuestions returns the full questions (answer keys included) by order_index.
	ListQuestions(ctx context.Context, testID string) ([]Question, error)
	ListCourseTests(ctx context.Context, courseID string, status TestStatus, offset, count int) ([]Test, int, error)

	CreateAttempt(ctx context.Context, a Attempt) error
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, int, error)
	// ListTimedInProgress returns in_progress attempts of tests that have a
	// time limit, restricted to testID when it is not empty.
	ListTimedInProgress(ctx context.Context, testID string) ([]Attempt, error)

	// TransitionAttempt moves an attempt out of in_progress with a single
	// conditional update. When the attempt is no longer in_progress it returns
	// ErrConflict and nothing is written. Otherwise settle runs, the outcome
	// is stored and an event is appended, all in one transaction.
	TransitionAttempt(ctx context.Context, attemptID string, to AttemptStatus, at time.Time, settle SettleFunc) (Attempt, error)

	ListAnswers(ctx context.Context, attemptID string) ([]Answer, error)

	ListEvents(ctx context.Context, after int64, limit int) ([]syncx.Event, error)
}

func eventType(to AttemptStatus) string {
	if to == AttemptExpired {
		return syncx.TypeAttemptExpired
	}
	return syncx.TypeAttemptFinished
}
