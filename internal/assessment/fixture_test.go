package assessment_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-assessment/internal/assessment"
	"github.com/mind-engage/mindengage-assessment/internal/db"
	syncx "github.com/mind-engage/mindengage-assessment/internal/sync"
)

/* ---------------- clock, stores and a ready-made course test ---------------- */

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newSQLiteStore(t *testing.T) assessment.Store {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	dbh, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbh.Close() })
	return assessment.NewSQLStore(dbh, syncx.NewEventRepo(dbh, "test"))
}

// storeKinds lists every Store implementation the engine is exercised against.
var storeKinds = []struct {
	name string
	open func(t *testing.T) assessment.Store
}{
	{"memory", func(*testing.T) assessment.Store { return assessment.NewInMemoryStore() }},
	{"sqlite", newSQLiteStore},
}

func forEachStore(t *testing.T, fn func(t *testing.T, f *fixture)) {
	for _, k := range storeKinds {
		t.Run(k.name, func(t *testing.T) {
			fn(t, newFixture(t, k.open(t)))
		})
	}
}

type fixture struct {
	store   assessment.Store
	clock   *fakeClock
	logs    *logtest.Hook
	catalog *assessment.Catalog
	engine  *assessment.Engine
}

func newFixture(t *testing.T, store assessment.Store, opts ...assessment.Option) *fixture {
	t.Helper()
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	clock := newFakeClock()
	opts = append([]assessment.Option{assessment.WithClock(clock.Now), assessment.WithLogger(logger)}, opts...)
	return &fixture{
		store:   store,
		clock:   clock,
		logs:    hook,
		catalog: assessment.NewCatalog(store, opts...),
		engine:  assessment.NewEngine(store, opts...),
	}
}

func floatPtr(f float64) *float64 { return &f }
func intPtr(n int) *int           { return &n }
func boolPtr(b bool) *bool        { return &b }

// arithmetic is a one-question test: "2+2" worth 10 points.
func arithmetic(limit *int) assessment.CreateTestInput {
	return assessment.CreateTestInput{
		CourseID:         "course-1",
		Title:            "Arithmetic",
		TimeLimitMinutes: limit,
		Questions: []assessment.QuestionInput{
			{ID: "q1", Type: assessment.Number, Text: "2+2", CorrectAnswers: assessment.Values{assessment.StringValue("4")}, MaxScore: floatPtr(10)},
		},
	}
}

// quiz mixes every question type; max score 1+2+3+4 = 10.
func quiz() assessment.CreateTestInput {
	return assessment.CreateTestInput{
		CourseID: "course-1",
		Title:    "Mixed quiz",
		Questions: []assessment.QuestionInput{
			{ID: "sc", Type: assessment.SingleChoice, Text: "Pick B", Options: []string{"A", "B", "C"}, CorrectAnswers: assessment.Values{assessment.StringValue("B")}},
			{ID: "mc", Type: assessment.MultipleChoice, Text: "Pick A and C", Options: []string{"A", "B", "C"}, CorrectAnswers: assessment.Values{assessment.StringValue("A"), assessment.StringValue("C")}, MaxScore: floatPtr(2)},
			{ID: "tx", Type: assessment.Text, Text: "Language?", CorrectAnswers: assessment.Values{assessment.StringValue("Python")}, MaxScore: floatPtr(3)},
			{ID: "nu", Type: assessment.Number, Text: "6*7", CorrectAnswers: assessment.Values{assessment.NumberValue(42)}, MaxScore: floatPtr(4)},
		},
	}
}

func (f *fixture) publish(t *testing.T, in assessment.CreateTestInput) assessment.Test {
	t.Helper()
	ctx := context.Background()
	created, err := f.catalog.CreateTest(ctx, in)
	require.NoError(t, err)
	pub, err := f.catalog.PublishTest(ctx, created.ID, nil, nil)
	require.NoError(t, err)
	return pub
}

func (f *fixture) start(t *testing.T, testID, studentID string) assessment.AttemptStart {
	t.Helper()
	s, err := f.engine.StartAttempt(context.Background(), testID, studentID)
	require.NoError(t, err)
	return s
}

func answer(id string, v assessment.Value) assessment.SubmittedAnswer {
	return assessment.SubmittedAnswer{QuestionID: id, Value: v}
}
