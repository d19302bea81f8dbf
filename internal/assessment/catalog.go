package assessment

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type QuestionInput struct {
	ID             string       `json:"id" validate:"required,max=50"`
	Type           QuestionType `json:"type" validate:"required,oneof=single_choice multiple_choice text number"`
	Text           string       `json:"text"`
	Options        []string     `json:"options,omitempty"`
	CorrectAnswers Values       `json:"correct_answers,omitempty"`
	MaxScore       *float64     `json:"max_score,omitempty" validate:"omitempty,gte=0"` // defaults to 1
}

type CreateTestInput struct {
	CourseID         string          `json:"-" validate:"required"`
	Title            string          `json:"title" validate:"required,max=255"`
	Description      *string         `json:"description,omitempty"`
	LessonID         *string         `json:"lesson_id,omitempty"`
	TimeLimitMinutes *int            `json:"time_limit_minutes,omitempty" validate:"omitempty,gte=1"`
	Questions        []QuestionInput `json:"questions" validate:"required,min=1,dive"`
}

// QuestionView selects which projection of a question a caller receives.
type QuestionView int

const (
	StudentView QuestionView = iota // answer keys stripped
	TeacherView
)

// Catalog authors tests and serves them read-only. It performs no
// authorization; callers gate it through the access policy.
type Catalog struct {
	store    Store
	validate *validator.Validate
	deps
}

func NewCatalog(store Store, opts ...Option) *Catalog {
	return &Catalog{store: store, validate: validator.New(), deps: newDeps(opts)}
}

// CreateTest stores a draft test. MaxScore is the sum of question scores and
// never changes afterwards.
func (c *Catalog) CreateTest(ctx context.Context, in CreateTestInput) (Test, error) {
	if err := c.validate.Struct(in); err != nil {
		return Test{}, invalid("%v", err)
	}
	now := c.clock()
	t := Test{
		ID:               uuid.NewString(),
		CourseID:         in.CourseID,
		LessonID:         in.LessonID,
		Title:            in.Title,
		Description:      in.Description,
		TimeLimitMinutes: in.TimeLimitMinutes,
		Status:           TestDraft,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	seen := make(map[string]struct{}, len(in.Questions))
	for i, qi := range in.Questions {
		if _, dup := seen[qi.ID]; dup {
			return Test{}, invalid("duplicate question id %q", qi.ID)
		}
		seen[qi.ID] = struct{}{}
		for _, k := range qi.CorrectAnswers {
			if k.Kind() == KindList || k.IsZero() {
				return Test{}, invalid("question %q: answer key entries must be strings or numbers", qi.ID)
			}
		}
		max := 1.0
		if qi.MaxScore != nil {
			max = *qi.MaxScore
		}
		t.Questions = append(t.Questions, Question{
			ID:             uuid.NewString(),
			TestID:         t.ID,
			LocalID:        qi.ID,
			Type:           qi.Type,
			Text:           qi.Text,
			Options:        qi.Options,
			CorrectAnswers: qi.CorrectAnswers,
			MaxScore:       max,
			OrderIndex:     i,
		})
		t.MaxScore += max
	}
	if err := c.store.CreateTest(ctx, t); err != nil {
		return Test{}, err
	}
	c.log.WithFields(logrus.Fields{
		"test_id":   t.ID,
		"course_id": t.CourseID,
		"questions": len(t.Questions),
		"max_score": t.MaxScore,
	}).Info("test created")
	return t, nil
}

// PublishTest opens the test for attempts inside the optional window.
func (c *Catalog) PublishTest(ctx context.Context, testID string, from, to *time.Time) (Test, error) {
	if from != nil && to != nil && from.After(*to) {
		return Test{}, invalid("available_from is after available_to")
	}
	t, err := c.store.PublishTest(ctx, testID, utcPtr(from), utcPtr(to), c.clock())
	if err != nil {
		return Test{}, err
	}
	c.log.WithField("test_id", testID).Info("test published")
	return t, nil
}

func (c *Catalog) GetTest(ctx context.Context, testID string) (Test, error) {
	return c.store.GetTest(ctx, testID)
}

// GetQuestions returns the questions in order; StudentView strips answer keys.
func (c *Catalog) GetQuestions(ctx context.Context, testID string, view QuestionView) ([]Question, error) {
	if _, err := c.store.GetTest(ctx, testID); err != nil {
		return nil, err
	}
	qs, err := c.store.ListQuestions(ctx, testID)
	if err != nil {
		return nil, err
	}
	if view == StudentView {
		for i := range qs {
			qs[i].CorrectAnswers = nil
		}
	}
	return qs, nil
}

// ListCourseTests lists the published tests of a course together with the
// student's attempt count and latest attempt.
func (c *Catalog) ListCourseTests(ctx context.Context, courseID, studentID string, offset, count int) (CourseTestList, error) {
	offset, count = pageBounds(offset, count)
	tests, total, err := c.store.ListCourseTests(ctx, courseID, TestPublished, offset, count)
	if err != nil {
		return CourseTestList{}, err
	}
	now := c.clock()
	out := CourseTestList{Items: make([]CourseTest, 0, len(tests)), Total: total, Offset: offset, Count: count}
	for _, t := range tests {
		item := CourseTest{
			TestID:           t.ID,
			CourseID:         t.CourseID,
			Title:            t.Title,
			Status:           t.Status,
			AvailableFrom:    t.AvailableFrom,
			AvailableTo:      t.AvailableTo,
			TimeLimitMinutes: t.TimeLimitMinutes,
			MaxScore:         t.MaxScore,
		}
		if studentID != "" {
			last, used, err := c.store.ListAttempts(ctx, AttemptListOpts{TestID: t.ID, StudentID: studentID, Count: 1})
			if err != nil {
				return CourseTestList{}, err
			}
			item.AttemptsUsed = used
			if len(last) > 0 {
				a := projectExpiry(t, last[0], now)
				item.LastResult = &a
			}
		}
		out.Items = append(out.Items, item)
	}
	return out, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC().Truncate(time.Millisecond)
	return &u
}

const (
	defaultPageCount = 20
	maxPageCount     = 100
)

func pageBounds(offset, count int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if count <= 0 {
		count = defaultPageCount
	}
	if count > maxPageCount {
		count = maxPageCount
	}
	return offset, count
}
