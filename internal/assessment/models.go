package assessment

import "time"

type QuestionType string

const (
	SingleChoice   QuestionType = "single_choice"
	MultipleChoice QuestionType = "multiple_choice"
	Text           QuestionType = "text"
	Number         QuestionType = "number"
)

func (t QuestionType) Valid() bool {
	switch t {
	case SingleChoice, MultipleChoice, Text, Number:
		return true
	}
	return false
}

type TestStatus string

const (
	TestDraft     TestStatus = "draft"
	TestPublished TestStatus = "published"
	TestArchived  TestStatus = "archived"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptFinished   AttemptStatus = "finished"
	AttemptExpired    AttemptStatus = "expired"
)

// transitions lists the only status moves an attempt may make.
var transitions = map[AttemptStatus][]AttemptStatus{
	AttemptInProgress: {AttemptFinished, AttemptExpired},
}

// CanTransition reports whether an attempt may move from one status to another.
func CanTransition(from, to AttemptStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Question is immutable once its Test is created. LocalID is what clients see.
type Question struct {
	ID             string       `json:"id"`
	TestID         string       `json:"test_id"`
	LocalID        string       `json:"local_id"`
	Type           QuestionType `json:"type"`
	Text           string       `json:"text"`
	Options        []string     `json:"options,omitempty"`
	CorrectAnswers Values       `json:"correct_answers,omitempty"`
	MaxScore       float64      `json:"max_score"`
	OrderIndex     int          `json:"order_index"`
}

// QuestionOut is the student-facing projection of a Question.
type QuestionOut struct {
	ID       string       `json:"id"`
	Type     QuestionType `json:"type"`
	Text     string       `json:"text"`
	Options  []string     `json:"options,omitempty"`
	MaxScore float64      `json:"max_score"`
}

func (q Question) StudentView() QuestionOut {
	return QuestionOut{ID: q.LocalID, Type: q.Type, Text: q.Text, Options: q.Options, MaxScore: q.MaxScore}
}

type Test struct {
	ID               string     `json:"id"`
	CourseID         string     `json:"course_id"`
	LessonID         *string    `json:"lesson_id,omitempty"`
	Title            string     `json:"title"`
	Description      *string    `json:"description,omitempty"`
	TimeLimitMinutes *int       `json:"time_limit_minutes,omitempty"`
	MaxScore         float64    `json:"max_score"`
	Status           TestStatus `json:"status"`
	AvailableFrom    *time.Time `json:"available_from,omitempty"`
	AvailableTo      *time.Time `json:"available_to,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`

	Questions []Question `json:"-"`
}

// Deadline returns when an attempt started at startedAt runs out of time.
func (t Test) Deadline(startedAt time.Time) (time.Time, bool) {
	if t.TimeLimitMinutes == nil || *t.TimeLimitMinutes <= 0 {
		return time.Time{}, false
	}
	return startedAt.Add(time.Duration(*t.TimeLimitMinutes) * time.Minute), true
}

// Available reports whether now lies inside the publication window.
func (t Test) Available(now time.Time) error {
	if t.Status != TestPublished {
		return invalidState("test %s is not published", t.ID)
	}
	if t.AvailableFrom != nil && now.Before(*t.AvailableFrom) {
		return invalidState("test %s is not yet available", t.ID)
	}
	if t.AvailableTo != nil && now.After(*t.AvailableTo) {
		return invalidState("test %s is no longer available", t.ID)
	}
	return nil
}

// Attempt results (Score, MaxScore, Percent, Grade) are nil while in progress
// and all set once the attempt is finished or expired.
type Attempt struct {
	ID         string        `json:"id"`
	TestID     string        `json:"test_id"`
	StudentID  string        `json:"student_id"`
	Status     AttemptStatus `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Score      *float64      `json:"score,omitempty"`
	MaxScore   *float64      `json:"max_score,omitempty"`
	Percent    *float64      `json:"percent,omitempty"`
	Grade      *int          `json:"grade,omitempty"`
}

// Outcome carries the result columns written when an attempt leaves in_progress.
type Outcome struct {
	Score    float64
	MaxScore float64
	Percent  float64
	Grade    int
}

func (a *Attempt) apply(status AttemptStatus, at time.Time, o Outcome) {
	a.Status = status
	a.FinishedAt = &at
	a.Score = &o.Score
	a.MaxScore = &o.MaxScore
	a.Percent = &o.Percent
	a.Grade = &o.Grade
}

type Answer struct {
	ID         string   `json:"id"`
	AttemptID  string   `json:"attempt_id"`
	QuestionID string   `json:"question_id"`
	Value      Value    `json:"value"`
	IsCorrect  *bool    `json:"is_correct"`
	Score      *float64 `json:"score"`
}

// SubmittedAnswer is one entry of a submission, keyed by the question's local id.
type SubmittedAnswer struct {
	QuestionID string `json:"question_id"`
	Value      Value  `json:"value"`
}

type AnswerDetail struct {
	QuestionID     string   `json:"question_id"`
	QuestionText   string   `json:"question_text"`
	YourAnswer     Value    `json:"your_answer"`
	CorrectAnswers Values   `json:"correct_answers,omitempty"`
	IsCorrect      *bool    `json:"is_correct"`
	Score          *float64 `json:"score"`
	MaxScore       float64  `json:"max_score"`
}

type AttemptResult struct {
	AttemptID  string         `json:"attempt_id"`
	TestID     string         `json:"test_id"`
	StudentID  string         `json:"student_id"`
	Status     AttemptStatus  `json:"status"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Score      *float64       `json:"score"`
	MaxScore   *float64       `json:"max_score"`
	Percent    *float64       `json:"percent"`
	Grade      *int           `json:"grade"`
	Details    []AnswerDetail `json:"details"`
}

type AttemptStart struct {
	AttemptID string        `json:"attempt_id"`
	TestID    string        `json:"test_id"`
	StudentID string        `json:"student_id"`
	StartedAt time.Time     `json:"started_at"`
	ExpiresAt *time.Time    `json:"expires_at,omitempty"`
	Status    AttemptStatus `json:"status"`
	Questions []QuestionOut `json:"questions"`
}

type AttemptList struct {
	Items  []Attempt `json:"items"`
	Total  int       `json:"total"`
	Offset int       `json:"offset"`
	Count  int       `json:"count"`
}

// CourseTest is a published test as a student sees it in a course listing.
type CourseTest struct {
	TestID           string     `json:"test_id"`
	CourseID         string     `json:"course_id"`
	Title            string     `json:"title"`
	Status           TestStatus `json:"status"`
	AvailableFrom    *time.Time `json:"available_from,omitempty"`
	AvailableTo      *time.Time `json:"available_to,omitempty"`
	TimeLimitMinutes *int       `json:"time_limit_minutes,omitempty"`
	MaxScore         float64    `json:"max_score"`
	AttemptsUsed     int        `json:"attempts_used"`
	LastResult       *Attempt   `json:"last_result,omitempty"`
}

type CourseTestList struct {
	Items  []CourseTest `json:"items"`
	Total  int          `json:"total"`
	Offset int          `json:"offset"`
	Count  int          `json:"count"`
}
