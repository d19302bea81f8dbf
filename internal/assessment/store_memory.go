package assessment

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	syncx "github.com/mind-engage/mindengage-assessment/internal/sync"
)

type memoryStore struct {
	mu        sync.RWMutex
	tests     map[string]Test
	questions map[string][]Question // test id -> questions
	attempts  map[string]Attempt
	answers   map[string][]Answer // attempt id -> answers
	events    []syncx.Event
}

// NewInMemoryStore returns a Store for tests and single-process dev runs.
func NewInMemoryStore() Store {
	return &memoryStore{
		tests:     map[string]Test{},
		questions: map[string][]Question{},
		attempts:  map[string]Attempt{},
		answers:   map[string][]Answer{},
	}
}

func (m *memoryStore) CreateTest(_ context.Context, t Test) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tests[t.ID]; ok {
		return conflict("test %s already exists", t.ID)
	}
	qs := append([]Question{}, t.Questions...)
	t.Questions = nil
	m.tests[t.ID] = t
	m.questions[t.ID] = qs
	return nil
}

func (m *memoryStore) GetTest(_ context.Context, id string) (Test, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tests[id]
	if !ok {
		return Test{}, notFound("test %s", id)
	}
	return t, nil
}

func (m *memoryStore) PublishTest(_ context.Context, id string, from, to *time.Time, at time.Time) (Test, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tests[id]
	if !ok {
		return Test{}, notFound("test %s", id)
	}
	t.Status = TestPublished
	t.AvailableFrom = from
	t.AvailableTo = to
	t.UpdatedAt = at
	m.tests[id] = t
	return t, nil
}

func (m *memoryStore) ListQuestions(_ context.Context, testID string) ([]Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	qs := append([]Question{}, m.questions[testID]...)
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].OrderIndex < qs[j].OrderIndex })
	return qs, nil
}

func (m *memoryStore) ListCourseTests(_ context.Context, courseID string, status TestStatus, offset, count int) ([]Test, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var all []Test
	for _, t := range m.tests {
		if t.CourseID == courseID && (status == "" || t.Status == status) {
			all = append(all, t)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return page(all, offset, count), len(all), nil
}

func (m *memoryStore) CreateAttempt(_ context.Context, a Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tests[a.TestID]; !ok {
		return notFound("test %s", a.TestID)
	}
	m.attempts[a.ID] = a
	return nil
}

func (m *memoryStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, notFound("attempt %s", id)
	}
	return a, nil
}

func (m *memoryStore) ListAttempts(_ context.Context, opts AttemptListOpts) ([]Attempt, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var all []Attempt
	for _, a := range m.attempts {
		if opts.TestID != "" && a.TestID != opts.TestID {
			continue
		}
		if opts.StudentID != "" && a.StudentID != opts.StudentID {
			continue
		}
		if opts.Status != "" && a.Status != opts.Status {
			continue
		}
		all = append(all, a)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].StartedAt.Equal(all[j].StartedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].StartedAt.After(all[j].StartedAt)
	})
	return page(all, opts.Offset, opts.Count), len(all), nil
}

func (m *memoryStore) ListTimedInProgress(_ context.Context, testID string) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Attempt
	for _, a := range m.attempts {
		if a.Status != AttemptInProgress || (testID != "" && a.TestID != testID) {
			continue
		}
		if t := m.tests[a.TestID]; t.TimeLimitMinutes != nil {
			out = append(out, a)
		}
	}
	return out, nil
}

// TransitionAttempt holds the write lock across check, settle and write, which
// is the in-memory equivalent of the conditional update.
func (m *memoryStore) TransitionAttempt(ctx context.Context, attemptID string, to AttemptStatus, at time.Time, settle SettleFunc) (Attempt, error) {
	if !CanTransition(AttemptInProgress, to) {
		return Attempt{}, invalidState("cannot move attempt to %s", to)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return Attempt{}, notFound("attempt %s", attemptID)
	}
	if a.Status != AttemptInProgress {
		return Attempt{}, conflict("attempt %s is already %s", attemptID, a.Status)
	}

	staged := &memoryAnswers{byQuestion: map[string]Answer{}}
	for _, ans := range m.answers[attemptID] {
		staged.byQuestion[ans.QuestionID] = ans
		staged.order = append(staged.order, ans.QuestionID)
	}
	o, err := settle(ctx, staged)
	if err != nil {
		return Attempt{}, err
	}

	a.apply(to, at, o)
	data, err := json.Marshal(a)
	if err != nil {
		return Attempt{}, err
	}
	m.answers[attemptID] = staged.list()
	m.attempts[attemptID] = a
	m.events = append(m.events, syncx.Event{
		Seq:       int64(len(m.events) + 1),
		SiteID:    "local",
		Type:      eventType(to),
		Key:       attemptID,
		DataJSON:  string(data),
		CreatedAt: at.UnixMilli(),
	})
	return a, nil
}

func (m *memoryStore) ListAnswers(_ context.Context, attemptID string) ([]Answer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Answer{}, m.answers[attemptID]...), nil
}

func (m *memoryStore) ListEvents(_ context.Context, after int64, limit int) ([]syncx.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	out := []syncx.Event{}
	for _, e := range m.events {
		if e.Seq > after && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

// memoryAnswers stages upserts until the transition commits.
type memoryAnswers struct {
	byQuestion map[string]Answer
	order      []string
}

func (s *memoryAnswers) UpsertAnswer(_ context.Context, a Answer) error {
	if prev, ok := s.byQuestion[a.QuestionID]; ok {
		a.ID = prev.ID
	} else {
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		s.order = append(s.order, a.QuestionID)
	}
	s.byQuestion[a.QuestionID] = a
	return nil
}

func (s *memoryAnswers) list() []Answer {
	out := make([]Answer, 0, len(s.order))
	for _, q := range s.order {
		out = append(out, s.byQuestion[q])
	}
	return out
}

func page[T any](all []T, offset, count int) []T {
	if offset >= len(all) {
		return []T{}
	}
	end := len(all)
	if count > 0 && offset+count < end {
		end = offset + count
	}
	return all[offset:end]
}
