package assessment

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/mind-engage/mindengage-assessment/internal/db"
	syncx "github.com/mind-engage/mindengage-assessment/internal/sync"
)

type SQLStore struct {
	db     *sqlx.DB
	events *syncx.EventRepo
}

func NewSQLStore(dbh *sqlx.DB, events *syncx.EventRepo) *SQLStore {
	if events == nil {
		events = syncx.NewEventRepo(dbh, "")
	}
	return &SQLStore{db: dbh, events: events}
}

type testRow struct {
	ID               string         `db:"id"`
	CourseID         string         `db:"course_id"`
	LessonID         sql.NullString `db:"lesson_id"`
	Title            string         `db:"title"`
	Description      sql.NullString `db:"description"`
	TimeLimitMinutes sql.NullInt64  `db:"time_limit_minutes"`
	MaxScore         float64        `db:"max_score"`
	Status           string         `db:"status"`
	AvailableFrom    sql.NullInt64  `db:"available_from"`
	AvailableTo      sql.NullInt64  `db:"available_to"`
	CreatedAt        int64          `db:"created_at"`
	UpdatedAt        int64          `db:"updated_at"`
}

const testColumns = `id, course_id, lesson_id, title, description, time_limit_minutes, max_score, status, available_from, available_to, created_at, updated_at`

func (r testRow) toTest() Test {
	t := Test{
		ID:            r.ID,
		CourseID:      r.CourseID,
		Title:         r.Title,
		MaxScore:      r.MaxScore,
		Status:        TestStatus(r.Status),
		AvailableFrom: fromMillis(r.AvailableFrom),
		AvailableTo:   fromMillis(r.AvailableTo),
		CreatedAt:     time.UnixMilli(r.CreatedAt).UTC(),
		UpdatedAt:     time.UnixMilli(r.UpdatedAt).UTC(),
	}
	if r.LessonID.Valid {
		t.LessonID = &r.LessonID.String
	}
	if r.Description.Valid {
		t.Description = &r.Description.String
	}
	if r.TimeLimitMinutes.Valid {
		n := int(r.TimeLimitMinutes.Int64)
		t.TimeLimitMinutes = &n
	}
	return t
}

type questionRow struct {
	ID          string         `db:"id"`
	TestID      string         `db:"test_id"`
	LocalID     string         `db:"local_id"`
	Type        string         `db:"type"`
	Text        string         `db:"text"`
	OptionsJSON sql.NullString `db:"options_json"`
	CorrectJSON sql.NullString `db:"correct_answers_json"`
	MaxScore    float64        `db:"max_score"`
	OrderIndex  int            `db:"order_index"`
}

func (r questionRow) toQuestion() (Question, error) {
	q := Question{
		ID:         r.ID,
		TestID:     r.TestID,
		LocalID:    r.LocalID,
		Type:       QuestionType(r.Type),
		Text:       r.Text,
		MaxScore:   r.MaxScore,
		OrderIndex: r.OrderIndex,
	}
	if r.OptionsJSON.Valid && r.OptionsJSON.String != "" {
		if err := json.Unmarshal([]byte(r.OptionsJSON.String), &q.Options); err != nil {
			return Question{}, errors.Wrapf(err, "decode options of question %s", r.ID)
		}
	}
	if r.CorrectJSON.Valid && r.CorrectJSON.String != "" {
		if err := json.Unmarshal([]byte(r.CorrectJSON.String), &q.CorrectAnswers); err != nil {
			return Question{}, errors.Wrapf(err, "decode answer key of question %s", r.ID)
		}
	}
	return q, nil
}

type attemptRow struct {
	ID         string          `db:"id"`
	TestID     string          `db:"test_id"`
	StudentID  string          `db:"student_id"`
	Status     string          `db:"status"`
	StartedAt  int64           `db:"started_at"`
	FinishedAt sql.NullInt64   `db:"finished_at"`
	Score      sql.NullFloat64 `db:"score"`
	MaxScore   sql.NullFloat64 `db:"max_score"`
	Percent    sql.NullFloat64 `db:"percent"`
	Grade      sql.NullInt64   `db:"grade"`
}

const attemptColumns = `id, test_id, student_id, status, started_at, finished_at, score, max_score, percent, grade`

func (r attemptRow) toAttempt() Attempt {
	a := Attempt{
		ID:         r.ID,
		TestID:     r.TestID,
		StudentID:  r.StudentID,
		Status:     AttemptStatus(r.Status),
		StartedAt:  time.UnixMilli(r.StartedAt).UTC(),
		FinishedAt: fromMillis(r.FinishedAt),
		Score:      nullFloat(r.Score),
		MaxScore:   nullFloat(r.MaxScore),
		Percent:    nullFloat(r.Percent),
	}
	if r.Grade.Valid {
		g := int(r.Grade.Int64)
		a.Grade = &g
	}
	return a
}

type answerRow struct {
	ID         string          `db:"id"`
	AttemptID  string          `db:"attempt_id"`
	QuestionID string          `db:"question_id"`
	ValueJSON  string          `db:"value_json"`
	IsCorrect  sql.NullBool    `db:"is_correct"`
	Score      sql.NullFloat64 `db:"score"`
}

// ---- tests & questions ----

func (s *SQLStore) CreateTest(ctx context.Context, t Test) error {
	return db.WithTx(ctx, s.db, nil, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO tests (`+testColumns+`)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`),
			t.ID, t.CourseID, nullString(t.LessonID), t.Title, nullString(t.Description),
			nullInt(t.TimeLimitMinutes), t.MaxScore, string(t.Status),
			toMillis(t.AvailableFrom), toMillis(t.AvailableTo),
			t.CreatedAt.UnixMilli(), t.UpdatedAt.UnixMilli())
		if err != nil {
			return errors.Wrap(err, "insert test")
		}
		for _, q := range t.Questions {
			opts, err := marshalNullable(q.Options, len(q.Options) > 0)
			if err != nil {
				return err
			}
			key, err := marshalNullable(q.CorrectAnswers, len(q.CorrectAnswers) > 0)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO test_questions
				(id, test_id, local_id, type, text, options_json, correct_answers_json, max_score, order_index)
				VALUES (?,?,?,?,?,?,?,?,?)`),
				q.ID, t.ID, q.LocalID, string(q.Type), q.Text, opts, key, q.MaxScore, q.OrderIndex)
			if err != nil {
				return errors.Wrapf(err, "insert question %s", q.LocalID)
			}
		}
		return nil
	})
}

func (s *SQLStore) GetTest(ctx context.Context, id string) (Test, error) {
	var r testRow
	err := s.db.GetContext(ctx, &r, s.db.Rebind(`SELECT `+testColumns+` FROM tests WHERE id=?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return Test{}, notFound("test %s", id)
	}
	if err != nil {
		return Test{}, errors.Wrapf(err, "get test %s", id)
	}
	return r.toTest(), nil
}

func (s *SQLStore) PublishTest(ctx context.Context, id string, from, to *time.Time, at time.Time) (Test, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE tests
		SET status=?, available_from=?, available_to=?, updated_at=? WHERE id=?`),
		string(TestPublished), toMillis(from), toMillis(to), at.UnixMilli(), id)
	if err != nil {
		return Test{}, errors.Wrapf(err, "publish test %s", id)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return Test{}, notFound("test %s", id)
	}
	return s.GetTest(ctx, id)
}

func (s *SQLStore) ListQuestions(ctx context.Context, testID string) ([]Question, error) {
	var rows []questionRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`SELECT id, test_id, local_id, type, text,
		options_json, correct_answers_json, max_score, order_index
		FROM test_questions WHERE test_id=? ORDER BY order_index`), testID)
	if err != nil {
		return nil, errors.Wrapf(err, "list questions of test %s", testID)
	}
	out := make([]Question, 0, len(rows))
	for _, r := range rows {
		q, err := r.toQuestion()
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

func (s *SQLStore) ListCourseTests(ctx context.Context, courseID string, status TestStatus, offset, count int) ([]Test, int, error) {
	where := []string{"course_id=?"}
	args := []interface{}{courseID}
	if status != "" {
		where = append(where, "status=?")
		args = append(args, string(status))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.GetContext(ctx, &total, s.db.Rebind(`SELECT COUNT(*) FROM tests WHERE `+cond), args...); err != nil {
		return nil, 0, errors.Wrap(err, "count course tests")
	}
	var rows []testRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`SELECT `+testColumns+` FROM tests WHERE `+cond+`
		ORDER BY created_at DESC, id LIMIT ? OFFSET ?`), append(args, count, offset)...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list course tests")
	}
	out := make([]Test, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toTest())
	}
	return out, total, nil
}

// ---- attempts ----

func (s *SQLStore) CreateAttempt(ctx context.Context, a Attempt) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO test_attempts (id, test_id, student_id, status, started_at)
		VALUES (?,?,?,?,?)`),
		a.ID, a.TestID, a.StudentID, string(a.Status), a.StartedAt.UnixMilli())
	return errors.Wrap(err, "insert attempt")
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	return getAttempt(ctx, s.db, id)
}

// queryer is satisfied by *sqlx.DB and *sqlx.Tx.
type queryer interface {
	sqlx.QueryerContext
	Rebind(string) string
}

func getAttempt(ctx context.Context, q queryer, id string) (Attempt, error) {
	var r attemptRow
	err := sqlx.GetContext(ctx, q, &r, q.Rebind(`SELECT `+attemptColumns+` FROM test_attempts WHERE id=?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, notFound("attempt %s", id)
	}
	if err != nil {
		return Attempt{}, errors.Wrapf(err, "get attempt %s", id)
	}
	return r.toAttempt(), nil
}

func (s *SQLStore) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, int, error) {
	where := []string{"1=1"}
	var args []interface{}
	if opts.TestID != "" {
		where = append(where, "test_id=?")
		args = append(args, opts.TestID)
	}
	if opts.StudentID != "" {
		where = append(where, "student_id=?")
		args = append(args, opts.StudentID)
	}
	if opts.Status != "" {
		where = append(where, "status=?")
		args = append(args, string(opts.Status))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.GetContext(ctx, &total, s.db.Rebind(`SELECT COUNT(*) FROM test_attempts WHERE `+cond), args...); err != nil {
		return nil, 0, errors.Wrap(err, "count attempts")
	}
	var rows []attemptRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`SELECT `+attemptColumns+` FROM test_attempts WHERE `+cond+`
		ORDER BY started_at DESC, id DESC LIMIT ? OFFSET ?`), append(args, opts.Count, opts.Offset)...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list attempts")
	}
	out := make([]Attempt, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toAttempt())
	}
	return out, total, nil
}

func (s *SQLStore) ListTimedInProgress(ctx context.Context, testID string) ([]Attempt, error) {
	q := `SELECT a.id, a.test_id, a.student_id, a.status, a.started_at,
		a.finished_at, a.score, a.max_score, a.percent, a.grade
		FROM test_attempts a JOIN tests t ON t.id = a.test_id
		WHERE a.status=? AND t.time_limit_minutes IS NOT NULL`
	args := []any{string(AttemptInProgress)}
	if testID != "" {
		q += ` AND a.test_id=?`
		args = append(args, testID)
	}
	var rows []attemptRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...)
	if err != nil {
		return nil, errors.Wrap(err, "list timed attempts")
	}
	out := make([]Attempt, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toAttempt())
	}
	return out, nil
}

func (s *SQLStore) TransitionAttempt(ctx context.Context, attemptID string, to AttemptStatus, at time.Time, settle SettleFunc) (Attempt, error) {
	if !CanTransition(AttemptInProgress, to) {
		return Attempt{}, invalidState("cannot move attempt to %s", to)
	}
	var out Attempt
	err := db.WithTx(ctx, s.db, nil, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE test_attempts SET status=?, finished_at=?
			WHERE id=? AND status=?`),
			string(to), at.UnixMilli(), attemptID, string(AttemptInProgress))
		if err != nil {
			return errors.Wrapf(err, "transition attempt %s", attemptID)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return errors.Wrap(err, "rows affected")
		}
		if n == 0 {
			cur, err := getAttempt(ctx, tx, attemptID)
			if err != nil {
				return err
			}
			return conflict("attempt %s is already %s", attemptID, cur.Status)
		}

		o, err := settle(ctx, &sqlAnswers{tx: tx})
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE test_attempts
			SET score=?, max_score=?, percent=?, grade=? WHERE id=?`),
			o.Score, o.MaxScore, o.Percent, o.Grade, attemptID)
		if err != nil {
			return errors.Wrapf(err, "store outcome of attempt %s", attemptID)
		}

		out, err = getAttempt(ctx, tx, attemptID)
		if err != nil {
			return err
		}
		data, err := json.Marshal(out)
		if err != nil {
			return errors.Wrap(err, "encode event")
		}
		return s.events.Append(ctx, tx, syncx.Event{Type: eventType(to), Key: attemptID, DataJSON: string(data)})
	})
	if err != nil {
		return Attempt{}, err
	}
	return out, nil
}

// ---- answers ----

type sqlAnswers struct{ tx *sqlx.Tx }

func (w *sqlAnswers) UpsertAnswer(ctx context.Context, a Answer) error {
	val, err := encodeValue(a.Value)
	if err != nil {
		return err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err = w.tx.ExecContext(ctx, w.tx.Rebind(`INSERT INTO test_answers (id, attempt_id, question_id, value_json, is_correct, score)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT (attempt_id, question_id)
		DO UPDATE SET value_json=EXCLUDED.value_json, is_correct=EXCLUDED.is_correct, score=EXCLUDED.score`),
		a.ID, a.AttemptID, a.QuestionID, val, nullBool(a.IsCorrect), nullFloatArg(a.Score))
	return errors.Wrapf(err, "upsert answer %s/%s", a.AttemptID, a.QuestionID)
}

func (s *SQLStore) ListAnswers(ctx context.Context, attemptID string) ([]Answer, error) {
	var rows []answerRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`SELECT a.id, a.attempt_id, a.question_id, a.value_json, a.is_correct, a.score
		FROM test_answers a JOIN test_questions q ON q.id = a.question_id
		WHERE a.attempt_id=? ORDER BY q.order_index`), attemptID)
	if err != nil {
		return nil, errors.Wrapf(err, "list answers of attempt %s", attemptID)
	}
	out := make([]Answer, 0, len(rows))
	for _, r := range rows {
		v, err := decodeValue(r.ValueJSON)
		if err != nil {
			return nil, err
		}
		ans := Answer{ID: r.ID, AttemptID: r.AttemptID, QuestionID: r.QuestionID, Value: v, Score: nullFloat(r.Score)}
		if r.IsCorrect.Valid {
			ans.IsCorrect = &r.IsCorrect.Bool
		}
		out = append(out, ans)
	}
	return out, nil
}

func (s *SQLStore) ListEvents(ctx context.Context, after int64, limit int) ([]syncx.Event, error) {
	return s.events.List(ctx, after, limit)
}

// ---- helpers ----

func toMillis(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func fromMillis(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.UnixMilli(n.Int64).UTC()
	return &t
}

func nullString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func nullInt(n *int) interface{} {
	if n == nil {
		return nil
	}
	return *n
}

func nullBool(b *bool) interface{} {
	if b == nil {
		return nil
	}
	return *b
}

func nullFloatArg(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func nullFloat(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

func marshalNullable(v interface{}, present bool) (interface{}, error) {
	if !present {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "encode column")
	}
	return string(b), nil
}
