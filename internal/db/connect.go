package db

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite" // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Open opens a DB, tunes the pool and ensures the schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sqlx.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:assessment.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/assessment?sslmode=disable"
		}
	default:
		return nil, errors.Errorf("db: unsupported driver %q", driver)
	}

	db, err := sqlx.Open(drvName, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "db: open")
	}
	tunePool(driver, db)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "db: ping")
	}
	if driver == DriverSQLite {
		if err := applySQLitePragmas(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := ensureSchema(ctx, db, driver); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// WithTx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise.
func WithTx(ctx context.Context, db *sqlx.DB, opts *sql.TxOptions, fn func(*sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		return errors.Wrap(err, "db: begin tx")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if e := tx.Commit(); e != nil {
			err = errors.Wrap(e, "db: commit")
		}
	}()
	err = fn(tx)
	return
}

func tunePool(driver Driver, db *sqlx.DB) {
	maxOpen, maxIdle := 20, 10
	connLife, idleLife := 45*time.Minute, 15*time.Minute
	if driver == DriverSQLite {
		// single writer; one connection also keeps in-memory databases alive
		maxOpen, maxIdle = 1, 1
		connLife, idleLife = 0, 0
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(connLife)
	db.SetConnMaxIdleTime(idleLife)
}

func applySQLitePragmas(ctx context.Context, db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return errors.Wrapf(err, "db: sqlite pragma %q", p)
		}
	}
	return nil
}

func ensureSchema(ctx context.Context, db *sqlx.DB, driver Driver) error {
	schema := schemaSQLite
	if driver == DriverPostgres {
		schema = schemaPostgres
	}
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "db: ensure schema")
		}
	}
	return nil
}

// Timestamps are stored as unix milliseconds (UTC).
const schemaSQLite = `
CREATE TABLE IF NOT EXISTS tests (
  id TEXT PRIMARY KEY,
  course_id TEXT NOT NULL,
  lesson_id TEXT,
  title TEXT NOT NULL,
  description TEXT,
  time_limit_minutes INTEGER,
  max_score REAL NOT NULL DEFAULT 0,
  status TEXT NOT NULL,
  available_from INTEGER,
  available_to INTEGER,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS ix_tests_course_id ON tests(course_id);

CREATE TABLE IF NOT EXISTS test_questions (
  id TEXT PRIMARY KEY,
  test_id TEXT NOT NULL REFERENCES tests(id) ON DELETE CASCADE,
  local_id TEXT NOT NULL,
  type TEXT NOT NULL,
  text TEXT NOT NULL,
  options_json TEXT,
  correct_answers_json TEXT,
  max_score REAL NOT NULL DEFAULT 0,
  order_index INTEGER NOT NULL DEFAULT 0,
  UNIQUE (test_id, local_id)
);

CREATE TABLE IF NOT EXISTS test_attempts (
  id TEXT PRIMARY KEY,
  test_id TEXT NOT NULL REFERENCES tests(id) ON DELETE CASCADE,
  student_id TEXT NOT NULL,
  status TEXT NOT NULL,
  started_at INTEGER NOT NULL,
  finished_at INTEGER,
  score REAL,
  max_score REAL,
  percent REAL,
  grade INTEGER
);
CREATE INDEX IF NOT EXISTS ix_test_attempts_test_id_student_id ON test_attempts(test_id, student_id);
CREATE INDEX IF NOT EXISTS ix_test_attempts_status ON test_attempts(status);

CREATE TABLE IF NOT EXISTS test_answers (
  id TEXT PRIMARY KEY,
  attempt_id TEXT NOT NULL REFERENCES test_attempts(id) ON DELETE CASCADE,
  question_id TEXT NOT NULL REFERENCES test_questions(id) ON DELETE CASCADE,
  value_json TEXT NOT NULL,
  is_correct BOOLEAN,
  score REAL,
  UNIQUE (attempt_id, question_id)
);

CREATE TABLE IF NOT EXISTS event_log (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  site_id TEXT NOT NULL DEFAULT 'local',
  typ TEXT NOT NULL,
  key TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at INTEGER NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS tests (
  id TEXT PRIMARY KEY,
  course_id TEXT NOT NULL,
  lesson_id TEXT,
  title TEXT NOT NULL,
  description TEXT,
  time_limit_minutes INTEGER,
  max_score DOUBLE PRECISION NOT NULL DEFAULT 0,
  status TEXT NOT NULL,
  available_from BIGINT,
  available_to BIGINT,
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS ix_tests_course_id ON tests(course_id);

CREATE TABLE IF NOT EXISTS test_questions (
  id TEXT PRIMARY KEY,
  test_id TEXT NOT NULL REFERENCES tests(id) ON DELETE CASCADE,
  local_id TEXT NOT NULL,
  type TEXT NOT NULL,
  text TEXT NOT NULL,
  options_json TEXT,
  correct_answers_json TEXT,
  max_score DOUBLE PRECISION NOT NULL DEFAULT 0,
  order_index INTEGER NOT NULL DEFAULT 0,
  UNIQUE (test_id, local_id)
);

CREATE TABLE IF NOT EXISTS test_attempts (
  id TEXT PRIMARY KEY,
  test_id TEXT NOT NULL REFERENCES tests(id) ON DELETE CASCADE,
  student_id TEXT NOT NULL,
  status TEXT NOT NULL,
  started_at BIGINT NOT NULL,
  finished_at BIGINT,
  score DOUBLE PRECISION,
  max_score DOUBLE PRECISION,
  percent DOUBLE PRECISION,
  grade INTEGER
);
CREATE INDEX IF NOT EXISTS ix_test_attempts_test_id_student_id ON test_attempts(test_id, student_id);
CREATE INDEX IF NOT EXISTS ix_test_attempts_status ON test_attempts(status);

CREATE TABLE IF NOT EXISTS test_answers (
  id TEXT PRIMARY KEY,
  attempt_id TEXT NOT NULL REFERENCES test_attempts(id) ON DELETE CASCADE,
  question_id TEXT NOT NULL REFERENCES test_questions(id) ON DELETE CASCADE,
  value_json TEXT NOT NULL,
  is_correct BOOLEAN,
  score DOUBLE PRECISION,
  UNIQUE (attempt_id, question_id)
);

CREATE TABLE IF NOT EXISTS event_log (
  seq BIGSERIAL PRIMARY KEY,
  site_id TEXT NOT NULL DEFAULT 'local',
  typ TEXT NOT NULL,
  key TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at BIGINT NOT NULL
);
`
