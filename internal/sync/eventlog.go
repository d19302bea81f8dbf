package syncx

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// Event types appended when an attempt leaves in_progress. Downstream
// collaborators (gradebook, notifications) consume them in Seq order.
const (
	TypeAttemptFinished = "attempt.finished"
	TypeAttemptExpired  = "attempt.expired"
)

type Event struct {
	Seq       int64  `json:"seq" db:"seq"`
	SiteID    string `json:"site_id" db:"site_id"`
	Type      string `json:"type" db:"typ"`
	Key       string `json:"key" db:"key"`
	DataJSON  string `json:"data" db:"data"`
	CreatedAt int64  `json:"created_at" db:"created_at"`
}

// execer is satisfied by both *sqlx.DB and *sqlx.Tx so events can be written
// in the same transaction as the state change they describe.
type execer interface {
	sqlx.ExecerContext
	Rebind(string) string
}

type EventRepo struct {
	db     *sqlx.DB
	siteID string
	now    func() time.Time
}

func NewEventRepo(db *sqlx.DB, siteID string) *EventRepo {
	if siteID == "" {
		siteID = "local"
	}
	return &EventRepo{db: db, siteID: siteID, now: time.Now}
}

// Append writes e through x; pass the open transaction when there is one.
func (r *EventRepo) Append(ctx context.Context, x execer, e Event) error {
	if x == nil {
		x = r.db
	}
	if e.SiteID == "" {
		e.SiteID = r.siteID
	}
	_, err := x.ExecContext(ctx, x.Rebind(
		`INSERT INTO event_log (site_id, typ, key, data, created_at) VALUES (?,?,?,?,?)`),
		e.SiteID, e.Type, e.Key, e.DataJSON, r.now().UnixMilli())
	return errors.Wrap(err, "event log: append")
}

// List returns up to limit events with Seq > after.
func (r *EventRepo) List(ctx context.Context, after int64, limit int) ([]Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	out := []Event{}
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(
		`SELECT seq, site_id, typ, key, data, created_at FROM event_log WHERE seq > ? ORDER BY seq LIMIT ?`),
		after, limit)
	if err != nil {
		return nil, errors.Wrap(err, "event log: list")
	}
	return out, nil
}
