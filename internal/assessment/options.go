package assessment

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mind-engage/mindengage-assessment/internal/grading"
)

type deps struct {
	now    func() time.Time
	log    logrus.FieldLogger
	grader *grading.Grader
}

// Option configures a Catalog or an Engine.
type Option func(*deps)

func WithClock(now func() time.Time) Option  { return func(d *deps) { d.now = now } }
func WithLogger(l logrus.FieldLogger) Option { return func(d *deps) { d.log = l } }
func WithGrader(g *grading.Grader) Option    { return func(d *deps) { d.grader = g } }

func newDeps(opts []Option) deps {
	d := deps{now: time.Now, log: logrus.StandardLogger(), grader: grading.NewGrader()}
	for _, o := range opts {
		o(&d)
	}
	return d
}

// clock returns the current UTC time at the storage resolution.
func (d deps) clock() time.Time {
	return d.now().UTC().Truncate(time.Millisecond)
}
