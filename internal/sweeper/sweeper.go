package sweeper

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Expirer moves overdue in_progress attempts to expired.
type Expirer interface {
	ExpireOverdue(ctx context.Context) (int, error)
}

// Sweeper periodically expires attempts whose time limit has passed, so that
// stored status catches up without waiting for a read or submit.
type Sweeper struct {
	scheduler *gocron.Scheduler
	expirer   Expirer
	interval  time.Duration
	timeout   time.Duration
	log       logrus.FieldLogger
}

func New(expirer Expirer, interval time.Duration, log logrus.FieldLogger) *Sweeper {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Sweeper{
		scheduler: s,
		expirer:   expirer,
		interval:  interval,
		timeout:   interval,
		log:       log.WithField("component", "sweeper"),
	}
}

// Start schedules the sweep and returns immediately.
func (s *Sweeper) Start() error {
	if s.interval <= 0 {
		return errors.New("sweeper: interval must be positive")
	}
	if _, err := s.scheduler.Every(s.interval).Do(s.Run); err != nil {
		return errors.Wrap(err, "sweeper: schedule")
	}
	s.scheduler.StartAsync()
	s.log.WithField("interval", s.interval.String()).Info("expiry sweeper started")
	return nil
}

func (s *Sweeper) Stop() {
	s.scheduler.Stop()
}

// Run performs one sweep.
func (s *Sweeper) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	n, err := s.expirer.ExpireOverdue(ctx)
	if err != nil {
		s.log.WithError(err).WithField("expired", n).Error("expiry sweep failed")
		return
	}
	if n > 0 {
		s.log.WithField("expired", n).Info("expired overdue attempts")
	}
}
