package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	api "github.com/mind-engage/mindengage-assessment/internal/api/http"
	"github.com/mind-engage/mindengage-assessment/internal/assessment"
	auth "github.com/mind-engage/mindengage-assessment/internal/auth/middleware"
	"github.com/mind-engage/mindengage-assessment/internal/config"
	"github.com/mind-engage/mindengage-assessment/internal/db"
	"github.com/mind-engage/mindengage-assessment/internal/grading"
	"github.com/mind-engage/mindengage-assessment/internal/sweeper"
	syncx "github.com/mind-engage/mindengage-assessment/internal/sync"
)

func main() {
	cfg := config.Load()
	log := newLogger(cfg)

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.WithError(err).Fatal("db open failed")
	}
	defer dbh.Close()
	store := assessment.NewSQLStore(dbh, syncx.NewEventRepo(dbh, cfg.SiteID))

	// --- Services ---
	grader := grading.NewGrader(grading.WithMissingKeyPolicy(grading.PolicyByName(cfg.MissingKeyPolicy)))
	catalog := assessment.NewCatalog(store, assessment.WithLogger(log))
	engine := assessment.NewEngine(store, assessment.WithLogger(log), assessment.WithGrader(grader))

	if cfg.ExpirySweepInterval > 0 {
		sw := sweeper.New(engine, cfg.ExpirySweepInterval, log)
		if err := sw.Start(); err != nil {
			log.WithError(err).Fatal("sweeper start failed")
		}
		defer sw.Stop()
	}

	// --- HTTP ---
	router := api.NewRouter(api.RouterConfig{
		Catalog:         catalog,
		Engine:          engine,
		Events:          store,
		Auth:            auth.NewAuthService(cfg.AuthHMACSecret),
		Log:             log,
		EnableLocalAuth: cfg.EnableLocalAuth,
		CORSOrigins:     cfg.CORSOrigins,
		RequestTimeout:  cfg.RequestTimeout,
		Ready:           dbh.PingContext,
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		log.WithFields(logrus.Fields{"addr": cfg.HTTPAddr, "mode": cfg.Mode, "db": cfg.DBDriver}).Info("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown")
	}
	log.Info("stopped")
}

func newLogger(cfg config.Config) *logrus.Logger {
	log := logrus.New()
	if cfg.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	lvl, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}
