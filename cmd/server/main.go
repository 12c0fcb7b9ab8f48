package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/explanation-reservation/internal/config"
	"github.com/iliyamo/explanation-reservation/internal/database"
	"github.com/iliyamo/explanation-reservation/internal/handler"
	"github.com/iliyamo/explanation-reservation/internal/jobs"
	"github.com/iliyamo/explanation-reservation/internal/middleware"
	"github.com/iliyamo/explanation-reservation/internal/queue"
	"github.com/iliyamo/explanation-reservation/internal/repository"
	"github.com/iliyamo/explanation-reservation/internal/router"
	"github.com/iliyamo/explanation-reservation/internal/service"
)

func main() {
	cfg := config.Load() // Load environment config
	log := config.NewLogger(cfg)

	db, err := database.Open(database.Options{
		User:               cfg.DBUser,
		Pass:               cfg.DBPass,
		Host:               cfg.DBHost,
		Port:               cfg.DBPort,
		Name:               cfg.DBName,
		LockWaitTimeoutSec: cfg.DBLockWaitTimeoutSec,
	})
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()

	// Repositories
	events := repository.NewEventRepo(db)
	schedules := repository.NewScheduleRepo(db)
	reservations := repository.NewReservationRepo(db)
	tx := repository.NewTransactor(db, events, schedules, reservations)
	scheduleSearch := repository.NewScheduleSearch(db)

	// Services
	coordinator := service.NewCoordinator(tx, reservations,
		service.WithNotifier(queue.NewPublisher(cfg.RabbitMQURL, log)),
		service.WithNotifyTimeout(cfg.NotifyTimeout),
		service.WithLogger(log),
	)
	queries := service.NewQueryService(repository.NewReservationSearch(db), scheduleSearch, log)
	catalog := service.NewEventCatalog(events, schedules, reservations, tx, log)

	// Redis backs the rate limiter and the public response cache; both
	// degrade when it is unreachable.
	rdb := config.NewRedisClient(config.LoadRedisConfig(), log)
	if rdb != nil {
		defer rdb.Close()
	}
	limit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log)
	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Confirmation SMS worker
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		consumer := queue.NewConsumer(cfg.RabbitMQURL, queue.NewFileSMSSender(cfg.SMSLogPath), log)
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("confirmation consumer stopped")
		}
	}()

	sweeper := jobs.NewStatusSweeper(scheduleSearch, coordinator, cfg.StatusSweepBatch, log)
	if err := sweeper.Start(cfg.StatusSweepCron); err != nil {
		log.WithError(err).WithField("cron", cfg.StatusSweepCron).Fatal("invalid status sweep schedule")
	}

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Validator = handler.NewRequestValidator()
	e.Use(middleware.RequestLogger(log))

	router.RegisterRoutes(e, db)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, repository.NewUserRepo(db), repository.NewTokenRepo(db), log), cfg.JWTSecret, limit)
	router.RegisterPublic(e, handler.NewPublicHandler(coordinator, catalog, queries, log), cache, limit)
	router.RegisterAdmin(e, handler.NewAdminHandler(coordinator, catalog, queries, log, cfg.HighOccupancyPercent), cfg.JWTSecret)

	addr := ":" + cfg.Port // Address string with port
	go func() {
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown incomplete")
	}
	sweeper.Stop(shutdownCtx)
	// let committed reservations finish publishing their confirmations
	coordinator.Wait()
	select {
	case <-consumerDone:
	case <-shutdownCtx.Done():
		log.Warn("confirmation consumer did not stop in time")
	}
}
