package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/iliyamo/clinic-appointments/internal/config"
	"github.com/iliyamo/clinic-appointments/internal/database"
	"github.com/iliyamo/clinic-appointments/internal/handler"
	"github.com/iliyamo/clinic-appointments/internal/middleware"
	"github.com/iliyamo/clinic-appointments/internal/notify"
	"github.com/iliyamo/clinic-appointments/internal/queue"
	"github.com/iliyamo/clinic-appointments/internal/repository"
	"github.com/iliyamo/clinic-appointments/internal/router"
	"github.com/iliyamo/clinic-appointments/internal/service"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			migrate, _ := cmd.Flags().GetBool("migrate")
			return runServer(cfg, migrate)
		},
	}
	cmd.Flags().Bool("migrate", false, "Apply pending migrations before serving")
	return cmd
}

func runServer(cfg config.Config, migrate bool) error {
	logger := newLogger(cfg.Env)

	db, err := database.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info().Str("host", cfg.DB.Host).Str("database", cfg.DB.Name).Msg("connected to database")

	if migrate {
		n, err := database.NewMigrator(db, database.Migrations()).Up(context.Background())
		if err != nil {
			return err
		}
		logger.Info().Int("applied", n).Msg("migrations applied")
	}

	var rdb *redis.Client
	if cfg.RateLimit.Enabled || cfg.Cache.Enabled {
		rdb = config.NewRedisClient(cfg.Redis)
		if rdb == nil {
			logger.Warn().Str("addr", cfg.Redis.Addr).Msg("redis unavailable; rate limiting and caching disabled")
		} else {
			defer rdb.Close()
		}
	}

	notifier := notify.NewAsync(queue.NewPublisher(cfg.RabbitMQURL, cfg.Notify.Queue), logger, 5*time.Second)

	opts := service.Options{
		Location:             cfg.Clinic.Location,
		SlotMinutes:          cfg.Clinic.SlotMinutes,
		RequireScheduledSlot: cfg.Clinic.RequireScheduledSlot,
	}
	doctors := repository.NewDoctorRepo(db)
	schedules := repository.NewScheduleRepo(db)
	appts := repository.NewAppointmentRepo(db)
	resolver := service.NewScheduleResolver(doctors, schedules, opts)

	health := &handler.Health{DB: db}
	if rdb != nil {
		health.Cache = handler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}
	handlers := router.Handlers{
		Health: health,
		Auth:   handler.NewAuthHandler(cfg.Auth, repository.NewUserRepo(db, doctors), repository.NewTokenRepo(db)),
		Doctors: &handler.DoctorHandler{
			Directory: service.NewDirectory(doctors, schedules, opts),
		},
		Appointments: &handler.AppointmentHandler{
			Lifecycle:    service.NewLifecycle(appts, notifier, opts),
			Queries:      service.NewQueries(appts, doctors, opts),
			Availability: service.NewAvailability(resolver, appts, opts),
		},
		Reminders: &handler.ReminderHandler{
			Reminders: service.NewReminders(repository.NewReminderRepo(db), opts),
		},
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = handler.HTTPErrorHandler(logger)

	// Recovery runs inside Logger so a panic is logged as a 500.
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:  []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader, "Retry-After", "X-RateLimit-Remaining", "X-Cache"},
	}))

	router.Register(e, handlers, router.Middleware{
		JWTSecret:  cfg.Auth.JWTSecret,
		RateLimit:  middleware.NewTokenBucket(cfg.RateLimit, rdb, logger),
		Cache:      middleware.NewRedisCache(cfg.Cache, rdb, logger),
		Invalidate: middleware.NewCacheInvalidator(cfg.Cache, rdb, logger),
	})

	addr := ":" + cfg.Port
	go func() {
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Str("timezone", cfg.Clinic.Timezone).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	notifier.Wait()
	logger.Info().Msg("server stopped")
	return nil
}
