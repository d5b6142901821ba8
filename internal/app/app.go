// Package app assembles the booking services from configuration. Both the
// API server and the cron runner start from here.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ubertool-booking/internal/config"
	"ubertool-booking/internal/gateway"
	"ubertool-booking/internal/lock"
	"ubertool-booking/internal/logger"
	"ubertool-booking/internal/notify"
	"ubertool-booking/internal/pricing"
	"ubertool-booking/internal/repository"
	"ubertool-booking/internal/repository/memory"
	"ubertool-booking/internal/repository/postgres"
	"ubertool-booking/internal/service"
	"ubertool-booking/migrations"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
)

type App struct {
	Config  *config.Config
	DB      *sql.DB // nil for the memory store
	Store   *repository.Store
	Gateway gateway.Gateway

	Bookings      service.BookingService
	Payments      service.PaymentCoordinator
	Notifications service.NotificationService

	sink    *notify.AsyncSink
	redis   *redis.Client
	closers []func()
}

// New connects to the configured backends and builds the services.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}
	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}

	locker, err := a.openLocker(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Gateway, err = gateway.New(cfg.GatewayConfig())
	if err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("Payment gateway configured", "provider", cfg.Payment.Provider)

	engine, err := pricing.NewEngine(cfg.PricingLimits(), cfg.CancellationPolicy())
	if err != nil {
		a.Close()
		return nil, err
	}

	a.sink = notify.NewAsyncSink(a.buildSink(ctx), cfg.Notification.Workers, cfg.Notification.QueueSize, cfg.Notification.MaxRetries)
	a.sink.Start()

	svcCfg := service.Config{
		Currency:           cfg.Payment.Currency,
		ChargeDeposit:      cfg.Payment.ChargeDeposit,
		ActivateOnPayment:  cfg.Booking.ActivateOnPayment,
		LockTimeout:        time.Duration(cfg.Booking.LockTimeoutSeconds) * time.Second,
		MaxConflictRetries: cfg.Booking.MaxConflictRetries,
		Fees:               cfg.BookingFees(),
	}
	availability := service.NewAvailabilityChecker(a.Store.Tools, a.Store.Bookings)
	a.Payments = service.NewPaymentCoordinator(a.Store.Bookings, a.Store.PaymentEvents, a.Gateway, a.sink, svcCfg)
	a.Bookings = service.NewBookingService(a.Store.Tools, a.Store.Bookings, locker, availability, engine, a.Payments, a.sink, svcCfg)
	a.Notifications = service.NewNotificationService(a.Store.Notifications)
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	cfg := a.Config
	if cfg.Database.Type == "memory" {
		logger.Warn("Using in-memory store; data is lost on restart")
		a.Store = memory.NewStore().Repositories()
		return nil
	}

	logger.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database, "user", cfg.Database.User)
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.DB = db
	a.closers = append(a.closers, func() { db.Close() })

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("Database connection established")

	if cfg.Database.AutoMigrate {
		if err := migrations.Up(ctx, db); err != nil {
			return err
		}
	}
	a.Store = postgres.NewStore(db)
	return nil
}

func (a *App) openLocker(ctx context.Context) (repository.ToolLocker, error) {
	cfg := a.Config.Redis
	if cfg.Addr == "" {
		logger.Info("Using in-process tool lock")
		return lock.NewLocal(), nil
	}
	a.redis = redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	a.closers = append(a.closers, func() { a.redis.Close() })
	if err := a.redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	logger.Info("Using redis tool lock", "addr", cfg.Addr)
	return lock.NewRedis(a.redis, time.Duration(cfg.LockTTLSeconds)*time.Second), nil
}

// buildSink fans out to the inbox plus whichever delivery channels are configured.
func (a *App) buildSink(ctx context.Context) notify.Sink {
	cfg := a.Config.Notification
	sinks := notify.MultiSink{notify.NewInboxSink(a.Store.Notifications)}

	if cfg.SendGridAPIKey != "" {
		sinks = append(sinks, notify.NewEmailSink(cfg.SendGridAPIKey, cfg.FromEmail, cfg.FromName, a.Store.Users))
		logger.Info("Email notifications enabled", "from", cfg.FromEmail)
	}
	if cfg.FirebaseCredentialsFile != "" {
		push, err := notify.NewPushSinkFromCredentials(ctx, cfg.FirebaseCredentialsFile, a.Store.Users)
		if err != nil {
			logger.Error("Push notifications disabled", "error", err)
		} else {
			sinks = append(sinks, push)
			logger.Info("Push notifications enabled")
		}
	}
	if len(sinks) == 1 {
		sinks = append(sinks, notify.LogSink{})
	}
	return sinks
}

// Close drains pending notifications and releases connections.
func (a *App) Close() {
	if a.sink != nil {
		a.sink.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
