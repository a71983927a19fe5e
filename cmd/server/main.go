package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"rental/internal/app"
	"rental/internal/clock"
	"rental/internal/config"
	"rental/internal/domain"
	"rental/internal/handler"
	"rental/internal/logger"
	"rental/internal/mail"
	"rental/internal/middleware"
	"rental/internal/mq"
	internalRedis "rental/internal/redis"
	"rental/internal/repository/postgres"
	"rental/internal/scheduler"
	"rental/internal/service"
	"rental/internal/settlement"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	entry := logger.WithService("rental")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// New Relic goes first so the database driver can be instrumented.
	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			entry.WithError(err).Warn("failed to initialize New Relic")
			nrApp = nil
		} else {
			entry.WithField("app", cfg.NewRelic.AppName).Info("New Relic enabled")
		}
	}

	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		entry.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()
	entry.Info("connected to PostgreSQL")

	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		entry.WithError(err).Fatal("failed to connect to redis")
	}
	defer redisClient.Close()
	entry.Info("connected to Redis")

	var publisher *mq.Publisher
	if cfg.AMQP.URL != "" {
		publisher, err = mq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			entry.WithError(err).Fatal("failed to connect to message broker")
		}
		defer publisher.Close()
		entry.WithField("exchange", cfg.AMQP.Exchange).Info("publishing domain events")
	}

	w, err := wire(db, redisClient, publisher, nrApp, cfg, entry)
	if err != nil {
		entry.WithError(err).Fatal("failed to wire service")
	}

	if w.scheduler != nil {
		w.scheduler.Start()
	}

	go func() {
		entry.WithField("port", cfg.Server.Port).Info("starting server")
		if err := w.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			entry.WithError(err).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	entry.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := w.server.Shutdown(shutdownCtx); err != nil {
		entry.WithError(err).Error("server forced to shutdown")
	}
	if w.scheduler != nil {
		w.scheduler.Stop()
	}
	if nrApp != nil {
		nrApp.Shutdown(5 * time.Second)
	}

	entry.Info("server exited")
}

type wired struct {
	server    *http.Server
	scheduler *scheduler.Scheduler
}

// wire builds the services, handlers, router and scheduler.
func wire(db *sql.DB, redisClient *redis.Client, publisher *mq.Publisher, nrApp *newrelic.Application, cfg *config.Config, entry *log.Entry) (*wired, error) {
	clk := clock.System{}

	lockStore := internalRedis.NewLockStore(redisClient)
	cacheStore := internalRedis.NewCacheStore(redisClient, cfg.Redis.VehicleCacheTTL)

	transactor := postgres.NewTransactor(db, cfg.Tx.MaxRetries)

	var events service.EventPublisher
	if publisher != nil {
		events = publisher
	}
	var mailer service.Mailer
	if cfg.SendGrid.APIKey != "" {
		mailer = mail.NewSendGridMailer(cfg.SendGrid.APIKey, cfg.SendGrid.FromEmail, cfg.SendGrid.FromName)
	}

	cashSlips := settlement.NewCashSlips(cfg.Payment.CashSlipSecret, cfg.Payment.CashSlipTTL, clk)
	providers := settlement.NewRouter().
		Register(domain.PaymentMethodCash, settlement.NewCounterProvider(cashSlips))
	if cfg.Omise.Enabled() {
		omise, err := settlement.NewOmiseProvider(cfg.Omise.PublicKey, cfg.Omise.SecretKey)
		if err != nil {
			return nil, err
		}
		providers.Register(domain.PaymentMethodCard, omise).Register(domain.PaymentMethodUPI, omise)
	} else {
		entry.Warn("omise keys not configured, card and UPI payments will fail")
	}

	pricing := service.NewPricingEngine(cfg.Pricing.MonthDays)
	notificationService := service.NewNotificationService(events, mailer, clk)
	receiptService := service.NewReceiptService(pricing, cfg.Pricing.Currency, cfg.Payment.ReceiptBaseURL, transactor.Store())
	rentalService := service.NewRentalService(transactor, pricing, cacheStore, notificationService, clk)
	paymentService := service.NewPaymentService(
		transactor,
		lockStore,
		providers,
		cashSlips,
		receiptService,
		notificationService,
		clk,
		service.PaymentConfig{
			Currency:          cfg.Pricing.Currency,
			SettlementTimeout: cfg.Payment.SettlementTimeout,
			LockTTL:           cfg.Payment.LockTTL,
			StalePaymentAfter: cfg.Payment.StalePaymentAfter,
		},
	)

	router := app.NewRouter(app.RouterDeps{
		RentalHandler:  handler.NewRentalHandler(rentalService),
		VehicleHandler: handler.NewVehicleHandler(rentalService),
		PaymentHandler: handler.NewPaymentHandler(paymentService),
		ReceiptHandler: handler.NewReceiptHandler(receiptService),
		UserHandler:    handler.NewUserHandler(transactor.Store().Vehicles()),
		Authenticator:  middleware.NewAuthenticator(cfg.JWT.Secret, cfg.JWT.Issuer),
		RedisClient:    redisClient,
		IdempotencyTTL: cfg.Server.IdempotencyTTL,
		NewRelicApp:    nrApp,
		Logger:         entry,
	})

	w := &wired{
		server: &http.Server{
			Addr:         ":" + cfg.Server.Port,
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}

	if cfg.Scheduler.Enabled {
		sched, err := scheduler.NewScheduler(sweeps{rentals: rentalService, payments: paymentService}, scheduler.Config{
			CompletionSpec:   cfg.Scheduler.CompletionSpec,
			StalePaymentSpec: cfg.Scheduler.StalePaymentSpec,
			JobTimeout:       cfg.Scheduler.JobTimeout,
		})
		if err != nil {
			return nil, err
		}
		w.scheduler = sched
	}

	return w, nil
}

// sweeps joins the periodic jobs of the two services.
type sweeps struct {
	rentals  *service.RentalService
	payments *service.PaymentService
}

func (s sweeps) CompleteElapsed(ctx context.Context) (int, error) {
	return s.rentals.CompleteElapsed(ctx)
}

func (s sweeps) FailStalePayments(ctx context.Context) (int, error) {
	return s.payments.FailStalePayments(ctx)
}
