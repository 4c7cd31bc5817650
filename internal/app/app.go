package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/NasaVasa/pricewatch/internal/config"
	"github.com/NasaVasa/pricewatch/internal/delivery/api"
	"github.com/NasaVasa/pricewatch/internal/delivery/telegram"
	"github.com/NasaVasa/pricewatch/internal/delivery/ws"
	"github.com/NasaVasa/pricewatch/internal/domain"
	"github.com/NasaVasa/pricewatch/internal/infra/db"
	"github.com/NasaVasa/pricewatch/internal/infra/log"
	"github.com/NasaVasa/pricewatch/internal/infra/mail"
	"github.com/NasaVasa/pricewatch/internal/infra/source"
	"github.com/NasaVasa/pricewatch/internal/infra/stream"
	"github.com/NasaVasa/pricewatch/internal/usecase"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	cfg       config.Config
	collector *usecase.Collector
	scheduler *usecase.Scheduler
	hub       *ws.Hub
	bot       *telegram.Bot
	server    *http.Server
	logger    *zap.Logger
	cleanupFn []func() error
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := log.NewLogger(cfg.LogLevel, "pricewatch")
	if err != nil {
		return nil, err
	}

	dbConn, err := db.Open(cfg, logger)
	if err != nil {
		return nil, err
	}
	sqlDB, err := dbConn.DB()
	if err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, logger: logger, cleanupFn: []func() error{sqlDB.Close}}

	priceRepo := db.NewPriceRepository(dbConn)
	alertRepo := db.NewAlertRepository(dbConn)
	productRepo := db.NewProductRepository(dbConn)
	subscriberRepo := db.NewSubscriberRepository(dbConn)
	jobRepo := db.NewJobRepository(dbConn, cfg.JobLease)

	a.hub = ws.NewHub(cfg.WSHeartbeat, cfg.WSWriteTimeout, cfg.CORSAllowOrigins, logger)

	var mailer usecase.Mailer
	if cfg.SMTPHost != "" {
		mailer = mail.NewMailer(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}, logger)
	} else {
		logger.Warn("SMTP_HOST not set, alert emails are only logged")
		mailer = mail.NewLogMailer(logger)
	}

	sinks := []usecase.AlertSink{
		usecase.NewEmailSink(subscriberRepo, mailer, logger),
		a.hub,
	}

	if cfg.TelegramBotToken != "" {
		threshold, err := domain.ParseSignificance(cfg.TelegramMinSignificance)
		if err != nil {
			a.Shutdown()
			return nil, fmt.Errorf("TELEGRAM_MIN_SIGNIFICANCE: %w", err)
		}
		botAPI, err := telegram.NewAPI(cfg.TelegramBotToken)
		if err != nil {
			a.Shutdown()
			return nil, err
		}
		sinks = append(sinks, telegram.NewNotifier(botAPI, cfg.TelegramChatIDs, threshold, logger))
		handlers := telegram.NewHandlers(alertRepo, cfg.TelegramChatIDs, logger)
		a.bot = telegram.NewBot(botAPI, handlers, cfg.TelegramPollTimeout)
	}

	if len(cfg.KafkaBrokers) > 0 {
		publisher := stream.NewAlertPublisher(stream.NewWriter(cfg.KafkaBrokers, cfg.KafkaAlertTopic), logger)
		sinks = append(sinks, publisher)
		a.cleanupFn = append(a.cleanupFn, publisher.Close)
	}

	distributor := usecase.NewDistributor(cfg.SinkTimeout, logger, sinks...)
	emitter := usecase.NewAlertEmitter(priceRepo, logger)
	sourceClient := source.NewClient(cfg.FetchTimeout, cfg.FetchRatePerSec, logger)

	a.collector = usecase.NewCollector(priceRepo, sourceClient, emitter, distributor, usecase.CollectorConfig{
		Workers:       cfg.CollectWorkers,
		HistoryLimit:  cfg.CollectHistoryLimit,
		FetchAttempts: cfg.FetchAttempts,
		FetchBackoff:  cfg.FetchBackoff,
	}, logger)

	a.scheduler = usecase.NewScheduler(jobRepo, a.collector, usecase.SchedulerConfig{
		Interval:     cfg.CollectInterval,
		PollInterval: cfg.JobPollInterval,
		MaxAttempts:  cfg.JobMaxAttempts,
		Backoff:      cfg.JobBackoff,
		RunOnStart:   cfg.SchedulerRunOnStart,
	}, logger)

	router := api.NewRouter(api.Deps{
		Alerts:   alertRepo,
		Products: productRepo,
		History:  priceRepo,
		Live:     a.hub,
		Ping:     sqlDB.PingContext,
		Logger:   logger,
	}, cfg.CORSAllowOrigins)

	a.server = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// Run serves the API and live socket, runs the scheduler and, when configured, the chat bot until
// ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("pricewatch service starting", zap.String("addr", a.cfg.HTTPAddr))

	a.hub.Start(ctx)
	defer a.hub.Stop()

	if err := a.scheduler.Start(ctx); err != nil {
		return err
	}
	defer a.scheduler.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})
	if a.bot != nil {
		g.Go(func() error {
			return a.bot.Start(gctx)
		})
	}

	a.logger.Info("pricewatch service started")
	return g.Wait()
}

// Collect runs one collection inline, bypassing the job queue.
func (a *App) Collect(ctx context.Context) (usecase.CollectionReport, error) {
	return a.collector.Collect(ctx)
}

func (a *App) Logger() *zap.Logger {
	return a.logger
}

func (a *App) Shutdown() {
	a.logger.Info("pricewatch service shutting down")
	for i := len(a.cleanupFn) - 1; i >= 0; i-- {
		if err := a.cleanupFn[i](); err != nil {
			a.logger.Warn("cleanup failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
