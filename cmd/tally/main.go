package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tally-crm/tally/internal/app"
	"github.com/tally-crm/tally/internal/dashboard"
	"github.com/tally-crm/tally/internal/invoices"
	"github.com/tally-crm/tally/internal/observability"
	"github.com/tally-crm/tally/internal/platform/db"
	"github.com/tally-crm/tally/internal/projects"
	"github.com/tally-crm/tally/internal/recurring"
	"github.com/tally-crm/tally/internal/reminders"
	"github.com/tally-crm/tally/internal/shared"
	"github.com/tally-crm/tally/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConn})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisOpts := cfg.AsynqRedis()
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	clock := cfg.Clock()
	links := reminders.NewLinkResolver(dbpool)

	reminderService := reminders.NewService(reminders.NewRepository(dbpool), reminders.ServiceConfig{
		Notifier:       jobs.NewReminderNotifier(jobClient),
		Links:          links,
		Clock:          clock,
		Logger:         logger,
		MaxSnoozeHours: cfg.SnoozeMaxHours,
		BatchLimit:     cfg.ReminderBatchLimit,
	})
	recurringService := recurring.NewService(recurring.NewRepository(dbpool), recurring.ServiceConfig{
		Links:  links,
		Clock:  clock,
		Logger: logger,
	})
	invoiceService := invoices.NewService(invoices.NewRepository(dbpool), invoices.ServiceConfig{
		Policy: cfg.Policy(),
		Clock:  clock,
		Logger: logger,
	})
	projectService := projects.NewService(projects.NewRepository(dbpool), clock, logger)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Metrics:          metrics,
		DB:               dbpool,
		InvoiceHandler:   invoices.NewHandler(logger, invoiceService).WithIdempotency(shared.NewIdempotencyStore(dbpool)),
		ProjectHandler:   projects.NewHandler(logger, projectService),
		RecurringHandler: recurring.NewHandler(logger, recurringService),
		ReminderHandler:  reminders.NewHandler(logger, reminderService),
		DashboardHandler: dashboard.NewHandler(logger, reminderService, invoiceService, projectService, recurringService, clock),
		JobHandler:       jobs.NewHandler(inspector, jobClient, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server",
			slog.String("addr", cfg.AppAddr),
			slog.String("transition_policy", string(cfg.Policy())),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
