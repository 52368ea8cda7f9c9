package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tally-crm/tally/internal/app"
	"github.com/tally-crm/tally/internal/invoices"
	jobmetrics "github.com/tally-crm/tally/internal/jobs"
	"github.com/tally-crm/tally/internal/observability"
	"github.com/tally-crm/tally/internal/platform/cache"
	"github.com/tally-crm/tally/internal/platform/db"
	"github.com/tally-crm/tally/internal/recurring"
	"github.com/tally-crm/tally/internal/reminders"
	"github.com/tally-crm/tally/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConn})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Warn("redis unavailable, run markers disabled", slog.Any("error", err))
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}
	marker := cache.NewRunMarker(redisClient, cfg.RunMarkerTTL)

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

	observed := observability.NewMetrics()
	metrics := jobmetrics.NewMetrics(observed.Registerer())

	clock := cfg.Clock()
	links := reminders.NewLinkResolver(pool)
	reminderService := reminders.NewService(reminders.NewRepository(pool), reminders.ServiceConfig{
		Notifier:       jobs.NewReminderNotifier(jobClient),
		Links:          links,
		Clock:          clock,
		Logger:         logger,
		MaxSnoozeHours: cfg.SnoozeMaxHours,
		BatchLimit:     cfg.ReminderBatchLimit,
	})
	recurringService := recurring.NewService(recurring.NewRepository(pool), recurring.ServiceConfig{
		Links:  links,
		Clock:  clock,
		Logger: logger,
	})
	invoiceService := invoices.NewService(invoices.NewRepository(pool), invoices.ServiceConfig{
		Policy: cfg.Policy(),
		Clock:  clock,
		Logger: logger,
	})

	pass := func(name string, run jobs.PassFunc, daily bool) *jobs.PassJob {
		job := &jobs.PassJob{Name: name, Run: run, Clock: clock, Logger: logger, Metrics: metrics}
		if daily {
			job.Marker = marker
		}
		return job
	}
	dueReminders := pass(jobs.TaskRemindersProcessDue, jobs.DueRemindersPass(reminderService), false)
	dueTasks := pass(jobs.TaskRecurringProcessDue, jobs.DueTasksPass(recurringService), true)
	upcoming := pass(jobs.TaskRecurringUpcoming, jobs.UpcomingRemindersPass(recurringService), true)
	overdue := pass(jobs.TaskInvoicesOverdueSweep, jobs.OverdueSweepPass(invoiceService), true)

	notifyJob := &jobs.ReminderNotifyJob{Links: links, Enqueuer: jobClient, Recipient: cfg.NotifyEmail, Logger: logger}
	mailJob := jobs.NewMailJob(cfg.SMTPFrom, logger)

	cron := make([]jobs.CronRegistration, 0, 4)
	for _, entry := range []struct {
		spec     string
		taskType string
	}{
		{"0 7 * * *", jobs.TaskRecurringUpcoming},
		{"0 8 * * *", jobs.TaskRecurringProcessDue},
		{"0 8 * * *", jobs.TaskInvoicesOverdueSweep},
		{"* * * * *", jobs.TaskRemindersProcessDue},
	} {
		task, err := jobs.NewPassTask(entry.taskType, false)
		if err != nil {
			logger.Error("build scheduled task", slog.String("task", entry.taskType), slog.Any("error", err))
			os.Exit(1)
		}
		opts := []asynq.Option{asynq.MaxRetry(3), asynq.Queue(jobs.QueueDefault)}
		if entry.taskType == jobs.TaskRemindersProcessDue {
			// the next minute retries anyway
			opts = []asynq.Option{asynq.MaxRetry(0), asynq.Queue(jobs.QueueDefault), asynq.Timeout(50 * time.Second)}
		}
		cron = append(cron, jobs.CronRegistration{Spec: entry.spec, Task: task, Options: opts})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Location:  cfg.SchedulerLocation(),
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRemindersProcessDue, Handler: dueReminders.Handle},
			{Type: jobs.TaskRecurringProcessDue, Handler: dueTasks.Handle},
			{Type: jobs.TaskRecurringUpcoming, Handler: upcoming.Handle},
			{Type: jobs.TaskInvoicesOverdueSweep, Handler: overdue.Handle},
			{Type: jobs.TaskReminderNotify, Handler: notifyJob.Handle},
			{Type: jobs.TaskTypeSendEmail, Handler: mailJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{Addr: cfg.WorkerAddr, Handler: observed.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("starting worker", slog.String("scheduler_tz", cfg.SchedulerTZ))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
