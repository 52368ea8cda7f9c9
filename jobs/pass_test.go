package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/tally-crm/tally/internal/jobs"
	"github.com/tally-crm/tally/internal/platform/cache"
	"github.com/tally-crm/tally/internal/shared"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newPassJob(t *testing.T, run PassFunc) (*PassJob, *prometheus.Registry) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	reg := prometheus.NewRegistry()
	return &PassJob{
		Name:    "recurring:process_due",
		Run:     run,
		Marker:  cache.NewRunMarker(client, time.Hour),
		Clock:   shared.NewFixedClock(time.Date(2024, time.June, 3, 8, 0, 0, 0, time.UTC)),
		Logger:  discard,
		Metrics: jobmetrics.NewMetrics(reg),
	}, reg
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, m := range fam.GetMetric() {
			if labelsMatch(m, labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func labelsMatch(m *dto.Metric, want map[string]string) bool {
	matched := 0
	for _, lp := range m.GetLabel() {
		if v, ok := want[lp.GetName()]; ok {
			if v != lp.GetValue() {
				return false
			}
			matched++
		}
	}
	return matched == len(want)
}

func mustPassTask(t *testing.T, force bool) *asynq.Task {
	t.Helper()
	task, err := NewPassTask(TaskRecurringProcessDue, force)
	require.NoError(t, err)
	return task
}

func TestPassJobRunsOncePerDay(t *testing.T) {
	calls := 0
	job, reg := newPassJob(t, func(ctx context.Context) (PassOutcome, error) {
		calls++
		return PassOutcome{Processed: 3, Created: 3, Failed: 1}, nil
	})
	ctx := context.Background()

	require.NoError(t, job.Handle(ctx, mustPassTask(t, false)))
	require.NoError(t, job.Handle(ctx, mustPassTask(t, false)))
	assert.Equal(t, 1, calls)

	assert.Equal(t, 3.0, counterValue(t, reg, "tally_job_items_total", map[string]string{"job": job.Name, "outcome": "processed"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "tally_job_items_total", map[string]string{"job": job.Name, "outcome": "failed"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "tally_job_items_total", map[string]string{"job": job.Name, "outcome": "skipped"}))
	assert.Equal(t, 2.0, counterValue(t, reg, "tally_jobs_total", map[string]string{"job": job.Name, "status": "success"}))

	require.NoError(t, job.Handle(ctx, mustPassTask(t, true)))
	assert.Equal(t, 2, calls)
}

func TestPassJobReleasesMarkerOnFailure(t *testing.T) {
	fail := true
	calls := 0
	job, reg := newPassJob(t, func(ctx context.Context) (PassOutcome, error) {
		calls++
		if fail {
			return PassOutcome{}, errors.New("database unavailable")
		}
		return PassOutcome{Processed: 1}, nil
	})
	ctx := context.Background()

	require.Error(t, job.Handle(ctx, mustPassTask(t, false)))
	assert.Equal(t, 1.0, counterValue(t, reg, "tally_jobs_failures_total", map[string]string{"job": job.Name}))

	fail = false
	require.NoError(t, job.Handle(ctx, mustPassTask(t, false)))
	assert.Equal(t, 2, calls)
}

func TestPassJobWithoutMarker(t *testing.T) {
	calls := 0
	job := &PassJob{Name: "reminders:process_due", Run: func(ctx context.Context) (PassOutcome, error) {
		calls++
		return PassOutcome{}, nil
	}}
	task := asynq.NewTask(TaskRemindersProcessDue, nil)
	require.NoError(t, job.Handle(context.Background(), task))
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 2, calls)
}

func TestPassJobRejectsMalformedPayload(t *testing.T) {
	job, _ := newPassJob(t, func(ctx context.Context) (PassOutcome, error) {
		t.Fatal("pass must not run")
		return PassOutcome{}, nil
	})
	err := job.Handle(context.Background(), asynq.NewTask(TaskRecurringProcessDue, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
