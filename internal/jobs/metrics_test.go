package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, m := range fam.GetMetric() {
			match := true
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					match = false
				}
			}
			if match {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestTrackerRecordsRunsAndFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	require.NoError(t, metrics.Track("reminders.process_due").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, metrics.Track("reminders.process_due").End(boom), boom)
	metrics.AddItems("reminders.process_due", OutcomeProcessed, 3)
	metrics.AddItems("reminders.process_due", OutcomeFailed, 0)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Equal(t, 1.0, counterValue(t, families, "tally_jobs_total", map[string]string{"job": "reminders.process_due", "status": "success"}))
	require.Equal(t, 1.0, counterValue(t, families, "tally_jobs_failures_total", map[string]string{"job": "reminders.process_due"}))
	require.Equal(t, 3.0, counterValue(t, families, "tally_job_items_total", map[string]string{"job": "reminders.process_due", "outcome": OutcomeProcessed}))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.AddItems("x", OutcomeProcessed, 1)
	require.NoError(t, m.Track("x").End(nil))
}
