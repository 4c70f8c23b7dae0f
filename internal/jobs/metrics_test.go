package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	assert.NoError(t, m.Track("report_warmup").End(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("report_warmup").End(boom), boom)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues("report_warmup", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues("report_warmup", "failure")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.failures.WithLabelValues("report_warmup")))
}

func TestAddViolations(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddViolations("conservation", 2)
	m.AddViolations("conservation", 0)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.violations.WithLabelValues("conservation")))

	var nilMetrics *Metrics
	nilMetrics.AddViolations("status_drift", 1)
	assert.NoError(t, nilMetrics.Track("noop").End(nil))
}
