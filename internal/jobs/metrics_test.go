package jobmetrics

import (
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

const logoutRetry = "auth:logout_retry"

func TestTrackerRecordsLogoutRetryAttempts(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	assert.NoError(t, metrics.Track(logoutRetry).End(nil))
	boom := errors.New("backend unavailable")
	assert.Same(t, boom, metrics.Track(logoutRetry).End(boom))

	expected := `
# HELP portal_jobs_total Total job executions partitioned by job name and status.
# TYPE portal_jobs_total counter
portal_jobs_total{job="auth:logout_retry",status="failure"} 1
portal_jobs_total{job="auth:logout_retry",status="success"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "portal_jobs_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.duration))
}

func TestNilMetricsTrackerPassesErrorThrough(t *testing.T) {
	var metrics *Metrics
	boom := errors.New("boom")
	assert.Same(t, boom, metrics.Track(logoutRetry).End(boom))
	assert.NoError(t, metrics.Track(logoutRetry).End(nil))
}
