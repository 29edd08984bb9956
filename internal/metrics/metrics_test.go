package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordIncrement(t *testing.T) {
	before := testutil.ToFloat64(CounterIncrements.WithLabelValues("like", "ok"))
	beforeErr := testutil.ToFloat64(CounterIncrements.WithLabelValues("like", "error"))

	RecordIncrement("like", nil)
	RecordIncrement("like", nil)
	RecordIncrement("like", errors.New("redis down"))

	assert.InDelta(t, before+2, testutil.ToFloat64(CounterIncrements.WithLabelValues("like", "ok")), 1e-9)
	assert.InDelta(t, beforeErr+1, testutil.ToFloat64(CounterIncrements.WithLabelValues("like", "error")), 1e-9)
}

func TestRecordSyncRun(t *testing.T) {
	tests := []struct {
		name   string
		failed int
		err    error
		result string
	}{
		{"success", 0, nil, "success"},
		{"partial", 3, nil, "partial"},
		{"scan error", 0, errors.New("scan failed"), "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(SyncRuns.WithLabelValues(tt.result))
			RecordSyncRun(10*time.Millisecond, 5, 1, tt.failed, tt.err)
			assert.InDelta(t, before+1, testutil.ToFloat64(SyncRuns.WithLabelValues(tt.result)), 1e-9)
		})
	}

	assert.Greater(t, testutil.ToFloat64(SyncLastSuccess), 0.0)
}

func TestRecordFeedAndHTTP(t *testing.T) {
	before := testutil.ToFloat64(FeedRequests.WithLabelValues("hot", "ok"))
	RecordFeed("hot", 5*time.Millisecond, nil)
	assert.InDelta(t, before+1, testutil.ToFloat64(FeedRequests.WithLabelValues("hot", "ok")), 1e-9)

	beforeHTTP := testutil.ToFloat64(HTTPRequests.WithLabelValues("GET", "/api/v1/feed", "200"))
	RecordHTTPRequest("GET", "/api/v1/feed", 200, time.Millisecond)
	assert.InDelta(t, beforeHTTP+1, testutil.ToFloat64(HTTPRequests.WithLabelValues("GET", "/api/v1/feed", "200")), 1e-9)
}

func TestMetricGathering(t *testing.T) {
	RecordEvent("engagement.counter", nil)

	problems, err := testutil.GatherAndLint(prometheus.DefaultGatherer)
	require.NoError(t, err)
	for _, p := range problems {
		if len(p.Metric) > 11 && p.Metric[:11] == "engagement_" {
			t.Errorf("lint problem in %s: %s", p.Metric, p.Text)
		}
	}
}
