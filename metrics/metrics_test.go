package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go-scooterscan/discovery"
	"go-scooterscan/geoquery"
	"go-scooterscan/types"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ geoquery.Observer     = (*Collector)(nil)
	_ discovery.RunRecorder = (*Collector)(nil)
)

func TestObserveQuery(t *testing.T) {
	c, err := NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)

	c.ObserveQuery("yandex", "ok", 20*time.Millisecond)
	c.ObserveQuery("yandex", "ok", 30*time.Millisecond)
	c.ObserveQuery("yandex", "transient", time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Queries.WithLabelValues("yandex", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Queries.WithLabelValues("yandex", "transient")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.QueryDurations))
}

func TestRecordRun(t *testing.T) {
	c, err := NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)

	c.RecordRun(discovery.StateAborted, map[types.Kind]int{types.Individual: 4})
	c.RecordRun(discovery.StateDone, map[types.Kind]int{types.Individual: 10, types.Aggregate: 2})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Runs.WithLabelValues("aborted")))
	assert.Equal(t, 10.0, testutil.ToFloat64(c.Records.WithLabelValues("individual")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Records.WithLabelValues("aggregate")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.Records.WithLabelValues("empty_aggregate")))
}

func TestRegisterTwiceReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewCollector(reg)
	require.NoError(t, err)
	b, err := NewCollector(reg)
	require.NoError(t, err)

	a.Runs.WithLabelValues("done").Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(b.Runs.WithLabelValues("done")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c, err := NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)
	c.ObserveQuery("urent", "auth_expired", time.Millisecond)

	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.True(t, strings.Contains(body, `scooterscan_queries_total{outcome="auth_expired",provider="urent"} 1`), body)
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.ObserveQuery("yandex", "ok", time.Millisecond)
	c.RecordRun(discovery.StateDone, nil)
}
